package tabstore

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apicove/apicove/internal/types"
)

func TestApply_NoLostUpdates(t *testing.T) {
	s := New()
	tab := types.NewRealtimeTab(types.KindWebSocket)
	s.Add(tab)

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				s.Apply(tab.ID, func(tab *types.Tab) {
					tab.Realtime.MessageCount++
					tab.Realtime.Messages = append(tab.Realtime.Messages, types.LogEntry{
						Type:      types.LogMessage,
						Direction: types.DirectionReceived,
					})
				})
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(tab.ID)
	if got.Realtime.MessageCount != writers*perWriter {
		t.Errorf("Expected %d messages, got: %d", writers*perWriter, got.Realtime.MessageCount)
	}
	if len(got.Realtime.Messages) != writers*perWriter {
		t.Errorf("Expected %d log entries, got: %d", writers*perWriter, len(got.Realtime.Messages))
	}
}

func TestApply_UnknownTab(t *testing.T) {
	s := New()
	if s.Apply("nope", func(*types.Tab) {}) {
		t.Error("Expected Apply to report missing tab")
	}
}

func TestAddRemoveOrder(t *testing.T) {
	s := New()
	a := types.NewHTTPTab()
	b := types.NewHTTPTab()
	c := types.NewHTTPTab()
	s.Add(a)
	s.Add(b)
	s.Add(c)

	s.Remove(b.ID)

	tabs := s.List()
	if len(tabs) != 2 || tabs[0].ID != a.ID || tabs[1].ID != c.ID {
		t.Errorf("Expected insertion order [a c], got: %v", tabs)
	}
}

func TestDebouncer_CoalescesCalls(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)

	for range 5 {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected one coalesced call, got: %d", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)

	d.Trigger(func() { calls.Add(1) })
	d.Stop()

	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("Expected no call after Stop, got: %d", got)
	}
}
