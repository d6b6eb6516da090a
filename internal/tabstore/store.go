// Package tabstore holds the open tabs and applies state changes as
// functional merges against the latest snapshot, so interleaved async events
// never clobber each other.
package tabstore

import (
	"sync"

	"github.com/apicove/apicove/internal/types"
)

// Store is a registry of open tabs keyed by id.
type Store struct {
	mu    sync.RWMutex
	tabs  map[string]*types.Tab
	order []string
}

// New creates an empty store.
func New() *Store {
	return &Store{tabs: make(map[string]*types.Tab)}
}

// Add registers a tab. An existing tab with the same id is replaced in place,
// keeping its position.
func (s *Store) Add(tab *types.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[tab.ID]; !ok {
		s.order = append(s.order, tab.ID)
	}
	s.tabs[tab.ID] = tab
}

// Get returns the tab for id.
func (s *Store) Get(id string) (*types.Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tab, ok := s.tabs[id]
	return tab, ok
}

// Apply runs fn against the current tab under the store lock. Async callbacks
// must mutate through Apply so they always see the latest state rather than a
// snapshot captured at registration time.
func (s *Store) Apply(id string, fn func(*types.Tab)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.tabs[id]
	if !ok {
		return false
	}
	fn(tab)
	return true
}

// Remove drops the tab for id.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tabs[id]; !ok {
		return
	}
	delete(s.tabs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// List returns the open tabs in insertion order.
func (s *Store) List() []*types.Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tabs := make([]*types.Tab, 0, len(s.order))
	for _, id := range s.order {
		tabs = append(tabs, s.tabs[id])
	}
	return tabs
}

// Len reports the number of open tabs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tabs)
}
