package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/apicove/apicove/internal/agent"
	"github.com/apicove/apicove/internal/config"
	"github.com/apicove/apicove/internal/env"
	"github.com/apicove/apicove/internal/executor"
	"github.com/apicove/apicove/internal/filter"
	"github.com/apicove/apicove/internal/history"
	"github.com/apicove/apicove/internal/mapper"
	"github.com/apicove/apicove/internal/prepare"
	"github.com/apicove/apicove/internal/realtime"
	"github.com/apicove/apicove/internal/resolver"
	"github.com/apicove/apicove/internal/tabstore"
	"github.com/apicove/apicove/internal/transport"
	"github.com/apicove/apicove/internal/types"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "apicove",
	Short: "apicove - API request runner",
	Long: `apicove executes saved API requests from the command line.

Requests come from a saved request file (JSON) or a share token. Variables
resolve against the active environment and workspace globals; localhost and
private-network targets route through the local companion agent, everything
else through the execution proxy.

Examples:
  apicove run request.json             # Execute a saved request file
  apicove run eyJpZCI6...              # Execute a share token
  apicove run request.json -q users[0] # Filter the response with JMESPath
  apicove env use dev                  # Switch the active environment
  apicove ws wss://echo.example.com    # Interactive WebSocket session
  apicove share request.json           # Copy a share token to the clipboard`,
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run <file-or-token>",
	Short: "Execute a saved request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return runRequest(cmd.Context(), args[0])
	},
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Manage environments",
}

var envListCmd = &cobra.Command{
	Use:   "list",
	Short: "List environments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadEnvStore()
		if err != nil {
			return err
		}
		for _, e := range store.Environments {
			marker := " "
			if e.IsActive {
				marker = "*"
			}
			fmt.Printf("%s %-20s %s\n", marker, e.Name, e.BaseURL)
		}
		return nil
	},
}

var envUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Activate an environment (or 'none' to deactivate)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadEnvStore()
		if err != nil {
			return err
		}
		id := ""
		if args[0] != "none" {
			e, ok := store.ByName(args[0])
			if !ok {
				return fmt.Errorf("environment %q not found", args[0])
			}
			id = e.ID
		}
		if err := store.SetActive(id); err != nil {
			return err
		}
		return store.Save()
	},
}

var envExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export environments as YAML to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadEnvStore()
		if err != nil {
			return err
		}
		data, err := store.ExportYAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var envImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import environments from a YAML bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := loadEnvStore()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read bundle: %w", err)
		}
		if err := store.ImportYAML(data); err != nil {
			return err
		}
		return store.Save()
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect request history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent history entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		h, err := history.NewManager(config.DatabasePath)
		if err != nil {
			return err
		}
		defer h.Close()

		entries, err := h.List(historyLimit, 0)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-4s %-7s %3d  %s\n", e.CreatedAt, e.RequestType, e.Method, e.Status, e.URL)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all history entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		h, err := history.NewManager(config.DatabasePath)
		if err != nil {
			return err
		}
		defer h.Close()
		return h.Clear()
	},
}

var shareCmd = &cobra.Command{
	Use:   "share <file>",
	Short: "Encode a saved request file as a share token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tab, err := loadTab(args[0])
		if err != nil {
			return err
		}
		token, err := mapper.EncodeShareLink(tab)
		if err != nil {
			return err
		}
		fmt.Println(token)
		if err := clipboard.WriteAll(token); err == nil {
			fmt.Fprintln(os.Stderr, "Copied to clipboard.")
		}
		return nil
	},
}

var wsCmd = &cobra.Command{
	Use:   "ws <url>",
	Short: "Open an interactive WebSocket session",
	Long: `Connects to the given URL and relays stdin lines as messages.
Received messages print to stdout. Ctrl-C or EOF closes the connection and
persists the session log to history.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		return runWebSocket(cmd.Context(), args[0])
	},
}

var (
	flagFilter   string
	flagFull     bool
	historyLimit int
)

func init() {
	runCmd.Flags().StringVarP(&flagFilter, "query", "q", "", "JMESPath filter applied to the response body")
	runCmd.Flags().BoolVarP(&flagFull, "full", "f", false, "Show status and headers, not just the body")

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")

	envCmd.AddCommand(envListCmd)
	envCmd.AddCommand(envUseCmd)
	envCmd.AddCommand(envExportCmd)
	envCmd.AddCommand(envImportCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(wsCmd)
}

func loadEnvStore() (*env.Store, error) {
	if err := config.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize config: %w", err)
	}
	store := env.NewStore(config.EnvironmentsFile)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

// loadTab reads a request from a JSON record file, or decodes the argument as
// a share token when it is not a readable file.
func loadTab(source string) (*types.Tab, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return mapper.DecodeShareLink(source)
		}
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	var rec mapper.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse request file: %w", err)
	}
	return mapper.Decode(&rec)
}

func runRequest(ctx context.Context, source string) error {
	tab, err := loadTab(source)
	if err != nil {
		return err
	}
	if tab.Kind != types.KindHTTP {
		return fmt.Errorf("run only handles http requests, got %q (use 'ws' for realtime)", tab.Kind)
	}

	store, err := loadEnvStore()
	if err != nil {
		return err
	}
	hist, err := history.NewManager(config.DatabasePath)
	if err != nil {
		return err
	}
	defer hist.Close()

	r := resolver.New(store.Scope())
	agentSvc := agent.NewService(agent.DefaultBaseURL, config.AgentPermissionFile)
	dispatcher := transport.New(agentSvc, config.APIBase())
	exec := executor.New(prepare.New(r), dispatcher, hist)

	exec.Execute(ctx, tab)

	if tab.HTTP.Error != "" {
		return fmt.Errorf("%s", tab.HTTP.Error)
	}
	resp := tab.HTTP.Response

	if flagFull {
		fmt.Printf("%d %s  (%d ms, %d bytes)\n", resp.Status, resp.StatusText, resp.TimeMS, resp.Size)
		names := make([]string, 0, len(resp.Headers))
		for name := range resp.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s: %s\n", name, resp.Headers[name])
		}
		fmt.Println()
	}

	body := resp.Body
	if flagFilter != "" {
		filtered, err := filter.Apply(body, flagFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		body = filtered
	}
	fmt.Println(body)
	return nil
}

func runWebSocket(ctx context.Context, rawURL string) error {
	store, err := loadEnvStore()
	if err != nil {
		return err
	}
	hist, err := history.NewManager(config.DatabasePath)
	if err != nil {
		return err
	}
	defer hist.Close()

	tabs := tabstore.New()
	tab := types.NewRealtimeTab(types.KindWebSocket)
	tab.Realtime.URL = rawURL
	tabs.Add(tab)

	r := resolver.New(store.Scope())
	manager := realtime.New(r, tabs, hist)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := manager.Toggle(ctx, tab.ID); err != nil {
		return err
	}
	defer func() { _ = manager.Disconnect(tab.ID) }()

	// Print received entries as they land in the session log.
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		seen := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			var entries []types.LogEntry
			entries, seen = collectNewEntries(tabs, tab.ID, seen)
			for _, entry := range entries {
				if entry.Direction != types.DirectionSent {
					fmt.Printf("< %s\n", entry.Data)
				}
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	return relayStdin(ctx, manager, tab.ID, scanner)
}

// collectNewEntries copies session log entries past seen out of the tab while
// the store lock is held, so readers never touch the slice the receive loop
// is appending to.
func collectNewEntries(tabs *tabstore.Store, tabID string, seen int) ([]types.LogEntry, int) {
	var entries []types.LogEntry
	tabs.Apply(tabID, func(t *types.Tab) {
		if seen > len(t.Realtime.Messages) {
			seen = len(t.Realtime.Messages)
		}
		entries = append(entries, t.Realtime.Messages[seen:]...)
		seen = len(t.Realtime.Messages)
	})
	return entries, seen
}

func relayStdin(ctx context.Context, manager *realtime.Manager, tabID string, scanner *bufio.Scanner) error {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := manager.Send(tabID, line); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
