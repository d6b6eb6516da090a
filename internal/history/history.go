// Package history persists executed requests and realtime sessions to a
// local SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/apicove/apicove/internal/migrations"
	"github.com/apicove/apicove/internal/types"
)

// Manager is the history sink over SQLite.
type Manager struct {
	db *sql.DB
}

// NewManager opens (creating if needed) the history database at dbPath and
// brings the schema up to date.
func NewManager(dbPath string) (*Manager, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		return nil, err
	}
	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		request_type TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		headers TEXT NOT NULL DEFAULT '{}',
		params TEXT NOT NULL DEFAULT '{}',
		auth_type TEXT NOT NULL DEFAULT 'none',
		auth_data TEXT NOT NULL DEFAULT '{}',
		body_type TEXT NOT NULL DEFAULT 'none',
		body_meta TEXT NOT NULL DEFAULT '{}',
		body TEXT NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 0,
		status_text TEXT NOT NULL DEFAULT '',
		response_headers TEXT NOT NULL DEFAULT '{}',
		response_body TEXT NOT NULL DEFAULT '',
		response_time INTEGER NOT NULL DEFAULT 0,
		response_size INTEGER NOT NULL DEFAULT 0,
		workspace_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Save appends one entry.
func (m *Manager) Save(entry *types.HistoryEntry) error {
	_, err := m.db.Exec(`
		INSERT INTO history (
			id, request_type, method, url, headers, params,
			auth_type, auth_data, body_type, body_meta, body,
			status, status_text, response_headers, response_body,
			response_time, response_size, workspace_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RequestType, entry.Method, entry.URL,
		orJSON(entry.Headers), orJSON(entry.Params),
		entry.AuthType, orJSON(entry.AuthData),
		entry.BodyType, orJSON(entry.BodyMeta), entry.Body,
		entry.Status, entry.StatusText,
		orJSON(entry.ResponseHeaders), entry.ResponseBody,
		entry.ResponseTime, entry.ResponseSize,
		entry.WorkspaceID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save history entry: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (m *Manager) List(limit, offset int) ([]types.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.db.Query(`
		SELECT id, request_type, method, url, headers, params,
		       auth_type, auth_data, body_type, body_meta, body,
		       status, status_text, response_headers, response_body,
		       response_time, response_size, workspace_id, created_at
		FROM history
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.RequestType, &e.Method, &e.URL, &e.Headers, &e.Params,
			&e.AuthType, &e.AuthData, &e.BodyType, &e.BodyMeta, &e.Body,
			&e.Status, &e.StatusText, &e.ResponseHeaders, &e.ResponseBody,
			&e.ResponseTime, &e.ResponseSize, &e.WorkspaceID, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns one entry by id.
func (m *Manager) Get(id string) (*types.HistoryEntry, error) {
	row := m.db.QueryRow(`
		SELECT id, request_type, method, url, headers, params,
		       auth_type, auth_data, body_type, body_meta, body,
		       status, status_text, response_headers, response_body,
		       response_time, response_size, workspace_id, created_at
		FROM history WHERE id = ?`, id)

	var e types.HistoryEntry
	err := row.Scan(
		&e.ID, &e.RequestType, &e.Method, &e.URL, &e.Headers, &e.Params,
		&e.AuthType, &e.AuthData, &e.BodyType, &e.BodyMeta, &e.Body,
		&e.Status, &e.StatusText, &e.ResponseHeaders, &e.ResponseBody,
		&e.ResponseTime, &e.ResponseSize, &e.WorkspaceID, &e.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("history entry %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load history entry: %w", err)
	}
	return &e, nil
}

// Delete removes one entry by id.
func (m *Manager) Delete(id string) error {
	if _, err := m.db.Exec(`DELETE FROM history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

// Clear removes all entries.
func (m *Manager) Clear() error {
	if _, err := m.db.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (m *Manager) Close() error {
	return m.db.Close()
}

// orJSON guards the JSON columns: they must always hold valid JSON.
func orJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}
