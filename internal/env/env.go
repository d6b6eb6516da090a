// Package env manages environments and workspace-global variables.
package env

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/apicove/apicove/internal/resolver"
	"github.com/apicove/apicove/internal/types"
)

// Store holds the environments and global variables, persisted as one JSON
// file under the config directory.
type Store struct {
	path         string
	Environments []types.Environment
	Globals      map[string]string
}

type fileState struct {
	Environments []types.Environment `json:"environments"`
	Globals      map[string]string   `json:"globals"`
}

// NewStore creates a store persisted at path. Missing files yield an empty
// store.
func NewStore(path string) *Store {
	return &Store{path: path, Globals: make(map[string]string)}
}

// Load reads the store from disk. A missing file is not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read environments file: %w", err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse environments file: %w", err)
	}
	s.Environments = state.Environments
	s.Globals = state.Globals
	if s.Globals == nil {
		s.Globals = make(map[string]string)
	}
	return nil
}

// Save writes the store to disk.
func (s *Store) Save() error {
	data, err := json.MarshalIndent(fileState{
		Environments: s.Environments,
		Globals:      s.Globals,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal environments: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write environments file: %w", err)
	}
	return nil
}

// Add registers a new environment and returns it.
func (s *Store) Add(name, baseURL string, variables map[string]string) types.Environment {
	if variables == nil {
		variables = make(map[string]string)
	}
	env := types.Environment{
		ID:        uuid.NewString(),
		Name:      name,
		BaseURL:   baseURL,
		Variables: variables,
	}
	s.Environments = append(s.Environments, env)
	return env
}

// Update replaces the environment with the same id.
func (s *Store) Update(env types.Environment) error {
	for i := range s.Environments {
		if s.Environments[i].ID == env.ID {
			env.IsActive = s.Environments[i].IsActive
			s.Environments[i] = env
			return nil
		}
	}
	return fmt.Errorf("environment %q not found", env.ID)
}

// Delete removes the environment with the given id.
func (s *Store) Delete(id string) error {
	for i := range s.Environments {
		if s.Environments[i].ID == id {
			s.Environments = append(s.Environments[:i], s.Environments[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("environment %q not found", id)
}

// SetActive marks the environment with the given id active and deactivates
// every other one. An empty id deactivates all.
func (s *Store) SetActive(id string) error {
	found := id == ""
	for i := range s.Environments {
		active := s.Environments[i].ID == id
		s.Environments[i].IsActive = active
		if active {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("environment %q not found", id)
	}
	return nil
}

// Active returns the currently active environment, nil when none is.
func (s *Store) Active() *types.Environment {
	for i := range s.Environments {
		if s.Environments[i].IsActive {
			return &s.Environments[i]
		}
	}
	return nil
}

// ByName returns the environment with the given name.
func (s *Store) ByName(name string) (*types.Environment, bool) {
	for i := range s.Environments {
		if s.Environments[i].Name == name {
			return &s.Environments[i], true
		}
	}
	return nil, false
}

// SetGlobal sets one workspace-global variable.
func (s *Store) SetGlobal(name, value string) {
	s.Globals[name] = value
}

// Scope builds the resolver scope from the current state.
func (s *Store) Scope() resolver.Scope {
	return resolver.Scope{
		ActiveEnvironment: s.Active(),
		GlobalVariables:   s.Globals,
	}
}

// yamlBundle is the import/export shape for sharing environments.
type yamlBundle struct {
	Environments []types.Environment `yaml:"environments"`
	Globals      map[string]string   `yaml:"globals,omitempty"`
}

// ExportYAML renders the environments (and globals) as a shareable YAML
// bundle with stable ordering.
func (s *Store) ExportYAML() ([]byte, error) {
	bundle := yamlBundle{
		Environments: append([]types.Environment(nil), s.Environments...),
		Globals:      s.Globals,
	}
	sort.Slice(bundle.Environments, func(i, j int) bool {
		return bundle.Environments[i].Name < bundle.Environments[j].Name
	})
	return yaml.Marshal(bundle)
}

// ImportYAML merges a YAML bundle into the store. Imported environments get
// fresh ids and never arrive active.
func (s *Store) ImportYAML(data []byte) error {
	var bundle yamlBundle
	if err := yaml.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("failed to parse environment bundle: %w", err)
	}
	for _, env := range bundle.Environments {
		s.Add(env.Name, env.BaseURL, env.Variables)
	}
	for name, value := range bundle.Globals {
		if _, exists := s.Globals[name]; !exists {
			s.Globals[name] = value
		}
	}
	return nil
}
