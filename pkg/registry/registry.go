// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const CurrentVersion = "1.0.0"

// New returns an empty registry.
func New() *AgentRegistry {
	return &AgentRegistry{
		Version:     CurrentVersion,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Agents:      []AgentEntry{},
	}
}

// LoadRegistry reads a registry file; .yaml and .yml are YAML, anything else JSON.
func LoadRegistry(path string) (*AgentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg AgentRegistry
	if isYAML(path) {
		err = yaml.Unmarshal(data, &reg)
	} else {
		err = json.Unmarshal(data, &reg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg in the format implied by the path's extension.
func SaveRegistry(reg *AgentRegistry, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(reg)
	} else {
		data, err = json.MarshalIndent(reg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Find returns the entry with the given ID.
func (r *AgentRegistry) Find(id string) (*AgentEntry, bool) {
	for i := range r.Agents {
		if r.Agents[i].ID == id {
			return &r.Agents[i], true
		}
	}
	return nil, false
}

// ByTaskType returns the entry bound to a job task type.
func (r *AgentRegistry) ByTaskType(taskType string) (*AgentEntry, bool) {
	for i := range r.Agents {
		if r.Agents[i].TaskType == taskType {
			return &r.Agents[i], true
		}
	}
	return nil, false
}

// Enabled returns the entries with Enabled set.
func (r *AgentRegistry) Enabled() []AgentEntry {
	var out []AgentEntry
	for _, a := range r.Agents {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// Upsert replaces the entry with the same ID or appends a new one.
func (r *AgentRegistry) Upsert(entry AgentEntry) {
	r.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	for i := range r.Agents {
		if r.Agents[i].ID == entry.ID {
			r.Agents[i] = entry
			return
		}
	}
	r.Agents = append(r.Agents, entry)
}

// Validate checks required fields and uniqueness of IDs and task types.
func (r *AgentRegistry) Validate() error {
	if len(r.Agents) == 0 {
		return fmt.Errorf("registry contains no agents")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]string)
	for _, a := range r.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent missing required field: id")
		}
		if ids[a.ID] {
			return fmt.Errorf("duplicate agent ID: %s", a.ID)
		}
		ids[a.ID] = true

		if a.File == "" {
			return fmt.Errorf("agent %s missing required field: file", a.ID)
		}
		if a.TaskType == "" {
			return fmt.Errorf("agent %s missing required field: taskType", a.ID)
		}
		if other, ok := taskTypes[a.TaskType]; ok {
			return fmt.Errorf("agents %s and %s share task type %s", other, a.ID, a.TaskType)
		}
		taskTypes[a.TaskType] = a.ID

		if a.Timeout != "" {
			if _, err := time.ParseDuration(a.Timeout); err != nil {
				return fmt.Errorf("agent %s has invalid timeout %q: %w", a.ID, a.Timeout, err)
			}
		}
	}
	return nil
}

// ResolveFile returns the entry's definition path, resolved against the
// directory of the registry file.
func (e AgentEntry) ResolveFile(registryPath string) string {
	if filepath.IsAbs(e.File) {
		return e.File
	}
	return filepath.Join(filepath.Dir(registryPath), e.File)
}

// TimeoutDuration parses Timeout; zero when unset or invalid.
func (e AgentEntry) TimeoutDuration() time.Duration {
	if e.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 0
	}
	return d
}
