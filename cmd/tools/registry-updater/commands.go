// cmd/tools/registry-updater/commands.go
package main

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"textagents/internal/agent"
	"textagents/pkg/registry"
)

type addOptions struct {
	file        string
	id          string
	displayName string
	description string
	taskType    string
	model       string
	timeout     string
	tags        string
	disabled    bool
}

func newAddCmd() *cobra.Command {
	opts := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an agent definition file",
		Long: `Parse an agent definition and add it to the registry, filling inputs and
outputs from the file. The id defaults to the agent name and the task type
to "agent-<id>" with underscores as dashes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := addAgent(registryPath, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added agent: %s (task type %s)\n", entry.ID, entry.TaskType)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Agent definition file (required)")
	cmd.Flags().StringVar(&opts.id, "id", "", "Agent ID")
	cmd.Flags().StringVar(&opts.displayName, "display-name", "", "Display name")
	cmd.Flags().StringVar(&opts.description, "description", "", "Description")
	cmd.Flags().StringVar(&opts.taskType, "task-type", "", "Zeebe task type")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model override")
	cmd.Flags().StringVar(&opts.timeout, "timeout", "", "Per-run timeout (e.g. 90s)")
	cmd.Flags().StringVar(&opts.tags, "tags", "", "Comma-separated tags")
	cmd.Flags().BoolVar(&opts.disabled, "disabled", false, "Register the agent disabled")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var id, field, value string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update one field of an existing entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := updateAgent(registryPath, id, field, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated agent %s, field %s to %s\n", id, field, value)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Agent ID to update")
	cmd.Flags().StringVar(&field, "field", "", "Field to update (displayName, description, taskType, model, timeout, enabled, tags, file)")
	cmd.Flags().StringVar(&value, "value", "", "New value for the field")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("field")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Register or refresh every agent definition in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			added, refreshed, err := syncDir(registryPath, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %s: %d added, %d refreshed\n", dir, added, refreshed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "agents", "Directory of agent definition files")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the registry and every agent file it references",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := validateRegistry(registryPath)
			if err != nil {
				return fmt.Errorf("registry validation failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed. Found %d agents.\n", n)
			return nil
		},
	}
}

// loadOrCreate returns the registry at path, or a new one when the file does
// not exist yet.
func loadOrCreate(path string) (*registry.AgentRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return registry.New(), nil
		}
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

// entryFile returns file relative to the registry's directory when possible.
func entryFile(regPath, file string) string {
	absReg, err1 := filepath.Abs(filepath.Dir(regPath))
	absFile, err2 := filepath.Abs(file)
	if err1 != nil || err2 != nil {
		return file
	}
	rel, err := filepath.Rel(absReg, absFile)
	if err != nil {
		return absFile
	}
	return filepath.ToSlash(rel)
}

func describe(regPath, file string) (*registry.AgentEntry, error) {
	report, err := agent.Validate(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &registry.AgentEntry{
		ID:          report.Name,
		DisplayName: displayName(report.Name),
		File:        entryFile(regPath, file),
		TaskType:    taskTypeFor(report.Name),
		Enabled:     true,
		Inputs:      report.Inputs,
		Outputs:     report.OutputFields,
	}, nil
}

func addAgent(regPath string, opts *addOptions) (*registry.AgentEntry, error) {
	reg, err := loadOrCreate(regPath)
	if err != nil {
		return nil, err
	}

	entry, err := describe(regPath, opts.file)
	if err != nil {
		return nil, err
	}
	if opts.id != "" {
		entry.ID = opts.id
		entry.TaskType = taskTypeFor(opts.id)
		entry.DisplayName = displayName(opts.id)
	}
	if _, exists := reg.Find(entry.ID); exists {
		return nil, fmt.Errorf("agent with ID %s already exists", entry.ID)
	}
	if opts.displayName != "" {
		entry.DisplayName = opts.displayName
	}
	if opts.taskType != "" {
		entry.TaskType = opts.taskType
	}
	if opts.timeout != "" {
		if _, err := time.ParseDuration(opts.timeout); err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", opts.timeout, err)
		}
	}
	entry.Description = opts.description
	entry.Model = opts.model
	entry.Timeout = opts.timeout
	entry.Tags = splitList(opts.tags)
	entry.Enabled = !opts.disabled

	reg.Upsert(*entry)
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return entry, registry.SaveRegistry(reg, regPath)
}

func updateAgent(regPath, id, field, value string) error {
	reg, err := registry.LoadRegistry(regPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found, ok := reg.Find(id)
	if !ok {
		return fmt.Errorf("agent with ID %s not found", id)
	}
	entry := *found

	switch field {
	case "displayName":
		entry.DisplayName = value
	case "description":
		entry.Description = value
	case "taskType":
		entry.TaskType = value
	case "model":
		entry.Model = value
	case "file":
		entry.File = value
	case "timeout":
		if value != "" {
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
		}
		entry.Timeout = value
	case "enabled":
		switch strings.ToLower(value) {
		case "true", "yes", "1":
			entry.Enabled = true
		case "false", "no", "0":
			entry.Enabled = false
		default:
			return fmt.Errorf("invalid enabled value: %s", value)
		}
	case "tags":
		entry.Tags = splitList(value)
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.Upsert(entry)
	if err := reg.Validate(); err != nil {
		return err
	}
	return registry.SaveRegistry(reg, regPath)
}

// syncDir registers every *.txt and *.agent file in dir. Existing entries keep
// their overrides and get fresh inputs and outputs.
func syncDir(regPath, dir string) (added, refreshed int, err error) {
	reg, err := loadOrCreate(regPath)
	if err != nil {
		return 0, 0, err
	}

	var files []string
	for _, pattern := range []string{"*.txt", "*.agent"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return 0, 0, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return 0, 0, fmt.Errorf("no agent definition files in %s", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		entry, err := describe(regPath, file)
		if err != nil {
			return added, refreshed, err
		}

		if existing := findByFile(reg, entry.File); existing != nil {
			updated := *existing
			updated.Inputs = entry.Inputs
			updated.Outputs = entry.Outputs
			reg.Upsert(updated)
			refreshed++
			continue
		}
		if _, exists := reg.Find(entry.ID); exists {
			return added, refreshed, fmt.Errorf("%s: agent ID %s is already registered for another file", file, entry.ID)
		}
		reg.Upsert(*entry)
		added++
	}

	if err := reg.Validate(); err != nil {
		return added, refreshed, err
	}
	return added, refreshed, registry.SaveRegistry(reg, regPath)
}

func findByFile(reg *registry.AgentRegistry, file string) *registry.AgentEntry {
	for i := range reg.Agents {
		if filepath.ToSlash(reg.Agents[i].File) == file {
			return &reg.Agents[i]
		}
	}
	return nil
}

// validateRegistry checks the registry itself and then parses every agent file
// it references.
func validateRegistry(regPath string) (int, error) {
	reg, err := registry.LoadRegistry(regPath)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}

	for _, entry := range reg.Agents {
		path := entry.ResolveFile(regPath)
		if _, err := os.Stat(path); err != nil {
			return 0, fmt.Errorf("agent %s: file %s: %w", entry.ID, path, err)
		}
		if _, err := agent.Validate(path); err != nil {
			return 0, fmt.Errorf("agent %s: %w", entry.ID, err)
		}
	}
	return len(reg.Agents), nil
}

// taskTypeFor keeps task types free of dots, which viper reads as nesting in
// the workers section.
func taskTypeFor(id string) string {
	return "agent-" + strings.NewReplacer("_", "-", ".", "-").Replace(id)
}

func displayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '_' || r == '-' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
