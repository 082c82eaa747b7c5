// pkg/registry/schema.go
package registry

// AgentRegistry lists the agents a worker process serves.
type AgentRegistry struct {
	Version     string       `json:"version" yaml:"version"`
	LastUpdated string       `json:"lastUpdated" yaml:"lastUpdated"`
	Agents      []AgentEntry `json:"agents" yaml:"agents"`
}

type AgentEntry struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// File is the agent definition path, relative to the registry file's
	// directory unless absolute.
	File     string `json:"file" yaml:"file"`
	TaskType string `json:"taskType" yaml:"taskType"`
	// Model overrides the model named in the definition file.
	Model   string   `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout string   `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Tags    []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Inputs  []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}
