// internal/workers/agents/run-agent/models.go
package runagent

// Input is read from the job variables. AgentID may be empty when the job's
// task type is bound to an agent in the registry.
type Input struct {
	AgentID   string                 `json:"agentId"`
	Inputs    map[string]interface{} `json:"inputs"`
	RequestID string                 `json:"requestId,omitempty"`
}

type Output struct {
	Result       map[string]interface{} `json:"result"`
	Agent        string                 `json:"agent"`
	Model        string                 `json:"model"`
	InvocationID string                 `json:"invocationId"`
	Attempts     int                    `json:"attempts"`
	Cached       bool                   `json:"cached"`
	RequestID    string                 `json:"requestId,omitempty"`
}
