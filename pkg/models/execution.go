package models

// ExecutionRequest is the input of a single workflow run.
type ExecutionRequest struct {
	// Input seeds the first node. Required.
	Input string `json:"input"`
	// NodeInputs holds optional per-node text, index-aligned with the nodes.
	// Index 0 is never used.
	NodeInputs []string `json:"node_inputs,omitempty"`
	// SessionID is generated when blank.
	SessionID string `json:"session_id,omitempty"`
}

// NodeInput returns the supplementary text for node idx, or "" if none.
func (r *ExecutionRequest) NodeInput(idx int) string {
	if idx < 0 || idx >= len(r.NodeInputs) {
		return ""
	}
	return r.NodeInputs[idx]
}

// NodeResult is the reply produced by one node.
type NodeResult struct {
	AgentID string `json:"agent_id"`
	Output  string `json:"output"`
}

// ExecutionResult is the outcome of a fully completed workflow run.
type ExecutionResult struct {
	WorkflowID  int64        `json:"workflow_id"`
	SessionID   string       `json:"session_id"`
	NodeResults []NodeResult `json:"node_results"`
	Output      string       `json:"output"`
}

// ChatPayload is the request body sent to the agent chat service.
type ChatPayload struct {
	Message        string           `json:"message"`
	ModelID        string           `json:"model_id"`
	SessionID      string           `json:"session_id"`
	KnowledgeBases []string         `json:"knowledge_bases"`
	Tools          []string         `json:"tools"`
	History        []map[string]any `json:"history"`
}
