package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AgentStatus represents the publish state of an agent
type AgentStatus string

const (
	AgentStatusDraft     AgentStatus = "draft"
	AgentStatusPublished AgentStatus = "published"
)

// Agent is the read model of a configured LLM persona. Plugins and
// KnowledgeBases hold JSON string arrays exactly as stored.
type Agent struct {
	ID             string      `json:"id" db:"id"`
	OwnerID        string      `json:"owner_id" db:"user_id"`
	Name           string      `json:"name" db:"name"`
	Model          string      `json:"model" db:"model"`
	Status         AgentStatus `json:"status" db:"status"`
	Plugins        string      `json:"plugins" db:"plugins"`
	KnowledgeBases string      `json:"knowledge_bases" db:"knowledge_base"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// IsPublished reports whether the agent may be used by a workflow node.
func (a *Agent) IsPublished() bool {
	return strings.EqualFold(strings.TrimSpace(string(a.Status)), string(AgentStatusPublished))
}

// ToolRefs returns the plugin references, or an empty list if unset or malformed.
func (a *Agent) ToolRefs() []string {
	return parseRefs(a.Plugins)
}

// KnowledgeBaseRefs returns the knowledge base references, or an empty list if
// unset or malformed.
func (a *Agent) KnowledgeBaseRefs() []string {
	return parseRefs(a.KnowledgeBases)
}

func parseRefs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	var refs []string
	if err := json.Unmarshal([]byte(raw), &refs); err != nil || refs == nil {
		return []string{}
	}
	return refs
}
