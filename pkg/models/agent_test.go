package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgent_IsPublished(t *testing.T) {
	tests := []struct {
		status AgentStatus
		want   bool
	}{
		{AgentStatusPublished, true},
		{" Published ", true},
		{"PUBLISHED", true},
		{AgentStatusDraft, false},
		{"", false},
	}
	for _, tt := range tests {
		a := &Agent{Status: tt.status}
		assert.Equal(t, tt.want, a.IsPublished(), "status %q", tt.status)
	}
}

func TestAgent_Refs(t *testing.T) {
	a := &Agent{
		Plugins:        `["weather","search"]`,
		KnowledgeBases: `not json`,
	}
	assert.Equal(t, []string{"weather", "search"}, a.ToolRefs())
	assert.Equal(t, []string{}, a.KnowledgeBaseRefs())

	empty := &Agent{Plugins: "  ", KnowledgeBases: "null"}
	assert.Equal(t, []string{}, empty.ToolRefs())
	assert.Equal(t, []string{}, empty.KnowledgeBaseRefs())
}

func TestExecutionRequest_NodeInput(t *testing.T) {
	r := &ExecutionRequest{NodeInputs: []string{"a", "b"}}
	assert.Equal(t, "b", r.NodeInput(1))
	assert.Equal(t, "", r.NodeInput(2))
	assert.Equal(t, "", r.NodeInput(-1))
}
