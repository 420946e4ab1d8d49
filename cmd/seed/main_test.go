package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchain/backend/pkg/models"
)

func TestLoadAgents(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	input := `
agents:
  - id: researcher
    owner: alice
    name: Researcher
    model: gpt-4o
    status: Published
    plugins: [web_search, calculator]
    knowledge_bases: [kb-1]
  - id: writer
    model: llama3
`
	agents, err := loadAgents(strings.NewReader(input), now)
	require.NoError(t, err)
	require.Len(t, agents, 2)

	r := agents[0]
	assert.Equal(t, "researcher", r.ID)
	assert.Equal(t, "alice", r.OwnerID)
	assert.Equal(t, models.AgentStatusPublished, r.Status)
	assert.True(t, r.IsPublished())
	assert.Equal(t, `["web_search","calculator"]`, r.Plugins)
	assert.Equal(t, []string{"kb-1"}, r.KnowledgeBaseRefs())
	assert.Equal(t, now, r.CreatedAt)

	w := agents[1]
	assert.Equal(t, models.AgentStatusDraft, w.Status)
	assert.Equal(t, "[]", w.Plugins)
	assert.Equal(t, "[]", w.KnowledgeBases)
}

func TestLoadAgents_Empty(t *testing.T) {
	agents, err := loadAgents(strings.NewReader(""), time.Now())
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestLoadAgents_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing id", "agents:\n  - model: m\n", "id is required"},
		{"missing model", "agents:\n  - id: a\n", "model is required"},
		{"duplicate", "agents:\n  - {id: a, model: m}\n  - {id: a, model: m}\n", "duplicate id"},
		{"bad status", "agents:\n  - {id: a, model: m, status: archived}\n", "unknown status"},
		{"bad yaml", "agents: [", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadAgents(strings.NewReader(tt.input), time.Now())
			require.Error(t, err)
			if tt.want != "" {
				assert.ErrorContains(t, err, tt.want)
			}
		})
	}
}
