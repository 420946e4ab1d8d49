package services

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentchain/backend/internal/migration"
	"agentchain/backend/internal/repository"
	"agentchain/backend/pkg/models"
)

func newSQLiteRepository(t *testing.T) repository.Repository {
	t.Helper()
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migration.NewSQLite(db)
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return repository.NewSQLiteStore(db, nil)
}

func TestExecutor_SaveDuringRunUsesSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newSQLiteRepository(t)
	now := time.Now().UTC()
	for _, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, repo.UpsertAgent(ctx, &models.Agent{
			ID:        id,
			OwnerID:   "alice",
			Name:      id,
			Model:     "m-" + id,
			Status:    models.AgentStatusPublished,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	workflows := NewWorkflowService(repo, repo, nil)
	wf, err := workflows.Create(ctx, "alice", "chain", "")
	require.NoError(t, err)
	_, err = workflows.SaveNodes(ctx, "alice", wf.ID, []string{"a1", "a2"})
	require.NoError(t, err)

	var calls atomic.Int32
	chat := chatFunc(func(ctx context.Context, p *models.ChatPayload) (string, error) {
		if calls.Add(1) == 1 {
			if _, err := workflows.SaveNodes(ctx, "alice", wf.ID, []string{"a3"}); err != nil {
				return "", err
			}
		}
		return "from " + p.ModelID, nil
	})

	result, err := NewExecutor(repo, repo, chat, nil).Execute(ctx, "alice", wf.ID, &models.ExecutionRequest{Input: "go"})
	require.NoError(t, err)

	require.Len(t, result.NodeResults, 2)
	assert.Equal(t, "a1", result.NodeResults[0].AgentID)
	assert.Equal(t, "a2", result.NodeResults[1].AgentID)
	assert.Equal(t, "from m-a2", result.Output)

	detail, err := workflows.GetDetail(ctx, "alice", wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a3"}, detail.AgentIDs, "the save made during the run is kept for the next one")
}
