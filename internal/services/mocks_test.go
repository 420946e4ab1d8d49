package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"agentchain/backend/pkg/models"
)

// MockStore satisfies repository.WorkflowStore
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateWorkflow(ctx context.Context, wf *models.Workflow) error {
	args := m.Called(ctx, wf)
	return args.Error(0)
}

func (m *MockStore) ListWorkflowsByOwner(ctx context.Context, ownerID string) ([]*models.Workflow, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockStore) GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockStore) GetWorkflowDetail(ctx context.Context, id int64) (*models.WorkflowDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowDetail), args.Error(1)
}

func (m *MockStore) ReplaceNodes(ctx context.Context, workflowID int64, agentIDs []string, at time.Time) error {
	args := m.Called(ctx, workflowID, agentIDs, at)
	return args.Error(0)
}

func (m *MockStore) DeleteWorkflow(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAgents satisfies repository.AgentRegistry
type MockAgents struct {
	mock.Mock
}

func (m *MockAgents) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

// MockChat satisfies ChatClient
type MockChat struct {
	mock.Mock
}

func (m *MockChat) ChatOnce(ctx context.Context, payload *models.ChatPayload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

func publishedAgent(id, model string) *models.Agent {
	return &models.Agent{
		ID:             id,
		Model:          model,
		Status:         models.AgentStatusPublished,
		Plugins:        `["search"]`,
		KnowledgeBases: "",
	}
}

func ownedWorkflow(id int64, owner string) *models.Workflow {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Workflow{ID: id, OwnerID: owner, Name: "chain", CreatedAt: ts, UpdatedAt: ts}
}

func detailWith(id int64, owner string, agentIDs ...string) *models.WorkflowDetail {
	return &models.WorkflowDetail{Workflow: ownedWorkflow(id, owner), AgentIDs: agentIDs}
}
