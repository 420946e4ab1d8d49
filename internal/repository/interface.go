package repository

import (
	"context"
	"time"

	"agentchain/backend/pkg/models"
)

// WorkflowStore persists workflows and their ordered nodes.
type WorkflowStore interface {
	// CreateWorkflow inserts wf and assigns its ID.
	CreateWorkflow(ctx context.Context, wf *models.Workflow) error
	// ListWorkflowsByOwner returns the owner's workflows, most recently
	// updated first.
	ListWorkflowsByOwner(ctx context.Context, ownerID string) ([]*models.Workflow, error)
	// GetWorkflow returns models.ErrNotFound when id does not exist.
	GetWorkflow(ctx context.Context, id int64) (*models.Workflow, error)
	// GetWorkflowDetail reads the workflow and its nodes from one consistent
	// snapshot.
	GetWorkflowDetail(ctx context.Context, id int64) (*models.WorkflowDetail, error)
	// ReplaceNodes swaps the whole node list and bumps updated_at to at.
	// Either every node is replaced or none is.
	ReplaceNodes(ctx context.Context, workflowID int64, agentIDs []string, at time.Time) error
	// DeleteWorkflow removes the workflow and its nodes.
	DeleteWorkflow(ctx context.Context, id int64) error
}

// AgentRegistry resolves agents by id.
type AgentRegistry interface {
	// GetAgent returns models.ErrNotFound when id does not exist.
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
}

// Repository is the full storage surface used by the server and the seeder.
type Repository interface {
	WorkflowStore
	AgentRegistry
	// UpsertAgent inserts or overwrites an agent by id.
	UpsertAgent(ctx context.Context, agent *models.Agent) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	Close()
}
