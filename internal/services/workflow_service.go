package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/repository"
	"agentchain/backend/pkg/models"
)

// WorkflowService manages workflows on behalf of their owners.
type WorkflowService struct {
	store  repository.WorkflowStore
	agents repository.AgentRegistry
	logger *logging.Logger
	now    func() time.Time
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(store repository.WorkflowStore, agents repository.AgentRegistry, logger *logging.Logger) *WorkflowService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WorkflowService{
		store:  store,
		agents: agents,
		logger: logger.With("component", "workflow_service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new workflow with no nodes.
func (s *WorkflowService) Create(ctx context.Context, ownerID, name, intro string) (*models.WorkflowDetail, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", models.ErrValidation)
	}

	now := s.now()
	wf := &models.Workflow{
		OwnerID:   ownerID,
		Name:      name,
		Intro:     trimToNil(intro),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	s.logger.Info("workflow created", "workflow_id", wf.ID, "owner_id", ownerID)
	return models.NewWorkflowDetail(wf, nil), nil
}

// ListByOwner returns the owner's workflows without their node lists.
func (s *WorkflowService) ListByOwner(ctx context.Context, ownerID string) ([]*models.WorkflowDetail, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	workflows, err := s.store.ListWorkflowsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	details := make([]*models.WorkflowDetail, 0, len(workflows))
	for _, wf := range workflows {
		details = append(details, models.NewWorkflowDetail(wf, nil))
	}
	return details, nil
}

// GetDetail returns the workflow with its agent ids in node order.
func (s *WorkflowService) GetDetail(ctx context.Context, ownerID string, id int64) (*models.WorkflowDetail, error) {
	return ownedDetail(ctx, s.store, ownerID, id)
}

// SaveNodes replaces the node list. Every agent must exist and be published;
// on any failure the stored nodes are left untouched.
func (s *WorkflowService) SaveNodes(ctx context.Context, ownerID string, id int64, agentIDs []string) (*models.WorkflowDetail, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(agentIDs))
	for i, raw := range agentIDs {
		agentID := strings.TrimSpace(raw)
		if agentID == "" {
			return nil, fmt.Errorf("%w: agent id at position %d is blank", models.ErrValidation, i)
		}
		agent, err := s.agents.GetAgent(ctx, agentID)
		if err != nil {
			return nil, err
		}
		if !agent.IsPublished() {
			return nil, fmt.Errorf("%w: %s", models.ErrAgentNotPublished, agentID)
		}
		cleaned = append(cleaned, agentID)
	}

	if err := s.store.ReplaceNodes(ctx, id, cleaned, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("workflow nodes saved", "workflow_id", id, "nodes", len(cleaned))
	return ownedDetail(ctx, s.store, ownerID, id)
}

// Delete removes the workflow and its nodes.
func (s *WorkflowService) Delete(ctx context.Context, ownerID string, id int64) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	s.logger.Info("workflow deleted", "workflow_id", id)
	return nil
}

func (s *WorkflowService) owned(ctx context.Context, ownerID string, id int64) (*models.Workflow, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: workflow %d", models.ErrForbidden, id)
	}
	return wf, nil
}

func ownedDetail(ctx context.Context, store repository.WorkflowStore, ownerID string, id int64) (*models.WorkflowDetail, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	detail, err := store.GetWorkflowDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: workflow %d", models.ErrForbidden, id)
	}
	return detail, nil
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return models.ErrUnauthenticated
	}
	return nil
}

func trimToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
