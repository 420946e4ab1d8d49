// Package api contains the HTTP handlers for the workflow service
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"agentchain/backend/internal/auth"
	"agentchain/backend/pkg/models"
)

// WorkflowService is the CRUD surface the REST handlers need.
type WorkflowService interface {
	Create(ctx context.Context, ownerID, name, intro string) (*models.WorkflowDetail, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.WorkflowDetail, error)
	GetDetail(ctx context.Context, ownerID string, id int64) (*models.WorkflowDetail, error)
	SaveNodes(ctx context.Context, ownerID string, id int64, agentIDs []string) (*models.WorkflowDetail, error)
	Delete(ctx context.Context, ownerID string, id int64) error
}

// WorkflowExecutor runs workflows.
type WorkflowExecutor interface {
	Execute(ctx context.Context, ownerID string, workflowID int64, req *models.ExecutionRequest) (*models.ExecutionResult, error)
}

// CreateWorkflowRequest is the body of POST /workflows.
type CreateWorkflowRequest struct {
	Name  string `json:"name"`
	Intro string `json:"intro"`
}

// SaveNodesRequest is the body of PUT /workflows/{id}/nodes.
type SaveNodesRequest struct {
	AgentIDs []string `json:"agent_ids"`
}

// Server holds the dependencies for the API server.
type Server struct {
	Workflows WorkflowService
	Executor  WorkflowExecutor
}

// NewServer creates a new Server.
func NewServer(workflows WorkflowService, executor WorkflowExecutor) *Server {
	return &Server{Workflows: workflows, Executor: executor}
}

var _ ServerInterface = (*Server)(nil)

// ListWorkflows returns the caller's workflows
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	ctx := c.Request().Context()
	workflows, err := s.Workflows.ListByOwner(ctx, auth.OwnerFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, workflows)
}

// CreateWorkflow creates an empty workflow
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	detail, err := s.Workflows.Create(ctx, auth.OwnerFromContext(ctx), req.Name, req.Intro)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, detail)
}

// GetWorkflow returns a workflow with its agent ids
// (GET /api/v1/workflows/{id})
func (s *Server) GetWorkflow(c echo.Context, id int64) error {
	ctx := c.Request().Context()
	detail, err := s.Workflows.GetDetail(ctx, auth.OwnerFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// DeleteWorkflow removes a workflow
// (DELETE /api/v1/workflows/{id})
func (s *Server) DeleteWorkflow(c echo.Context, id int64) error {
	ctx := c.Request().Context()
	if err := s.Workflows.Delete(ctx, auth.OwnerFromContext(ctx), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SaveWorkflowNodes replaces the node list
// (PUT /api/v1/workflows/{id}/nodes)
func (s *Server) SaveWorkflowNodes(c echo.Context, id int64) error {
	ctx := c.Request().Context()

	var req SaveNodesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	detail, err := s.Workflows.SaveNodes(ctx, auth.OwnerFromContext(ctx), id, req.AgentIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail)
}

// ExecuteWorkflow runs every node and returns all replies
// (POST /api/v1/workflows/{id}/execute)
func (s *Server) ExecuteWorkflow(c echo.Context, id int64) error {
	ctx := c.Request().Context()

	var req models.ExecutionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	result, err := s.Executor.Execute(ctx, auth.OwnerFromContext(ctx), id, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
