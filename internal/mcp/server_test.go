package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentchain/backend/internal/auth"
	"agentchain/backend/pkg/models"
)

type MockWorkflows struct {
	mock.Mock
}

func (m *MockWorkflows) ListByOwner(ctx context.Context, ownerID string) ([]*models.WorkflowDetail, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WorkflowDetail), args.Error(1)
}

func (m *MockWorkflows) GetDetail(ctx context.Context, ownerID string, id int64) (*models.WorkflowDetail, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowDetail), args.Error(1)
}

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, ownerID string, workflowID int64, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	args := m.Called(ctx, ownerID, workflowID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ExecutionResult), args.Error(1)
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleExecuteWorkflow(t *testing.T) {
	workflows := new(MockWorkflows)
	executor := new(MockExecutor)
	s := NewServer(workflows, executor, nil)
	ctx := auth.WithOwner(context.Background(), "alice")

	executor.On("Execute", ctx, "alice", int64(4), &models.ExecutionRequest{
		Input:      "hello",
		NodeInputs: []string{"", "tone it down"},
		SessionID:  "s1",
	}).Return(&models.ExecutionResult{WorkflowID: 4, SessionID: "s1", Output: "done"}, nil)

	res, err := s.handleExecuteWorkflow(ctx, callRequest("execute_workflow", map[string]interface{}{
		"workflow_id": float64(4),
		"input":       "hello",
		"node_inputs": []interface{}{"", "tone it down"},
		"session_id":  "s1",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var got models.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "done", got.Output)
	executor.AssertExpectations(t)
}

func TestHandleExecuteWorkflow_BadArguments(t *testing.T) {
	s := NewServer(new(MockWorkflows), new(MockExecutor), nil)
	ctx := auth.WithOwner(context.Background(), "alice")

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing id", map[string]interface{}{"input": "x"}},
		{"fractional id", map[string]interface{}{"workflow_id": 1.5, "input": "x"}},
		{"missing input", map[string]interface{}{"workflow_id": float64(1)}},
		{"non string node input", map[string]interface{}{"workflow_id": float64(1), "input": "x", "node_inputs": []interface{}{1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleExecuteWorkflow(ctx, callRequest("execute_workflow", tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
		})
	}
}

func TestHandleGetWorkflow_ErrorBecomesToolError(t *testing.T) {
	workflows := new(MockWorkflows)
	s := NewServer(workflows, new(MockExecutor), nil)
	ctx := auth.WithOwner(context.Background(), "bob")
	workflows.On("GetDetail", ctx, "bob", int64(2)).Return(nil, models.ErrForbidden)

	res, err := s.handleGetWorkflow(ctx, callRequest("get_workflow", map[string]interface{}{"workflow_id": float64(2)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "forbidden")
}

func TestHandleListWorkflows(t *testing.T) {
	workflows := new(MockWorkflows)
	s := NewServer(workflows, new(MockExecutor), nil)
	ctx := auth.WithOwner(context.Background(), "alice")
	workflows.On("ListByOwner", ctx, "alice").Return([]*models.WorkflowDetail{
		{Workflow: &models.Workflow{ID: 1, OwnerID: "alice", Name: "chain"}, AgentIDs: []string{}},
	}, nil)

	res, err := s.handleListWorkflows(ctx, callRequest("list_workflows", nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"name":"chain"`)
}
