// Package mcp exposes workflows as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"agentchain/backend/internal/auth"
	"agentchain/backend/internal/logging"
	"agentchain/backend/pkg/models"
)

// WorkflowReader lists and loads the caller's workflows.
type WorkflowReader interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*models.WorkflowDetail, error)
	GetDetail(ctx context.Context, ownerID string, id int64) (*models.WorkflowDetail, error)
}

// WorkflowExecutor runs workflows.
type WorkflowExecutor interface {
	Execute(ctx context.Context, ownerID string, workflowID int64, req *models.ExecutionRequest) (*models.ExecutionResult, error)
}

type Server struct {
	mcpServer *server.MCPServer
	workflows WorkflowReader
	executor  WorkflowExecutor
	logger    *logging.Logger
}

func NewServer(workflows WorkflowReader, executor WorkflowExecutor, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Agentchain Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
		executor:  executor,
		logger:    logger.With("component", "mcp"),
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List your workflows, most recently updated first"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_workflow",
			mcp.WithDescription("Get a workflow and its agent ids in node order"),
			mcp.WithNumber("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
		),
		s.handleGetWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_workflow",
			mcp.WithDescription("Run every node of a workflow in order and return all replies"),
			mcp.WithNumber("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow")),
			mcp.WithString("input", mcp.Required(), mcp.Description("Message for the first node")),
			mcp.WithArray("node_inputs",
				mcp.Description("Optional extra text per node, index aligned with the nodes; index 0 is ignored"),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithString("session_id", mcp.Description("Session token shared by every node; generated when omitted")),
		),
		s.handleExecuteWorkflow,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflows, err := s.workflows.ListByOwner(ctx, auth.OwnerFromContext(ctx))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}
	return jsonResult(workflows)
}

func (s *Server) handleGetWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	id, ok := workflowID(args)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}

	detail, err := s.workflows.GetDetail(ctx, auth.OwnerFromContext(ctx), id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get workflow: %v", err)), nil
	}
	return jsonResult(detail)
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	id, ok := workflowID(args)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	input, ok := args["input"].(string)
	if !ok || input == "" {
		return mcp.NewToolResultError("Missing required parameter: input"), nil
	}

	req := &models.ExecutionRequest{Input: input}
	if sessionID, ok := args["session_id"].(string); ok {
		req.SessionID = sessionID
	}
	if raw, ok := args["node_inputs"].([]interface{}); ok {
		req.NodeInputs = make([]string, len(raw))
		for i, v := range raw {
			text, ok := v.(string)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("node_inputs[%d] must be a string", i)), nil
			}
			req.NodeInputs[i] = text
		}
	}

	result, err := s.executor.Execute(ctx, auth.OwnerFromContext(ctx), id, req)
	if err != nil {
		s.logger.Debug("tool execution failed", "workflow_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to execute workflow: %v", err)), nil
	}
	return jsonResult(result)
}

// workflowID accepts the JSON number form of an integer id.
func workflowID(args map[string]interface{}) (int64, bool) {
	v, ok := args["workflow_id"].(float64)
	if !ok || v != float64(int64(v)) || v <= 0 {
		return 0, false
	}
	return int64(v), true
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers registers the SSE transport under /mcp. The owner set by
// the auth middleware on the HTTP request is carried into tool calls.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer,
		server.WithStaticBasePath("/mcp"),
		server.WithSSEContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return auth.WithOwner(ctx, auth.OwnerFromContext(r.Context()))
		}),
	)

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
