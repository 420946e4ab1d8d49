package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers of the workflow API.
type ServerInterface interface {
	// (GET /workflows)
	ListWorkflows(ctx echo.Context) error
	// (POST /workflows)
	CreateWorkflow(ctx echo.Context) error
	// (GET /workflows/{id})
	GetWorkflow(ctx echo.Context, id int64) error
	// (DELETE /workflows/{id})
	DeleteWorkflow(ctx echo.Context, id int64) error
	// (PUT /workflows/{id}/nodes)
	SaveWorkflowNodes(ctx echo.Context, id int64) error
	// (POST /workflows/{id}/execute)
	ExecuteWorkflow(ctx echo.Context, id int64) error
}

// ServerInterfaceWrapper converts echo contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// ListWorkflows converts echo context to params.
func (w *ServerInterfaceWrapper) ListWorkflows(ctx echo.Context) error {
	return w.Handler.ListWorkflows(ctx)
}

// CreateWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) CreateWorkflow(ctx echo.Context) error {
	return w.Handler.CreateWorkflow(ctx)
}

// GetWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) GetWorkflow(ctx echo.Context) error {
	id, err := bindWorkflowID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.GetWorkflow(ctx, id)
}

// DeleteWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) DeleteWorkflow(ctx echo.Context) error {
	id, err := bindWorkflowID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.DeleteWorkflow(ctx, id)
}

// SaveWorkflowNodes converts echo context to params.
func (w *ServerInterfaceWrapper) SaveWorkflowNodes(ctx echo.Context) error {
	id, err := bindWorkflowID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.SaveWorkflowNodes(ctx, id)
}

// ExecuteWorkflow converts echo context to params.
func (w *ServerInterfaceWrapper) ExecuteWorkflow(ctx echo.Context) error {
	id, err := bindWorkflowID(ctx)
	if err != nil {
		return err
	}
	return w.Handler.ExecuteWorkflow(ctx, id)
}

func bindWorkflowID(ctx echo.Context) (int64, error) {
	var id int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", ctx.Param("id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid format for parameter id: %s", err))
	}
	return id, nil
}

// EchoRouter is implemented by both *echo.Echo and *echo.Group.
type EchoRouter interface {
	CONNECT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	DELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	HEAD(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	OPTIONS(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PATCH(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	PUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	TRACE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// RegisterHandlers adds each server route to the EchoRouter.
func RegisterHandlers(router EchoRouter, si ServerInterface) {
	RegisterHandlersWithBaseURL(router, si, "")
}

// RegisterHandlersWithBaseURL registers handlers, and prepends BaseURL to the
// paths, so that the paths can be served under a prefix.
func RegisterHandlersWithBaseURL(router EchoRouter, si ServerInterface, baseURL string) {
	wrapper := ServerInterfaceWrapper{
		Handler: si,
	}

	router.GET(baseURL+"/workflows", wrapper.ListWorkflows)
	router.POST(baseURL+"/workflows", wrapper.CreateWorkflow)
	router.GET(baseURL+"/workflows/:id", wrapper.GetWorkflow)
	router.DELETE(baseURL+"/workflows/:id", wrapper.DeleteWorkflow)
	router.PUT(baseURL+"/workflows/:id/nodes", wrapper.SaveWorkflowNodes)
	router.POST(baseURL+"/workflows/:id/execute", wrapper.ExecuteWorkflow)
}
