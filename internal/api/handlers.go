package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"agentchain/backend/internal/agentchat"
	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/services"
	"agentchain/backend/pkg/models"
)

const (
	serviceName    = "agentchain"
	serviceVersion = "1.0.0"
)

// Pinger reports database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains the operational HTTP handlers
type Handler struct {
	db     Pinger
	logger *logging.Logger
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(db Pinger, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{db: db, logger: logger}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Database  string    `json:"database"`
}

// HandleHealth returns 200 when the database answers a ping, 503 otherwise.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   serviceName,
		Version:   serviceVersion,
		Database:  "ok",
	}
	code := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		status.Status = "degraded"
		status.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
	// NodeIndex and AgentID identify the failing node of an execution.
	NodeIndex *int   `json:"node_index,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
}

// statusFor maps domain errors to HTTP status codes. A failed execution is
// reported with the status of its cause when the cause is a domain error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAgentNotPublished):
		return http.StatusConflict
	}
	var execErr *services.ExecutionError
	var transportErr *agentchat.TransportError
	if errors.As(err, &execErr) || errors.As(err, &transportErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func asHTTPError(err error, target **echo.HTTPError) bool {
	return errors.As(err, target)
}

// NewHTTPErrorHandler renders every handler error as problem+json and logs
// server side failures.
func NewHTTPErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		problem := ProblemDetails{
			Type:     "about:blank",
			Instance: c.Request().URL.Path,
		}
		var he *echo.HTTPError
		if asHTTPError(err, &he) {
			problem.Status = he.Code
			problem.Detail = fmt.Sprint(he.Message)
		} else {
			problem.Status = statusFor(err)
			problem.Detail = err.Error()
		}

		var execErr *services.ExecutionError
		if errors.As(err, &execErr) {
			idx := execErr.NodeIndex
			problem.NodeIndex = &idx
			problem.AgentID = execErr.AgentID
		}

		if problem.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", problem.Status,
				"error", err)
			if problem.Status == http.StatusInternalServerError && he == nil {
				problem.Detail = "internal server error"
			}
		}
		problem.Title = http.StatusText(problem.Status)

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(problem.Status)
			return
		}
		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		c.Response().WriteHeader(problem.Status)
		if err := json.NewEncoder(c.Response()).Encode(problem); err != nil {
			logger.Error("failed to write problem response", "error", err)
		}
	}
}
