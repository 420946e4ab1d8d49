package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"agentchain/backend/internal/logging"
	"agentchain/backend/internal/repository"
	"agentchain/backend/pkg/models"
)

const instrumentationName = "agentchain/backend/internal/services"

// ExecutionError reports the node that aborted a run. Err is the cause:
// a domain sentinel, a transport failure or a context error.
type ExecutionError struct {
	NodeIndex int
	AgentID   string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("node %d (agent %s) failed: %v", e.NodeIndex, e.AgentID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Executor runs a workflow's nodes in order, feeding each node's reply into
// the next one. A run either completes every node or returns an error.
type Executor struct {
	store        repository.WorkflowStore
	agents       repository.AgentRegistry
	chat         ChatClient
	logger       *logging.Logger
	metrics      *executorMetrics
	newSessionID func() string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMeter records execution metrics on meter instead of the global provider.
func WithMeter(meter metric.Meter) ExecutorOption {
	return func(e *Executor) {
		e.metrics = newExecutorMetrics(meter, e.logger)
	}
}

// NewExecutor creates a new Executor.
func NewExecutor(store repository.WorkflowStore, agents repository.AgentRegistry, chat ChatClient, logger *logging.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Executor{
		store:        store,
		agents:       agents,
		chat:         chat,
		logger:       logger.With("component", "executor"),
		newSessionID: NewSessionID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newExecutorMetrics(otel.Meter(instrumentationName), e.logger)
	}
	return e
}

// Execute runs the workflow owned by ownerID. The node list is read once;
// agents are re-resolved for every node so a status change takes effect on
// the next run. Cancelling ctx aborts the node in flight and the rest of the
// chain.
func (e *Executor) Execute(ctx context.Context, ownerID string, workflowID int64, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	start := time.Now()
	result, err := e.execute(ctx, ownerID, workflowID, req)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		e.logger.Warn("workflow execution failed", "workflow_id", workflowID, "error", err)
	} else {
		e.logger.Info("workflow executed",
			"workflow_id", workflowID,
			"session_id", result.SessionID,
			"nodes", len(result.NodeResults),
			"duration", time.Since(start))
	}
	e.metrics.executions.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return result, err
}

func (e *Executor) execute(ctx context.Context, ownerID string, workflowID int64, req *models.ExecutionRequest) (*models.ExecutionResult, error) {
	detail, err := ownedDetail(ctx, e.store, ownerID, workflowID)
	if err != nil {
		return nil, err
	}
	if len(detail.AgentIDs) == 0 {
		return nil, fmt.Errorf("%w: workflow has no nodes", models.ErrValidation)
	}
	if req == nil || strings.TrimSpace(req.Input) == "" {
		return nil, fmt.Errorf("%w: input is required", models.ErrValidation)
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = e.newSessionID()
	}

	results := make([]models.NodeResult, 0, len(detail.AgentIDs))
	var previous string
	for idx, agentID := range detail.AgentIDs {
		message := strings.TrimSpace(req.Input)
		if idx > 0 {
			message = Combine(previous, req.NodeInput(idx))
		}
		output, err := e.runNode(ctx, idx, agentID, sessionID, message)
		if err != nil {
			return nil, &ExecutionError{NodeIndex: idx, AgentID: agentID, Err: err}
		}
		results = append(results, models.NodeResult{AgentID: agentID, Output: output})
		previous = output
	}

	return &models.ExecutionResult{
		WorkflowID:  workflowID,
		SessionID:   sessionID,
		NodeResults: results,
		Output:      previous,
	}, nil
}

func (e *Executor) runNode(ctx context.Context, idx int, agentID, sessionID, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	agent, err := e.agents.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	if !agent.IsPublished() {
		return "", fmt.Errorf("%w: %s", models.ErrAgentNotPublished, agentID)
	}

	payload := &models.ChatPayload{
		Message:        message,
		ModelID:        agent.Model,
		SessionID:      sessionID,
		KnowledgeBases: agent.KnowledgeBaseRefs(),
		Tools:          agent.ToolRefs(),
		History:        []map[string]any{},
	}

	e.logger.Debug("calling agent", "node_index", idx, "agent_id", agentID, "session_id", sessionID)
	start := time.Now()
	output, err := e.chat.ChatOnce(ctx, payload)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	mctx := context.WithoutCancel(ctx)
	e.metrics.nodeCalls.Add(mctx, 1, attrs)
	e.metrics.nodeDuration.Record(mctx, time.Since(start).Seconds(), attrs)
	return output, err
}

// Combine joins the previous node's reply with supplementary input. Both
// sides are trimmed; a blank side is dropped.
func Combine(previous, extra string) string {
	previous = strings.TrimSpace(previous)
	extra = strings.TrimSpace(extra)
	switch {
	case previous == "":
		return extra
	case extra == "":
		return previous
	default:
		return previous + "\n\n" + extra
	}
}

// NewSessionID returns a random 32 character hex token.
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

type executorMetrics struct {
	executions   metric.Int64Counter
	nodeCalls    metric.Int64Counter
	nodeDuration metric.Float64Histogram
}

// newExecutorMetrics falls back to no-op instruments when the meter rejects
// a definition.
func newExecutorMetrics(meter metric.Meter, logger *logging.Logger) *executorMetrics {
	m, err := buildExecutorMetrics(meter)
	if err != nil {
		logger.Warn("failed to create executor metrics", "error", err)
		m, _ = buildExecutorMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return m
}

func buildExecutorMetrics(meter metric.Meter) (*executorMetrics, error) {
	m := &executorMetrics{}
	var err error

	m.executions, err = meter.Int64Counter("workflow.execution.total",
		metric.WithDescription("Total number of workflow executions"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	m.nodeCalls, err = meter.Int64Counter("workflow.node.call.total",
		metric.WithDescription("Total number of agent chat calls made by workflow nodes"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	m.nodeDuration, err = meter.Float64Histogram("workflow.node.duration",
		metric.WithDescription("Agent chat call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120))
	if err != nil {
		return nil, err
	}

	return m, nil
}
