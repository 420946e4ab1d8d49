package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"agentchain/backend/internal/agentchat"
	"agentchain/backend/pkg/models"
)

func newTestExecutor() (*Executor, *MockStore, *MockAgents, *MockChat) {
	store := new(MockStore)
	agents := new(MockAgents)
	chat := new(MockChat)
	return NewExecutor(store, agents, chat, nil), store, agents, chat
}

func payloadFor(message, model, session string) interface{} {
	return mock.MatchedBy(func(p *models.ChatPayload) bool {
		return p.Message == message && p.ModelID == model && p.SessionID == session
	})
}

func TestExecutor_ThreeNodesInOrder(t *testing.T) {
	exec, store, agents, chat := newTestExecutor()
	ctx := context.Background()

	store.On("GetWorkflowDetail", ctx, int64(1)).Return(detailWith(1, "alice", "a1", "a2", "a3"), nil)
	agents.On("GetAgent", ctx, "a1").Return(publishedAgent("a1", "m1"), nil)
	agents.On("GetAgent", ctx, "a2").Return(publishedAgent("a2", "m2"), nil)
	agents.On("GetAgent", ctx, "a3").Return(publishedAgent("a3", "m3"), nil)

	chat.On("ChatOnce", ctx, payloadFor("draft a haiku", "m1", "sess")).Return(" first ", nil).Once()
	chat.On("ChatOnce", ctx, payloadFor("first\n\nmake it sadder", "m2", "sess")).Return("second", nil).Once()
	chat.On("ChatOnce", ctx, payloadFor("second", "m3", "sess")).Return("third", nil).Once()

	result, err := exec.Execute(ctx, "alice", 1, &models.ExecutionRequest{
		Input:      "  draft a haiku ",
		NodeInputs: []string{"ignored for node zero", "make it sadder", "   "},
		SessionID:  " sess ",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.WorkflowID)
	assert.Equal(t, "sess", result.SessionID)
	assert.Equal(t, []models.NodeResult{
		{AgentID: "a1", Output: " first "},
		{AgentID: "a2", Output: "second"},
		{AgentID: "a3", Output: "third"},
	}, result.NodeResults)
	assert.Equal(t, "third", result.Output)
	chat.AssertExpectations(t)
}

func TestExecutor_PayloadCarriesAgentReferences(t *testing.T) {
	exec, store, agents, chat := newTestExecutor()
	ctx := context.Background()

	agent := &models.Agent{
		ID:             "a1",
		Model:          "qwen",
		Status:         " Published ",
		Plugins:        `["weather","search"]`,
		KnowledgeBases: `not json`,
	}
	store.On("GetWorkflowDetail", ctx, int64(1)).Return(detailWith(1, "alice", "a1"), nil)
	agents.On("GetAgent", ctx, "a1").Return(agent, nil)

	var sent *models.ChatPayload
	chat.On("ChatOnce", ctx, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*models.ChatPayload)
	}).Return("ok", nil)

	_, err := exec.Execute(ctx, "alice", 1, &models.ExecutionRequest{Input: "hi"})
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, []string{"weather", "search"}, sent.Tools)
	assert.Equal(t, []string{}, sent.KnowledgeBases)
	assert.NotNil(t, sent.History)
	assert.Empty(t, sent.History)
}

func TestExecutor_GeneratesOneSessionPerRun(t *testing.T) {
	exec, store, agents, chat := newTestExecutor()
	ctx := context.Background()

	store.On("GetWorkflowDetail", ctx, int64(1)).Return(detailWith(1, "alice", "a1", "a2"), nil)
	agents.On("GetAgent", ctx, mock.Anything).Return(publishedAgent("a", "m"), nil)

	var sessions []string
	chat.On("ChatOnce", ctx, mock.Anything).Run(func(args mock.Arguments) {
		sessions = append(sessions, args.Get(1).(*models.ChatPayload).SessionID)
	}).Return("out", nil)

	result, err := exec.Execute(ctx, "alice", 1, &models.ExecutionRequest{Input: "go"})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), result.SessionID)
	assert.Equal(t, []string{result.SessionID, result.SessionID}, sessions)
}

func TestExecutor_TransportFailureAbortsChain(t *testing.T) {
	exec, store, agents, chat := newTestExecutor()
	ctx := context.Background()

	store.On("GetWorkflowDetail", ctx, int64(1)).Return(detailWith(1, "alice", "a1", "a2", "a3"), nil)
	agents.On("GetAgent", ctx, mock.Anything).Return(publishedAgent("a", "m"), nil)
	chat.On("ChatOnce", ctx, payloadFor("in", "m", "s")).Return("one", nil).Once()
	chat.On("ChatOnce", ctx, payloadFor("one", "m", "s")).
		Return("", &agentchat.TransportError{StatusCode: 500, Body: "boom"}).Once()

	result, err := exec.Execute(ctx, "alice", 1, &models.ExecutionRequest{Input: "in", SessionID: "s"})
	assert.Nil(t, result)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.NodeIndex)
	assert.Equal(t, "a2", execErr.AgentID)

	var transportErr *agentchat.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 500, transportErr.StatusCode)

	chat.AssertNumberOfCalls(t, "ChatOnce", 2)
}

func TestExecutor_AgentProblemsAbortAtNode(t *testing.T) {
	tests := []struct {
		name    string
		agent   *models.Agent
		lookErr error
		wantErr error
	}{
		{name: "missing agent", lookErr: models.ErrNotFound, wantErr: models.ErrNotFound},
		{name: "unpublished agent", agent: &models.Agent{ID: "a2", Status: models.AgentStatusDraft}, wantErr: models.ErrAgentNotPublished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, store, agents, chat := newTestExecutor()
			ctx := context.Background()

			store.On("GetWorkflowDetail", ctx, int64(1)).Return(detailWith(1, "alice", "a1", "a2"), nil)
			agents.On("GetAgent", ctx, "a1").Return(publishedAgent("a1", "m"), nil)
			if tt.agent != nil {
				agents.On("GetAgent", ctx, "a2").Return(tt.agent, nil)
			} else {
				agents.On("GetAgent", ctx, "a2").Return(nil, tt.lookErr)
			}
			chat.On("ChatOnce", ctx, mock.Anything).Return("one", nil).Once()

			_, err := exec.Execute(ctx, "alice", 1, &models.ExecutionRequest{Input: "in"})

			var execErr *ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, 1, execErr.NodeIndex)
			assert.ErrorIs(t, err, tt.wantErr)
			chat.AssertNumberOfCalls(t, "ChatOnce", 1)
		})
	}
}

func TestExecutor_RejectsBeforeCallingAgents(t *testing.T) {
	tests := []struct {
		name    string
		owner   string
		detail  *models.WorkflowDetail
		findErr error
		req     *models.ExecutionRequest
		wantErr error
	}{
		{name: "no owner", owner: "", req: &models.ExecutionRequest{Input: "x"}, wantErr: models.ErrUnauthenticated},
		{name: "not found", owner: "alice", findErr: models.ErrNotFound, req: &models.ExecutionRequest{Input: "x"}, wantErr: models.ErrNotFound},
		{name: "foreign workflow", owner: "bob", detail: detailWith(1, "alice", "a1"), req: &models.ExecutionRequest{Input: "x"}, wantErr: models.ErrForbidden},
		{name: "no nodes", owner: "alice", detail: detailWith(1, "alice"), req: &models.ExecutionRequest{Input: "x"}, wantErr: models.ErrValidation},
		{name: "blank input", owner: "alice", detail: detailWith(1, "alice", "a1"), req: &models.ExecutionRequest{Input: " \n "}, wantErr: models.ErrValidation},
		{name: "nil request", owner: "alice", detail: detailWith(1, "alice", "a1"), wantErr: models.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, store, agents, chat := newTestExecutor()
			if tt.detail != nil {
				store.On("GetWorkflowDetail", mock.Anything, int64(1)).Return(tt.detail, nil)
			} else {
				store.On("GetWorkflowDetail", mock.Anything, int64(1)).Return(nil, tt.findErr)
			}

			result, err := exec.Execute(context.Background(), tt.owner, 1, tt.req)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.wantErr)

			var execErr *ExecutionError
			assert.False(t, errors.As(err, &execErr))
			agents.AssertNotCalled(t, "GetAgent", mock.Anything, mock.Anything)
			chat.AssertNotCalled(t, "ChatOnce", mock.Anything, mock.Anything)
		})
	}
}

func TestExecutor_CancellationAbortsRemainingNodes(t *testing.T) {
	exec, store, agents, chat := newTestExecutor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.On("GetWorkflowDetail", mock.Anything, int64(1)).Return(detailWith(1, "alice", "a1", "a2"), nil)
	agents.On("GetAgent", mock.Anything, mock.Anything).Return(publishedAgent("a", "m"), nil)
	chat.On("ChatOnce", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return("one", nil).Once()

	_, err := exec.Execute(ctx, "alice", 1, &models.ExecutionRequest{Input: "in"})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.NodeIndex)
	assert.ErrorIs(t, err, context.Canceled)
	chat.AssertNumberOfCalls(t, "ChatOnce", 1)
}

func TestExecutor_ConcurrentRunsAreIndependent(t *testing.T) {
	store := new(MockStore)
	agents := new(MockAgents)
	var calls atomic.Int64
	chat := chatFunc(func(_ context.Context, p *models.ChatPayload) (string, error) {
		calls.Add(1)
		return strings.ToUpper(p.Message), nil
	})
	exec := NewExecutor(store, agents, chat, nil)

	store.On("GetWorkflowDetail", mock.Anything, int64(1)).Return(detailWith(1, "alice", "a1", "a2"), nil)
	agents.On("GetAgent", mock.Anything, mock.Anything).Return(publishedAgent("a", "m"), nil)

	const runs = 16
	results := make([]*models.ExecutionResult, runs)
	var g errgroup.Group
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			res, err := exec.Execute(context.Background(), "alice", 1, &models.ExecutionRequest{
				Input:      fmt.Sprintf("run %d", i),
				NodeInputs: []string{"", "tail"},
			})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	sessions := map[string]bool{}
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("RUN %d\n\nTAIL", i), res.Output)
		sessions[res.SessionID] = true
	}
	assert.Len(t, sessions, runs)
	assert.Equal(t, int64(2*runs), calls.Load())
}

type chatFunc func(ctx context.Context, p *models.ChatPayload) (string, error)

func (f chatFunc) ChatOnce(ctx context.Context, p *models.ChatPayload) (string, error) {
	return f(ctx, p)
}

func TestCombine(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "", ""},
		{"  ", "\t", ""},
		{"", " extra ", "extra"},
		{" prev ", "", "prev"},
		{" prev ", " extra ", "prev\n\nextra"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Combine(tt.a, tt.b), "Combine(%q, %q)", tt.a, tt.b)
	}
}

func TestCombineProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.StringMatching(`[ \t\n]{0,3}[a-z ]{0,10}[ \t\n]{0,3}`).Draw(rt, "a")
		b := rapid.StringMatching(`[ \t\n]{0,3}[a-z ]{0,10}[ \t\n]{0,3}`).Draw(rt, "b")
		got := Combine(a, b)
		ta, tb := strings.TrimSpace(a), strings.TrimSpace(b)

		if got != strings.TrimSpace(got) {
			rt.Fatalf("result %q is not trimmed", got)
		}
		switch {
		case ta == "" && tb == "":
			if got != "" {
				rt.Fatalf("want empty, got %q", got)
			}
		case ta != "" && tb != "":
			if got != ta+"\n\n"+tb {
				rt.Fatalf("got %q", got)
			}
		default:
			if got != ta+tb {
				rt.Fatalf("got %q", got)
			}
		}
	})
}

func TestNewSessionID(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "-")
}
