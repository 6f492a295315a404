package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxd/internal/core"
	"github.com/fyrsmithlabs/voxd/internal/executor"
)

// stubCompleter returns a canned response and records the prompt.
type stubCompleter struct {
	response string
	err      error
	prompts  []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestRouter(t *testing.T, c Completer) *Service {
	t.Helper()
	svc, err := NewWithCompleter(Config{RequestsPerSecond: 0}, c, nil)
	require.NoError(t, err)
	return svc
}

func TestRouteLaunchDecision(t *testing.T) {
	stub := &stubCompleter{response: `{
		"status": "ok",
		"intent": "launch",
		"confidence": {"score": 0.9, "label": "high"},
		"plan": {
			"explanation": "Fix the failing login test",
			"steps": [{"cmd": "fix the login test"}]
		}
	}`}
	svc := newTestRouter(t, stub)

	resp, err := svc.Route(context.Background(), "fix the login test", core.RouterContext{})
	require.NoError(t, err)
	assert.Equal(t, core.ActionLaunchClaude, resp.Action)
	assert.Equal(t, "Fix the failing login test", resp.Prompt)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
}

func TestRouteDenyBecomesCannotParse(t *testing.T) {
	stub := &stubCompleter{response: `{"status": "deny", "reason": "not a coding task"}`}
	svc := newTestRouter(t, stub)

	resp, err := svc.Route(context.Background(), "what time is it", core.RouterContext{})
	require.NoError(t, err)
	assert.Equal(t, core.ActionCannotParse, resp.Action)
	assert.Equal(t, "not a coding task", resp.Reason)
}

func TestRouteQueryIntent(t *testing.T) {
	stub := &stubCompleter{response: `{"status": "ok", "intent": "query"}`}
	svc := newTestRouter(t, stub)

	resp, err := svc.Route(context.Background(), "how is it going",
		core.RouterContext{SessionActive: true, ExecutorType: executor.TypeClaude})
	require.NoError(t, err)
	assert.Equal(t, core.ActionQueryExecutor, resp.Action)
}

func TestRouteOkWithoutPlanIsPlanInvalid(t *testing.T) {
	stub := &stubCompleter{response: `{"status": "ok"}`}
	svc := newTestRouter(t, stub)

	_, err := svc.Route(context.Background(), "fix it", core.RouterContext{})
	require.Error(t, err)
	assert.Equal(t, core.ErrKindPlanInvalid, core.KindOf(err, core.ErrKindRouting))
}

func TestRouteMalformedResponseIsRoutingFailure(t *testing.T) {
	stub := &stubCompleter{response: "I'd be happy to help with that!"}
	svc := newTestRouter(t, stub)

	_, err := svc.Route(context.Background(), "fix it", core.RouterContext{})
	require.Error(t, err)
	assert.Equal(t, core.ErrKindRouting, core.KindOf(err, core.ErrKindPlanInvalid))
}

func TestRouteModelFailureIsRoutingFailure(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	svc := newTestRouter(t, stub)

	_, err := svc.Route(context.Background(), "fix it", core.RouterContext{})
	require.Error(t, err)

	var oe *core.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, core.ErrKindRouting, oe.Kind)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRoutePromptFallsBackToUserText(t *testing.T) {
	stub := &stubCompleter{response: `{"status": "ok", "plan": {"steps": [{"cmd": "do it"}]}}`}
	svc := newTestRouter(t, stub)

	resp, err := svc.Route(context.Background(), "fix the thing", core.RouterContext{})
	require.NoError(t, err)
	assert.Equal(t, "fix the thing", resp.Prompt)
}

func TestPromptMentionsActiveSession(t *testing.T) {
	stub := &stubCompleter{response: `{"status": "ok", "intent": "query"}`}
	svc := newTestRouter(t, stub)

	_, err := svc.Route(context.Background(), "progress?",
		core.RouterContext{SessionActive: true, ExecutorType: executor.TypeClaude, WorkingDir: "/work/repo"})
	require.NoError(t, err)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "claude session is currently running")
	assert.Contains(t, stub.prompts[0], "/work/repo")
	assert.Contains(t, stub.prompts[0], "progress?")
}

func TestRouteIsIdempotentForSameText(t *testing.T) {
	stub := &stubCompleter{response: `{"status": "ok", "plan": {"steps": [{"cmd": "do it"}]}}`}
	svc := newTestRouter(t, stub)

	first, err := svc.Route(context.Background(), "fix it", core.RouterContext{})
	require.NoError(t, err)
	second, err := svc.Route(context.Background(), "fix it", core.RouterContext{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewWithCompleterValidates(t *testing.T) {
	_, err := NewWithCompleter(Config{}, nil, nil)
	assert.Error(t, err)
}
