package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/voxd/internal/executor"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
	"github.com/fyrsmithlabs/voxd/internal/session"
)

// MockRouter is a mock implementation of Router.
type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) Route(ctx context.Context, text string, rc RouterContext) (*RouteResponse, error) {
	args := m.Called(ctx, text, rc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RouteResponse), args.Error(1)
}

// MockStore is a mock implementation of SessionStore.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveSession(ctx context.Context, sc *session.Context) error {
	args := m.Called(ctx, sc)
	return args.Error(0)
}

func (m *MockStore) LoadSession(ctx context.Context, id uuid.UUID) (*session.Context, []session.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*session.Context), args.Get(1).([]session.Event), args.Error(2)
}

func (m *MockStore) ListSessions(ctx context.Context, userID string) ([]session.Metadata, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]session.Metadata), args.Error(1)
}

func (m *MockStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) AppendEvent(ctx context.Context, id uuid.UUID, e session.Event) error {
	args := m.Called(ctx, id, e)
	return args.Error(0)
}

func (m *MockStore) SessionExists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// recordingOutbound captures outbound messages. Safe for the relay
// goroutine and the test goroutine to use concurrently.
type recordingOutbound struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recordingOutbound) Deliver(_ context.Context, msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingOutbound) messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recordingOutbound) kinds() []protocol.Kind {
	msgs := r.messages()
	kinds := make([]protocol.Kind, len(msgs))
	for i, m := range msgs {
		kinds[i] = m.Kind
	}
	return kinds
}

func (r *recordingOutbound) findKind(kind protocol.Kind) (protocol.Message, bool) {
	for _, m := range r.messages() {
		if m.Kind == kind {
			return m, true
		}
	}
	return protocol.Message{}, false
}

// stubFactory launches a preconfigured session.
type stubFactory struct {
	mu        sync.Mutex
	session   executor.Session
	launchErr error
	launches  int
}

func (f *stubFactory) IsAvailable(t executor.Type) bool { return true }

func (f *stubFactory) Launch(_ context.Context, t executor.Type, _ string, _ executor.Config) (executor.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches++
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	if f.session != nil {
		return f.session, nil
	}
	return executor.NewScriptedSession(t, nil), nil
}

func launchResponse(prompt string) *RouteResponse {
	return &RouteResponse{Action: ActionLaunchClaude, Prompt: prompt, Confidence: 0.9}
}

type fixture struct {
	core     *Core
	router   *MockRouter
	store    *MockStore
	outbound *recordingOutbound
	factory  *stubFactory
	inbound  chan protocol.Message
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	router := &MockRouter{}
	store := &MockStore{}
	store.On("AppendEvent", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("SaveSession", mock.Anything, mock.Anything).Return(nil).Maybe()
	outbound := &recordingOutbound{}
	factory := &stubFactory{}

	c, err := New(router, factory, outbound, store, nil, nil, opts, nil)
	require.NoError(t, err)

	inbound := make(chan protocol.Message, 16)
	c.BindInbound(func(msg protocol.Message) { inbound <- msg })

	return &fixture{core: c, router: router, store: store, outbound: outbound, factory: factory, inbound: inbound}
}

// waitInbound receives the next relay-enqueued message.
func (f *fixture) waitInbound(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-f.inbound:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay message")
		return protocol.Message{}
	}
}

func TestNewValidatesDependencies(t *testing.T) {
	outbound := &recordingOutbound{}
	store := &MockStore{}
	factory := &stubFactory{}
	router := &MockRouter{}

	_, err := New(nil, factory, outbound, store, nil, nil, Options{}, nil)
	assert.Error(t, err)
	_, err = New(router, nil, outbound, store, nil, nil, Options{}, nil)
	assert.Error(t, err)
	_, err = New(router, factory, nil, store, nil, nil, Options{}, nil)
	assert.Error(t, err)
	_, err = New(router, factory, outbound, nil, nil, nil, Options{}, nil)
	assert.Error(t, err)

	c, err := New(router, factory, outbound, store, nil, nil, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeIdle, c.Mode())
}

func TestNonRoutableTextNeverRoutes(t *testing.T) {
	f := newFixture(t, Options{})

	msg := protocol.UserText("just thinking out loud", "tui", false)
	require.NoError(t, f.core.Handle(context.Background(), msg))

	assert.Equal(t, ModeIdle, f.core.Mode())
	f.router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything, mock.Anything)

	// Still echoed to observers.
	msgs := f.outbound.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.KindUserText, msgs[0].Kind)
	assert.Equal(t, "just thinking out loud", msgs[0].Text)
}

func TestConfirmationAcceptedLaunches(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	assert.Equal(t, ModeConfirmingExecutor, f.core.Mode())

	req, ok := f.outbound.findKind(protocol.KindConfirmationRequest)
	require.True(t, ok)
	require.NotEmpty(t, req.ConfirmationID)
	_, ok = f.outbound.findKind(protocol.KindPlanPending)
	assert.True(t, ok)

	require.NoError(t, f.core.Handle(context.Background(), protocol.ConfirmationResponse(req.ConfirmationID, true)))
	assert.Equal(t, ModeExecutorRunning, f.core.Mode())
	assert.Nil(t, f.core.Pending())
	assert.Equal(t, 1, f.factory.launches)
}

func TestConfirmationDeclinedReturnsToIdle(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	req, ok := f.outbound.findKind(protocol.KindConfirmationRequest)
	require.True(t, ok)

	require.NoError(t, f.core.Handle(context.Background(), protocol.ConfirmationResponse(req.ConfirmationID, false)))
	assert.Equal(t, ModeIdle, f.core.Mode())
	assert.Nil(t, f.core.Pending())
	assert.Equal(t, 0, f.factory.launches)

	status, ok := f.outbound.findKind(protocol.KindStatus)
	require.True(t, ok)
	assert.Equal(t, "canceled", status.Text)
}

func TestZeroOptionsGateLaunches(t *testing.T) {
	// The zero Options value must not bypass the confirmation gate.
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	assert.Equal(t, ModeConfirmingExecutor, f.core.Mode())
	assert.Equal(t, 0, f.factory.launches)
}

func TestRoutingFailureKeepsStagedConfirmation(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, "fix it", mock.Anything).Return(launchResponse("fix it"), nil).Once()
	f.router.On("Route", mock.Anything, "garbled", mock.Anything).
		Return(nil, fmt.Errorf("upstream timeout")).Once()

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	req, ok := f.outbound.findKind(protocol.KindConfirmationRequest)
	require.True(t, ok)

	// An unrelated utterance fails to route; the prompt on screen is still
	// the user's to answer.
	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("garbled", "tui", true)))
	assert.Equal(t, ModeConfirmingExecutor, f.core.Mode())
	require.NotNil(t, f.core.Pending())

	require.NoError(t, f.core.Handle(context.Background(), protocol.ConfirmationResponse(req.ConfirmationID, true)))
	assert.Equal(t, ModeExecutorRunning, f.core.Mode())
	assert.Equal(t, 1, f.factory.launches)
}

func TestMismatchedConfirmationIgnored(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	require.Equal(t, ModeConfirmingExecutor, f.core.Mode())
	pending := f.core.Pending()
	require.NotNil(t, pending)

	require.NoError(t, f.core.Handle(context.Background(), protocol.ConfirmationResponse("not-the-right-id", true)))
	assert.Equal(t, ModeConfirmingExecutor, f.core.Mode())
	assert.Same(t, pending, f.core.Pending())
	assert.Equal(t, 0, f.factory.launches)
}

func TestStaleConfirmationAfterClearIgnored(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	req, _ := f.outbound.findKind(protocol.KindConfirmationRequest)

	require.NoError(t, f.core.Handle(context.Background(), protocol.Cancel()))
	assert.Equal(t, ModeIdle, f.core.Mode())

	// The original answer arrives too late; nothing happens.
	require.NoError(t, f.core.Handle(context.Background(), protocol.ConfirmationResponse(req.ConfirmationID, true)))
	assert.Equal(t, ModeIdle, f.core.Mode())
	assert.Equal(t, 0, f.factory.launches)
}

func TestBusyRejectionWhileRunning(t *testing.T) {
	f := newFixture(t, Options{SkipConfirmation: true, ExecutorType: executor.TypeMock})
	f.factory.session = executor.NewScriptedSession(executor.TypeMock, []*executor.Output{
		{Kind: executor.OutputLine, Text: "working"},
		// No terminal output reachable before Terminate: keep running.
		{Kind: executor.OutputLine, Text: "still working"},
		{Kind: executor.OutputTerminated},
	})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	require.Equal(t, ModeExecutorRunning, f.core.Mode())

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("also do this", "tui", true)))
	assert.Equal(t, ModeExecutorRunning, f.core.Mode())

	errMsg, ok := f.outbound.findKind(protocol.KindError)
	require.True(t, ok)
	assert.Contains(t, errMsg.Reason, "busy")
}

func TestRouterFailureShowsErrorAndRecovers(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, "bad input", mock.Anything).
		Return(nil, fmt.Errorf("upstream timeout")).Once()
	f.router.On("Route", mock.Anything, "good input", mock.Anything).
		Return(&RouteResponse{Action: ActionCannotParse, Reason: "too vague"}, nil).Once()

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("bad input", "tui", true)))
	assert.Equal(t, ModeShowingError, f.core.Mode())
	errMsg, ok := f.outbound.findKind(protocol.KindError)
	require.True(t, ok)
	assert.Contains(t, errMsg.Reason, "upstream timeout")

	// The machine stays responsive: the next routable input is routed.
	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("good input", "tui", true)))
	f.router.AssertExpectations(t)
}

func TestCannotParseShowsError(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(&RouteResponse{Action: ActionCannotParse, Reason: "not a coding task"}, nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("what is the weather", "tui", true)))
	assert.Equal(t, ModeShowingError, f.core.Mode())

	errMsg, ok := f.outbound.findKind(protocol.KindError)
	require.True(t, ok)
	assert.Equal(t, "not a coding task", errMsg.Reason)
}

func TestQueryExecutorRequiresRunningSession(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(&RouteResponse{Action: ActionQueryExecutor}, nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("how is it going", "tui", true)))
	assert.Equal(t, ModeShowingError, f.core.Mode())
}

func TestQueryExecutorWhileRunning(t *testing.T) {
	f := newFixture(t, Options{SkipConfirmation: true, ExecutorType: executor.TypeMock})
	sess := executor.NewScriptedSession(executor.TypeMock, []*executor.Output{
		{Kind: executor.OutputLine, Text: "working"},
		{Kind: executor.OutputTerminated},
	})
	sess.SetStatus("2 files changed so far")
	f.factory.session = sess

	f.router.On("Route", mock.Anything, "fix it", mock.Anything).Return(launchResponse("fix it"), nil).Once()
	f.router.On("Route", mock.Anything, "how is it going", mock.Anything).
		Return(&RouteResponse{Action: ActionQueryExecutor}, nil).Once()

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	require.Equal(t, ModeExecutorRunning, f.core.Mode())

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("how is it going", "tui", true)))
	assert.Equal(t, ModeExecutorRunning, f.core.Mode())

	found := false
	for _, m := range f.outbound.messages() {
		if m.Kind == protocol.KindAssistantText && m.Text == "2 files changed so far" {
			found = true
		}
	}
	assert.True(t, found, "query result should be relayed as assistant text")
}

func TestExecutorUnavailableShowsError(t *testing.T) {
	f := newFixture(t, Options{SkipConfirmation: true, ExecutorType: executor.TypeMock})
	f.factory.launchErr = fmt.Errorf("claude: %w", executor.ErrUnavailable)
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	assert.Equal(t, ModeShowingError, f.core.Mode())

	_, ok := f.outbound.findKind(protocol.KindError)
	assert.True(t, ok)
}

func TestEndToEndWithoutConfirmation(t *testing.T) {
	f := newFixture(t, Options{SkipConfirmation: true, ExecutorType: executor.TypeMock})
	f.factory.session = executor.NewScriptedSession(executor.TypeMock, []*executor.Output{
		{Kind: executor.OutputLine, Text: "done"},
		{Kind: executor.OutputTerminated},
	})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(launchResponse("Fix the bug in the authentication system"), nil)

	msg := protocol.UserText("Fix the bug in the authentication system", "tui", true)
	require.NoError(t, f.core.Handle(context.Background(), msg))
	require.Equal(t, ModeExecutorRunning, f.core.Mode())

	ended := f.waitInbound(t)
	require.Equal(t, protocol.KindSessionEnded, ended.Kind)
	require.NoError(t, f.core.Handle(context.Background(), ended))

	assert.Equal(t, ModeIdle, f.core.Mode())

	// Outbound order: executor started, the relayed line, session end.
	var kinds []protocol.Kind
	var texts []string
	for _, m := range f.outbound.messages() {
		kinds = append(kinds, m.Kind)
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []protocol.Kind{protocol.KindStatus, protocol.KindAssistantText, protocol.KindStatus}, kinds)
	assert.Equal(t, "done", texts[1])
	assert.Equal(t, "session-ended", texts[2])

	f.store.AssertNumberOfCalls(t, "SaveSession", 1)
}

func TestCancelWhileRunningTerminates(t *testing.T) {
	f := newFixture(t, Options{SkipConfirmation: true, ExecutorType: executor.TypeMock})
	sess := executor.NewScriptedSession(executor.TypeMock, []*executor.Output{
		{Kind: executor.OutputLine, Text: "working"},
		{Kind: executor.OutputLine, Text: "still working"},
		{Kind: executor.OutputTerminated},
	})
	f.factory.session = sess
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).Return(launchResponse("fix it"), nil)

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))
	require.Equal(t, ModeExecutorRunning, f.core.Mode())

	require.NoError(t, f.core.Handle(context.Background(), protocol.Cancel()))
	assert.Equal(t, ModeIdle, f.core.Mode())
	assert.False(t, sess.IsRunning())
	f.store.AssertNumberOfCalls(t, "SaveSession", 1)
}

func TestFailureEmitsExactlyOneErrorMessage(t *testing.T) {
	f := newFixture(t, Options{ExecutorType: executor.TypeMock})
	f.router.On("Route", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("boom"))

	require.NoError(t, f.core.Handle(context.Background(), protocol.UserText("fix it", "tui", true)))

	count := 0
	for _, k := range f.outbound.kinds() {
		if k == protocol.KindError {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
