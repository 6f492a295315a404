package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/executor"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
	"github.com/fyrsmithlabs/voxd/internal/session"
)

// Mode is the orchestrator's single discrete state.
type Mode string

const (
	ModeIdle               Mode = "idle"
	ModeRecording          Mode = "recording"
	ModePlanPending        Mode = "plan_pending"
	ModeExecuting          Mode = "executing"
	ModeExecutorRunning    Mode = "executor_running"
	ModeConfirmingExecutor Mode = "confirming_executor"
	ModeShowingError       Mode = "showing_error"
)

// SessionAction says how a staged launch relates to persisted sessions.
type SessionAction string

const (
	SessionStartNew SessionAction = "start_new"
	SessionContinue SessionAction = "continue"
	SessionReplace  SessionAction = "replace"
)

// PendingExecutor is a staged launch awaiting user confirmation.
type PendingExecutor struct {
	Prompt         string
	Executor       executor.Type
	WorkingDir     string
	ConfirmationID string
	FirstPrompt    bool
	Action         SessionAction
}

// Options configures the orchestrator.
type Options struct {
	// SkipConfirmation launches routed prompts immediately instead of
	// gating them behind a confirmation round trip. The zero value keeps
	// the gate on.
	SkipConfirmation bool

	// ExecutorType selects the backend launched for routed prompts.
	ExecutorType executor.Type

	// WorkingDir is handed to launched executors.
	WorkingDir string

	// UserID tags persisted sessions.
	UserID string

	// RouteTimeout bounds a single router call.
	RouteTimeout time.Duration

	// LaunchTimeout bounds a single factory launch.
	LaunchTimeout time.Duration

	// StoreTimeout bounds store and summarizer calls.
	StoreTimeout time.Duration

	// PollInterval is the relay's idle wait between ReadOutput calls.
	PollInterval time.Duration
}

// DefaultOptions returns the production defaults. Confirmation is on.
func DefaultOptions() Options {
	return Options{
		ExecutorType:  executor.TypeClaude,
		RouteTimeout:  30 * time.Second,
		LaunchTimeout: 15 * time.Second,
		StoreTimeout:  10 * time.Second,
		PollInterval:  50 * time.Millisecond,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.ExecutorType == "" {
		o.ExecutorType = def.ExecutorType
	}
	if o.RouteTimeout <= 0 {
		o.RouteTimeout = def.RouteTimeout
	}
	if o.LaunchTimeout <= 0 {
		o.LaunchTimeout = def.LaunchTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = def.StoreTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
}

// activeSession bundles the in-flight executor session with its persisted
// context and in-memory history.
type activeSession struct {
	sctx    *session.Context
	history *session.History
	sess    executor.Session
	cancel  context.CancelFunc
}

// Core is the orchestration state machine. Handle must never be called
// concurrently; the Dispatcher enforces that. The relay goroutine spawned
// per launch touches no Core state and reports back only by enqueuing a
// session_ended message through the bound inbound function.
type Core struct {
	logger     *zap.Logger
	router     Router
	factory    executor.Factory
	outbound   Outbound
	store      SessionStore
	summarizer Summarizer
	monitor    Monitor
	opts       Options

	mode    Mode
	pending *PendingExecutor
	active  *activeSession
	enqueue func(protocol.Message)
}

// New constructs the orchestrator. Router, factory, outbound and store are
// required; summarizer and monitor may be nil (no-op), the logger defaults
// to a nop logger.
func New(router Router, factory executor.Factory, outbound Outbound, store SessionStore, summarizer Summarizer, monitor Monitor, opts Options, logger *zap.Logger) (*Core, error) {
	if router == nil {
		return nil, errors.New("router is required")
	}
	if factory == nil {
		return nil, errors.New("executor factory is required")
	}
	if outbound == nil {
		return nil, errors.New("outbound port is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	return &Core{
		logger:     logger,
		router:     router,
		factory:    factory,
		outbound:   outbound,
		store:      store,
		summarizer: summarizer,
		monitor:    monitor,
		opts:       opts,
		mode:       ModeIdle,
		enqueue:    func(protocol.Message) {},
	}, nil
}

// Mode returns the current state. Only meaningful between Handle calls.
func (c *Core) Mode() Mode { return c.mode }

// Pending returns the staged launch awaiting confirmation, if any.
func (c *Core) Pending() *PendingExecutor { return c.pending }

// BindInbound sets the function the relay uses to feed messages back into
// the inbound stream. The Dispatcher calls this during construction.
func (c *Core) BindInbound(fn func(protocol.Message)) {
	if fn != nil {
		c.enqueue = fn
	}
}

// Handle processes one inbound message and performs at most one state
// transition. All mode and pending-state mutation happens here.
func (c *Core) Handle(ctx context.Context, msg protocol.Message) error {
	if c.monitor != nil {
		span := c.monitor.StartSpan("core.handle")
		defer c.monitor.EndSpan(span)
		c.monitor.Record("messages_handled", MetricCount, 1)
	}

	switch msg.Kind {
	case protocol.KindUserText:
		return c.handleUserText(ctx, msg)
	case protocol.KindConfirmationResponse:
		return c.handleConfirmation(ctx, msg)
	case protocol.KindCancel:
		return c.handleCancel(ctx)
	case protocol.KindSessionEnded:
		return c.handleSessionEnded(ctx, msg)
	default:
		c.logger.Debug("ignoring message kind", zap.String("kind", string(msg.Kind)))
		return nil
	}
}

func (c *Core) handleUserText(ctx context.Context, msg protocol.Message) error {
	c.appendEvent(ctx, session.EventUserInput, msg.Text)

	if !msg.Routable {
		// Echoed to observers, never routed.
		c.deliver(ctx, msg)
		return nil
	}

	rc := RouterContext{
		SessionActive: c.active != nil,
		ExecutorType:  c.opts.ExecutorType,
		WorkingDir:    c.opts.WorkingDir,
	}
	if c.active != nil {
		rc.ExecutorType = c.active.sess.Type()
	}

	routeCtx, cancel := context.WithTimeout(ctx, c.opts.RouteTimeout)
	resp, err := c.router.Route(routeCtx, msg.Text, rc)
	cancel()
	if err != nil {
		return c.fail(ctx, KindOf(err, ErrKindRouting), err.Error())
	}

	switch resp.Action {
	case ActionQueryExecutor:
		if c.mode != ModeExecutorRunning || c.active == nil {
			return c.fail(ctx, ErrKindRouting, "nothing is running to query")
		}
		return c.queryExecutor(ctx)

	case ActionLaunchClaude:
		if c.pending != nil || c.mode == ModeExecutorRunning {
			// Mode is deliberately left unchanged: the running or staged
			// work is still the user's primary concern.
			c.deliver(ctx, protocol.Error("busy: an executor launch is already pending or running"))
			c.logger.Warn("launch rejected while busy", zap.String("mode", string(c.mode)))
			return nil
		}
		return c.stageLaunch(ctx, resp)

	default: // ActionCannotParse and anything unrecognized
		reason := resp.Reason
		if reason == "" {
			reason = "could not turn the input into a command"
		}
		return c.fail(ctx, ErrKindRouting, reason)
	}
}

func (c *Core) stageLaunch(ctx context.Context, resp *RouteResponse) error {
	action := SessionStartNew
	if c.active != nil {
		action = SessionContinue
	}
	p := &PendingExecutor{
		Prompt:         resp.Prompt,
		Executor:       c.opts.ExecutorType,
		WorkingDir:     c.opts.WorkingDir,
		ConfirmationID: uuid.NewString(),
		FirstPrompt:    c.active == nil,
		Action:         action,
	}

	if c.opts.SkipConfirmation {
		return c.launch(ctx, p)
	}

	c.pending = p
	c.mode = ModeConfirmingExecutor
	c.appendEvent(ctx, session.EventStateTransition, "awaiting launch confirmation")
	c.deliver(ctx, protocol.Message{
		V:    protocol.Version,
		Kind: protocol.KindPlanPending,
		Text: p.Prompt,
	})
	c.deliver(ctx, protocol.ConfirmationRequest(p.ConfirmationID, string(p.Executor), p.WorkingDir, p.Prompt))
	return nil
}

func (c *Core) handleConfirmation(ctx context.Context, msg protocol.Message) error {
	if c.pending == nil || msg.ConfirmationID != c.pending.ConfirmationID {
		c.logger.Debug("stale confirmation response ignored",
			zap.String("confirmation_id", msg.ConfirmationID))
		return nil
	}

	p := c.pending
	c.pending = nil

	if !msg.Accept {
		c.mode = ModeIdle
		c.appendEvent(ctx, session.EventStateTransition, "launch declined")
		c.deliver(ctx, protocol.Status("canceled"))
		return nil
	}
	return c.launch(ctx, p)
}

func (c *Core) handleCancel(ctx context.Context) error {
	switch {
	case c.pending != nil:
		c.pending = nil
		c.mode = ModeIdle
		c.appendEvent(ctx, session.EventStateTransition, "launch canceled")
		c.deliver(ctx, protocol.Status("canceled"))
		return nil

	case c.active != nil:
		// The external process must be released even though the in-core
		// state is discarded first.
		if err := c.active.sess.Terminate(); err != nil {
			c.logger.Warn("terminate failed", zap.Error(err))
		}
		c.endSession(ctx, session.StatusCancelled, "canceled by user")
		return nil

	default:
		c.logger.Debug("cancel with nothing to cancel")
		return nil
	}
}

func (c *Core) launch(ctx context.Context, p *PendingExecutor) error {
	c.mode = ModeExecuting

	launchCtx, cancel := context.WithTimeout(ctx, c.opts.LaunchTimeout)
	sess, err := c.factory.Launch(launchCtx, p.Executor, p.Prompt, executor.Config{
		WorkingDir:      p.WorkingDir,
		SkipPermissions: true,
	})
	cancel()
	if err != nil {
		kind := ErrKindExecutorRuntime
		if errors.Is(err, executor.ErrUnavailable) {
			kind = ErrKindExecutorUnavailable
		}
		return c.fail(ctx, kind, err.Error())
	}

	if c.active == nil {
		sctx := session.NewContext(c.opts.UserID)
		sctx.ExecutorType = string(p.Executor)
		sctx.WorkingDir = p.WorkingDir
		c.active = &activeSession{sctx: sctx, history: session.NewHistory(0)}
	}
	c.active.sess = sess
	c.active.sctx.ActivePrompt = p.Prompt
	c.active.sctx.Touch()

	relayCtx, relayCancel := context.WithCancel(context.Background())
	c.active.cancel = relayCancel

	c.mode = ModeExecutorRunning
	c.appendEvent(ctx, session.EventExecutorLaunched, p.Prompt)
	if c.monitor != nil {
		c.monitor.Record("executor_launches", MetricCount, 1)
	}
	c.deliver(ctx, protocol.Status(fmt.Sprintf("executor started (%s)", p.Executor)))

	go c.relay(relayCtx, c.active.sctx.SessionID, sess)
	return nil
}

// relay forwards executor outputs to observers and the durable event log.
// It owns no core state; termination is reported by enqueuing a
// session_ended message for Handle to process.
func (c *Core) relay(ctx context.Context, id uuid.UUID, sess executor.Session) {
	sid := id.String()
	for {
		out, err := sess.ReadOutput(ctx)
		if err != nil {
			c.logger.Debug("relay stopped", zap.String("session_id", sid), zap.Error(err))
			return
		}
		if out == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.PollInterval):
			}
			continue
		}

		switch out.Kind {
		case executor.OutputTerminated:
			reason := "session-ended"
			if out.ExitCode != 0 {
				reason = fmt.Sprintf("executor exited with code %d", out.ExitCode)
			}
			c.enqueue(protocol.SessionEnded(sid, reason))
			return

		case executor.OutputError:
			c.deliver(ctx, protocol.Error(out.Text))
			c.storeEvent(ctx, id, session.NewEvent(session.EventError, out.Text))

		case executor.OutputToolUse:
			text := fmt.Sprintf("[tool] %s", out.ToolName)
			c.deliver(ctx, protocol.AssistantText(sid, text))
			c.storeEvent(ctx, id, session.NewEvent(session.EventExecutorOutput, text))

		default:
			c.deliver(ctx, protocol.AssistantText(sid, out.Text))
			c.storeEvent(ctx, id, session.NewEvent(session.EventExecutorOutput, out.Text))
		}
	}
}

func (c *Core) handleSessionEnded(ctx context.Context, msg protocol.Message) error {
	if c.active == nil || c.active.sctx.SessionID.String() != msg.SessionID {
		c.logger.Debug("session_ended for unknown session",
			zap.String("session_id", msg.SessionID))
		return nil
	}

	status := session.StatusCompleted
	if msg.Reason != "" && msg.Reason != "session-ended" {
		status = session.StatusFailed
	}
	c.endSession(ctx, status, msg.Reason)
	return nil
}

// endSession tears down the active session. Summarization and persistence
// are best effort: failures are logged, the machine still returns to Idle.
func (c *Core) endSession(ctx context.Context, status, reason string) {
	a := c.active
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}

	a.history.Add(session.EventCompleted, reason)

	storeCtx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()

	if c.summarizer != nil {
		a.sctx.Title = c.summarizer.GenerateTitle(a.history)
		if summary, err := c.summarizer.SummarizeSession(storeCtx, a.history); err != nil {
			c.logger.Warn("summarize failed", zap.Error(err))
		} else {
			a.sctx.Summary = summary
		}
	}

	a.sctx.Status = status
	a.sctx.ActivePrompt = ""
	a.sctx.Touch()
	if err := c.store.SaveSession(storeCtx, a.sctx); err != nil {
		c.logger.Warn("save session failed",
			zap.String("session_id", a.sctx.SessionID.String()), zap.Error(err))
	}
	c.storeEvent(storeCtx, a.sctx.SessionID, session.NewEvent(session.EventCompleted, reason))

	if c.monitor != nil {
		c.monitor.Record("sessions_ended", MetricCount, 1)
		c.monitor.Record("session_duration_seconds", MetricDuration,
			time.Since(a.sctx.CreatedAt).Seconds())
	}

	c.active = nil
	c.mode = ModeIdle
	c.deliver(ctx, protocol.Status("session-ended"))
}

func (c *Core) queryExecutor(ctx context.Context) error {
	status, err := c.active.sess.QueryStatus(ctx)
	if err != nil {
		return c.fail(ctx, ErrKindExecutorRuntime, err.Error())
	}
	c.deliver(ctx, protocol.AssistantText(c.active.sctx.SessionID.String(), status))
	return nil
}

// fail emits exactly one outbound error message and parks the machine in
// ShowingError. Any later routable input leaves it again. A staged launch
// confirmation is unrelated to the failure and stays answerable, so the
// mode is left alone while one is pending.
func (c *Core) fail(ctx context.Context, kind ErrorKind, reason string) error {
	if c.pending == nil {
		c.mode = ModeShowingError
	}
	c.appendEvent(ctx, session.EventError, reason)
	c.deliver(ctx, protocol.Error(reason))
	if c.monitor != nil {
		c.monitor.Record("orchestration_errors", MetricCount, 1)
		c.monitor.Event("orchestration_error", map[string]string{
			"kind":   string(kind),
			"reason": reason,
		})
	}
	c.logger.Warn("orchestration failure",
		zap.String("kind", string(kind)), zap.String("reason", reason))
	return nil
}

// appendEvent records an event in the active session's in-memory history
// and the durable store. A no-op when no session is active.
func (c *Core) appendEvent(ctx context.Context, t session.EventType, text string) {
	if c.active == nil {
		return
	}
	e := session.NewEvent(t, text)
	c.active.history.Append(e)
	c.storeEvent(ctx, c.active.sctx.SessionID, e)
}

func (c *Core) storeEvent(ctx context.Context, id uuid.UUID, e session.Event) {
	if err := c.store.AppendEvent(ctx, id, e); err != nil {
		c.logger.Warn("append event failed",
			zap.String("session_id", id.String()), zap.Error(err))
	}
}

func (c *Core) deliver(ctx context.Context, msg protocol.Message) {
	if err := c.outbound.Deliver(ctx, msg); err != nil {
		c.logger.Warn("outbound delivery failed",
			zap.String("kind", string(msg.Kind)), zap.Error(err))
	}
}
