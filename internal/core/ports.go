// Package core implements the orchestration state machine. It consumes
// inbound protocol messages one at a time, drives the injected ports
// (router, executor factory, outbound, session store, summarizer, monitor)
// and owns the current mode plus at most one pending launch confirmation.
package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/voxd/internal/executor"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
	"github.com/fyrsmithlabs/voxd/internal/session"
)

// RouteAction is the router's decision for a piece of user text.
type RouteAction string

const (
	// ActionLaunchClaude starts (or continues) an executor session with the
	// routed prompt.
	ActionLaunchClaude RouteAction = "launch_claude"

	// ActionCannotParse means the text could not be turned into a command.
	ActionCannotParse RouteAction = "cannot_parse"

	// ActionQueryExecutor asks the running session for a progress report
	// instead of launching a new one.
	ActionQueryExecutor RouteAction = "query_executor"
)

// RouteResponse is the router port's output.
type RouteResponse struct {
	Action     RouteAction
	Prompt     string
	Reason     string
	Confidence float64
}

// RouterContext tells the router what the orchestrator is currently doing,
// so it can prefer ActionQueryExecutor over relaunching.
type RouterContext struct {
	SessionActive bool
	ExecutorType  executor.Type
	WorkingDir    string
}

// Router turns free-form user text into a routing decision. Implementations
// must be side-effect free from the caller's perspective and must apply
// their own timeout rather than block indefinitely.
type Router interface {
	Route(ctx context.Context, text string, rc RouterContext) (*RouteResponse, error)
}

// Outbound delivers a protocol message to whatever observes the
// orchestrator: a TUI, a message bus, a test harness.
type Outbound interface {
	Deliver(ctx context.Context, msg protocol.Message) error
}

// SessionStore persists session context and event history keyed by session
// UUID. Calls for different sessions may run concurrently; the store
// serializes calls for the same session.
type SessionStore interface {
	SaveSession(ctx context.Context, sc *session.Context) error
	LoadSession(ctx context.Context, id uuid.UUID) (*session.Context, []session.Event, error)
	ListSessions(ctx context.Context, userID string) ([]session.Metadata, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	AppendEvent(ctx context.Context, id uuid.UUID, e session.Event) error
	SessionExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Summarizer derives human-readable descriptions from a history snapshot.
// Implementations must not mutate the history.
type Summarizer interface {
	SummarizeSession(ctx context.Context, h *session.History) (string, error)
	GenerateTitle(h *session.History) string
	ExtractKeyEvents(h *session.History, max int) []session.Event
}

// MetricKind selects how a Monitor records a value.
type MetricKind string

const (
	MetricCount     MetricKind = "count"
	MetricGauge     MetricKind = "gauge"
	MetricHistogram MetricKind = "histogram"
	MetricDuration  MetricKind = "duration"
)

// Monitor is fire-and-forget observability: structured events, span
// start/end pairing, and metric recording. Nothing it does may fail the
// orchestration path.
type Monitor interface {
	Event(name string, fields map[string]string)
	StartSpan(name string) uuid.UUID
	EndSpan(id uuid.UUID)
	Record(name string, kind MetricKind, value float64)
}
