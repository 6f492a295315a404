// Package executor defines the session contract for external coding agents
// and the factory that resolves an executor type to a concrete
// implementation. The core depends only on the Session and Factory
// interfaces; process handling lives entirely behind them.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Type names an executor backend.
type Type string

const (
	TypeClaude Type = "claude"
	TypeMock   Type = "mock"
)

// ParseType normalizes a user-supplied executor name.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "claude", "Claude":
		return TypeClaude, nil
	case "mock":
		return TypeMock, nil
	}
	return "", fmt.Errorf("unknown executor type %q", s)
}

// Config parameterizes a launch.
type Config struct {
	// WorkingDir is where the executor operates. Required.
	WorkingDir string

	// SkipPermissions suppresses interactive permission prompts.
	SkipPermissions bool

	// ExtraArgs are appended verbatim to the executor command line.
	ExtraArgs []string

	// Env adds to the inherited process environment.
	Env map[string]string
}

// OutputKind discriminates observations read from a running session.
type OutputKind string

const (
	// OutputLine is plain assistant text.
	OutputLine OutputKind = "line"

	// OutputToolUse is a structured tool invocation reported by the agent.
	OutputToolUse OutputKind = "tool_use"

	// OutputError is a runtime error reported by the session.
	OutputError OutputKind = "error"

	// OutputTerminated signals the session ended. Always the final output.
	OutputTerminated OutputKind = "terminated"
)

// Output is one observation from a running session.
type Output struct {
	Kind     OutputKind
	Text     string
	ToolName string
	Payload  json.RawMessage
	ExitCode int
}

// Terminal reports whether o ends the stream.
func (o *Output) Terminal() bool { return o.Kind == OutputTerminated }

// Session is a handle to one running executor.
//
// ReadOutput returns (nil, nil) exactly when the session has produced
// nothing new and has not terminated; termination is signaled by an
// OutputTerminated value, never by a nil output. After the terminal output
// ReadOutput keeps returning (nil, nil).
type Session interface {
	// Type identifies the backend.
	Type() Type

	// ReadOutput returns the next observation, or (nil, nil) when none is
	// pending. It blocks at most briefly; the relay loop polls it.
	ReadOutput(ctx context.Context) (*Output, error)

	// IsRunning reports whether the underlying process/connection is alive.
	IsRunning() bool

	// QueryStatus returns a human-readable progress description.
	QueryStatus(ctx context.Context) (string, error)

	// Terminate releases the external resource. Idempotent.
	Terminate() error
}

// ErrUnavailable is returned by factories when the requested executor cannot
// run on this host (CLI not installed). Distinct from a launch failure.
var ErrUnavailable = errors.New("executor unavailable")

// Factory resolves executor types to sessions.
type Factory interface {
	// IsAvailable reports whether the executor type can be launched here.
	IsAvailable(t Type) bool

	// Launch starts a session with the given prompt. Returns ErrUnavailable
	// (wrapped) when IsAvailable would be false.
	Launch(ctx context.Context, t Type, prompt string, cfg Config) (Session, error)
}
