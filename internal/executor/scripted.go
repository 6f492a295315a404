package executor

import (
	"context"
	"sync"
)

// ScriptedSession replays a fixed sequence of outputs. It backs the mock
// executor type and test fixtures: each ReadOutput call pops the next
// scripted output, and the session stops running once the terminal output
// has been read or Terminate is called.
type ScriptedSession struct {
	typ Type

	mu      sync.Mutex
	outputs []*Output
	pos     int
	done    bool
	status  string
}

// NewScriptedSession builds a session that will replay the given outputs.
// When the script does not end in a terminal output, one is appended.
func NewScriptedSession(t Type, outputs []*Output) *ScriptedSession {
	if n := len(outputs); n == 0 || !outputs[n-1].Terminal() {
		outputs = append(outputs, &Output{Kind: OutputTerminated})
	}
	return &ScriptedSession{typ: t, outputs: outputs, status: "scripted session running"}
}

// SetStatus controls what QueryStatus reports.
func (s *ScriptedSession) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// Type implements Session.
func (s *ScriptedSession) Type() Type { return s.typ }

// ReadOutput implements Session.
func (s *ScriptedSession) ReadOutput(ctx context.Context) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.pos >= len(s.outputs) {
		return nil, nil
	}
	out := s.outputs[s.pos]
	s.pos++
	if out.Terminal() {
		s.done = true
	}
	return out, nil
}

// IsRunning implements Session.
func (s *ScriptedSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done
}

// QueryStatus implements Session.
func (s *ScriptedSession) QueryStatus(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// Terminate implements Session.
func (s *ScriptedSession) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	return nil
}
