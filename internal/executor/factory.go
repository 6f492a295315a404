package executor

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// CLIFactory launches executor sessions backed by locally installed CLIs.
// Availability is probed with LookPath so a missing binary surfaces as
// ErrUnavailable before any process is spawned.
type CLIFactory struct {
	logger *zap.Logger

	// lookPath is swappable for tests.
	lookPath func(string) (string, error)
}

// NewCLIFactory creates the default factory.
func NewCLIFactory(logger *zap.Logger) *CLIFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIFactory{logger: logger, lookPath: exec.LookPath}
}

// IsAvailable implements Factory.
func (f *CLIFactory) IsAvailable(t Type) bool {
	switch t {
	case TypeClaude:
		_, err := f.lookPath(claudeBinary)
		return err == nil
	case TypeMock:
		return true
	}
	return false
}

// Launch implements Factory.
func (f *CLIFactory) Launch(ctx context.Context, t Type, prompt string, cfg Config) (Session, error) {
	if !f.IsAvailable(t) {
		return nil, fmt.Errorf("executor %q: %w", t, ErrUnavailable)
	}
	switch t {
	case TypeClaude:
		return LaunchClaude(ctx, prompt, cfg, f.logger.Named("claude"))
	case TypeMock:
		return NewScriptedSession(TypeMock, nil), nil
	}
	return nil, fmt.Errorf("executor %q: %w", t, ErrUnavailable)
}
