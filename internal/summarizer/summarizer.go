// Package summarizer derives titles, summaries and key events from a
// session's history. The heuristic implementation works purely off the
// event log; it never calls out to a model.
package summarizer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/session"
)

const (
	// maxTitleLen bounds generated titles.
	maxTitleLen = 60

	// DefaultKeyEvents is the key-event cap when callers pass max <= 0.
	DefaultKeyEvents = 10
)

// Service implements the summarizer contract over history snapshots.
type Service struct {
	logger *zap.Logger
}

// New creates a summarizer service.
func New(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

// SummarizeSession produces a one-paragraph description of the session from
// its aggregate counters. The history is only read, never modified.
func (s *Service) SummarizeSession(ctx context.Context, h *session.History) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if h == nil || h.Len() == 0 {
		return "empty session", nil
	}

	sum := h.Summarize()
	var b strings.Builder
	fmt.Fprintf(&b, "%d events", sum.TotalEvents)
	if sum.UserInputs > 0 {
		fmt.Fprintf(&b, ", %d user inputs", sum.UserInputs)
	}
	if sum.ExecutorLaunches > 0 {
		fmt.Fprintf(&b, ", %d executor launches", sum.ExecutorLaunches)
	}
	if sum.SystemResponses > 0 {
		fmt.Fprintf(&b, ", %d responses", sum.SystemResponses)
	}
	if sum.Errors > 0 {
		fmt.Fprintf(&b, ", %d errors", sum.Errors)
	}
	if !sum.Start.IsZero() && sum.End.After(sum.Start) {
		fmt.Fprintf(&b, " over %s", sum.End.Sub(sum.Start).Round(1e9))
	}
	return b.String(), nil
}

// GenerateTitle derives a short title from the first user input, falling
// back to the first event of any type.
func (s *Service) GenerateTitle(h *session.History) string {
	if h == nil || h.Len() == 0 {
		return "untitled session"
	}

	events := h.Events()
	text := ""
	for _, e := range events {
		if e.Type == session.EventUserInput && e.Text != "" {
			text = e.Text
			break
		}
	}
	if text == "" {
		text = events[0].Text
	}
	if text == "" {
		return "untitled session"
	}

	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxTitleLen {
		cut := text[:maxTitleLen]
		if i := strings.LastIndexByte(cut, ' '); i > maxTitleLen/2 {
			cut = cut[:i]
		}
		text = cut + "…"
	}
	return text
}

// ExtractKeyEvents returns up to max events ranked by importance:
// errors first, then lifecycle transitions, then user inputs. The returned
// slice preserves the original causal order.
func (s *Service) ExtractKeyEvents(h *session.History, max int) []session.Event {
	if h == nil || h.Len() == 0 {
		return nil
	}
	if max <= 0 {
		max = DefaultKeyEvents
	}

	events := h.Events()
	keep := make([]bool, len(events))
	kept := 0

	for _, pass := range []func(session.EventType) bool{
		func(t session.EventType) bool { return t == session.EventError },
		func(t session.EventType) bool {
			return t == session.EventStarted || t == session.EventExecutorLaunched ||
				t == session.EventExecutorDone || t == session.EventCompleted
		},
		func(t session.EventType) bool { return t == session.EventUserInput },
	} {
		for i, e := range events {
			if kept >= max {
				break
			}
			if !keep[i] && pass(e.Type) {
				keep[i] = true
				kept++
			}
		}
	}

	out := make([]session.Event, 0, kept)
	for i, e := range events {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}
