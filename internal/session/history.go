package session

import "time"

// History is an append-only sequence of session events with a bounded
// capacity. When the bound is reached the oldest events are dropped; the
// durable record lives in the session store, not here.
type History struct {
	events    []Event
	maxEvents int
}

// DefaultMaxEvents bounds in-memory history.
const DefaultMaxEvents = 1000

// NewHistory creates a history bounded at maxEvents (DefaultMaxEvents when
// maxEvents <= 0).
func NewHistory(maxEvents int) *History {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &History{maxEvents: maxEvents}
}

// Append adds an event, evicting the oldest when at capacity.
func (h *History) Append(e Event) {
	if len(h.events) >= h.maxEvents {
		h.events = h.events[1:]
	}
	h.events = append(h.events, e)
}

// Add records a new event of the given type now.
func (h *History) Add(t EventType, text string) {
	h.Append(NewEvent(t, text))
}

// Events returns a copy of the event slice. Callers cannot mutate history
// through the returned value.
func (h *History) Events() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Len returns the number of retained events.
func (h *History) Len() int { return len(h.events) }

// LastUserInput returns the most recent user_input event text.
func (h *History) LastUserInput() (string, bool) {
	for i := len(h.events) - 1; i >= 0; i-- {
		if h.events[i].Type == EventUserInput {
			return h.events[i].Text, true
		}
	}
	return "", false
}

// EventsSince returns events strictly after the given time.
func (h *History) EventsSince(since time.Time) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Timestamp.After(since) {
			out = append(out, e)
		}
	}
	return out
}

// Summary aggregates counters over the retained events.
type Summary struct {
	Start            time.Time `json:"start,omitempty"`
	End              time.Time `json:"end,omitempty"`
	TotalEvents      int       `json:"total_events"`
	UserInputs       int       `json:"user_inputs"`
	SystemResponses  int       `json:"system_responses"`
	Errors           int       `json:"errors"`
	ExecutorLaunches int       `json:"executor_launches"`
}

// Summarize computes aggregate counters over the retained events.
func (h *History) Summarize() Summary {
	s := Summary{TotalEvents: len(h.events)}
	if len(h.events) > 0 {
		s.Start = h.events[0].Timestamp
		s.End = h.events[len(h.events)-1].Timestamp
	}
	for _, e := range h.events {
		switch e.Type {
		case EventUserInput:
			s.UserInputs++
		case EventSystemResponse, EventExecutorOutput:
			s.SystemResponses++
		case EventError:
			s.Errors++
		case EventExecutorLaunched:
			s.ExecutorLaunches++
		}
	}
	return s
}
