// Package session holds the value types describing one executor session:
// its context, its append-only event history, and the summary shapes the
// store and summarizer work with.
package session

import (
	"time"

	"github.com/google/uuid"
)

// EventType tags entries in a session's history.
type EventType string

const (
	EventStarted          EventType = "started"
	EventUserInput        EventType = "user_input"
	EventSystemResponse   EventType = "system_response"
	EventStateTransition  EventType = "state_transition"
	EventExecutorLaunched EventType = "executor_launched"
	EventExecutorOutput   EventType = "executor_output"
	EventExecutorDone     EventType = "executor_done"
	EventError            EventType = "error"
	EventCompleted        EventType = "completed"
)

// Event is one entry in the append-only history.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Text      string            `json:"text,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, text string) Event {
	return Event{Timestamp: time.Now().UTC(), Type: t, Text: text}
}

// Context identifies one session and carries its mutable envelope. Event
// history lives separately in History.
type Context struct {
	SessionID    uuid.UUID         `json:"session_id"`
	UserID       string            `json:"user_id,omitempty"`
	ExecutorType string            `json:"executor_type,omitempty"`
	WorkingDir   string            `json:"working_dir,omitempty"`
	ActivePrompt string            `json:"active_prompt,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Title        string            `json:"title,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Session status strings persisted in Context.Status.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// NewContext creates a fresh active session.
func NewContext(userID string) *Context {
	now := time.Now().UTC()
	return &Context{
		SessionID: uuid.New(),
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps the updated timestamp.
func (c *Context) Touch() {
	c.UpdatedAt = time.Now().UTC()
}

// Metadata describes a stored session without its event history, as returned
// by SessionStore.ListSessions.
type Metadata struct {
	SessionID  uuid.UUID `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Status     string    `json:"status"`
	Title      string    `json:"title,omitempty"`
	EventCount int       `json:"event_count"`
}
