package protocol

// Version is bumped when the wire shape changes incompatibly.
const Version = 1

// Kind discriminates the message payload.
type Kind string

const (
	// KindUserText is free-form user input. Routable user text is handed to
	// the router; non-routable text is echoed and recorded only.
	KindUserText Kind = "user_text"

	// KindConfirmationResponse answers a confirmation_request. Carries the
	// correlation ID of the request and the accept flag.
	KindConfirmationResponse Kind = "confirmation_response"

	// KindCancel discards a pending confirmation or terminates the running
	// executor session, depending on the current mode.
	KindCancel Kind = "cancel"

	// KindSessionEnded is enqueued by the executor relay when a session
	// reaches a terminal output. It is internal: inbound adapters drop it.
	KindSessionEnded Kind = "session_ended"

	// KindAssistantText is executor or query output relayed to observers.
	KindAssistantText Kind = "assistant_text"

	// KindPlanPending signals that a routed plan is staged for launch.
	KindPlanPending Kind = "plan_pending"

	// KindConfirmationRequest asks the user to approve an executor launch.
	KindConfirmationRequest Kind = "confirmation_request"

	// KindError carries a human-readable failure reason.
	KindError Kind = "error"

	// KindStatus carries informational state changes ("executor started",
	// "session-ended", "canceled").
	KindStatus Kind = "status"
)

// Message is the envelope crossing the orchestrator boundary in both
// directions.
type Message struct {
	V              int    `json:"v,omitempty"`
	Kind           Kind   `json:"kind"`
	Text           string `json:"text,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	Source         string `json:"source,omitempty"`
	Routable       bool   `json:"routable,omitempty"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Accept         bool   `json:"accept,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// UserText builds a routable or non-routable user input message.
func UserText(text, source string, routable bool) Message {
	return Message{V: Version, Kind: KindUserText, Text: text, Source: source, Routable: routable}
}

// ConfirmationResponse builds an answer to a confirmation request.
func ConfirmationResponse(confirmationID string, accept bool) Message {
	return Message{V: Version, Kind: KindConfirmationResponse, ConfirmationID: confirmationID, Accept: accept}
}

// ConfirmationRequest builds the outbound approval prompt for a staged
// executor launch.
func ConfirmationRequest(confirmationID, executor, workingDir, prompt string) Message {
	return Message{
		V:              Version,
		Kind:           KindConfirmationRequest,
		ConfirmationID: confirmationID,
		Source:         executor,
		Reason:         workingDir,
		Text:           prompt,
	}
}

// AssistantText builds an outbound executor/query output message.
func AssistantText(sessionID, text string) Message {
	return Message{V: Version, Kind: KindAssistantText, SessionID: sessionID, Text: text}
}

// Status builds an informational outbound message.
func Status(text string) Message {
	return Message{V: Version, Kind: KindStatus, Text: text}
}

// Error builds an outbound failure message with a human-readable reason.
func Error(reason string) Message {
	return Message{V: Version, Kind: KindError, Reason: reason, Text: reason}
}

// SessionEnded builds the internal relay-to-core termination signal.
func SessionEnded(sessionID, reason string) Message {
	return Message{V: Version, Kind: KindSessionEnded, SessionID: sessionID, Reason: reason}
}

// Cancel builds an inbound cancellation message.
func Cancel() Message {
	return Message{V: Version, Kind: KindCancel}
}

// Inbound reports whether the kind may legitimately arrive from outside the
// daemon. session_ended is excluded: only the relay produces it.
func (k Kind) Inbound() bool {
	switch k {
	case KindUserText, KindConfirmationResponse, KindCancel:
		return true
	}
	return false
}
