// Package protocol defines the message envelope exchanged between the
// orchestrator core and everything observing or feeding it (TUI, HTTP
// ingress, NATS bus, tests).
//
// Messages are immutable by convention: handlers construct new messages and
// never mutate one they received. The envelope is a flat JSON object so the
// same shape travels over NATS subjects, the HTTP ingress, and the inbound
// channel inside the daemon.
//
// Inbound kinds: user_text, confirmation_response, cancel, session_ended
// (session_ended is produced internally by the executor relay, never by a
// client). Outbound kinds: user_text (echo), assistant_text, plan_pending,
// confirmation_request, error, status.
package protocol
