package plan

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ExtractErrorKind classifies extraction failures so callers can distinguish
// garbage model output from structurally incomplete plans.
type ExtractErrorKind string

const (
	// KindNotJSON means the raw text was not parseable JSON at all.
	KindNotJSON ExtractErrorKind = "not_json"

	// KindMissingField means the JSON parsed but a required field (status)
	// was absent or of the wrong type.
	KindMissingField ExtractErrorKind = "missing_field"
)

// ExtractError is the typed failure returned by Extract.
type ExtractError struct {
	Kind  ExtractErrorKind
	Field string
	Err   error
}

func (e *ExtractError) Error() string {
	switch e.Kind {
	case KindNotJSON:
		return fmt.Sprintf("plan: not valid JSON: %v", e.Err)
	case KindMissingField:
		return fmt.Sprintf("plan: missing required field %q", e.Field)
	}
	return "plan: extract error"
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ErrDenied and ErrIncomplete classify structurally sound plans that cannot
// be acted on. See Classify.
var (
	ErrDenied     = errors.New("plan: status indicates denial or error")
	ErrIncomplete = errors.New("plan: status ok but no plan body")
)

// rawPlan mirrors the model's JSON output. Fields are pointers where absence
// matters.
type rawPlan struct {
	Status     *string     `json:"status"`
	Confidence *Confidence `json:"confidence"`
	Plan       *rawBody    `json:"plan"`
	Reason     string      `json:"reason"`
}

type rawBody struct {
	Cwd         string    `json:"cwd"`
	Explanation string    `json:"explanation"`
	Steps       []rawStep `json:"steps"`
}

type rawStep struct {
	Cmd            string `json:"cmd"`
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output"`
}

// Extract parses raw model output into a CommandPlan. It never panics on
// malformed input. Extraction is deterministic: the same raw text always
// yields a structurally equal plan.
//
// A parse failure yields a *ExtractError; a plan whose status is deny/error
// is NOT an extraction failure (the plan carries the verdict).
func Extract(raw string) (*CommandPlan, error) {
	var r rawPlan
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, &ExtractError{Kind: KindNotJSON, Err: err}
	}
	if r.Status == nil {
		return nil, &ExtractError{Kind: KindMissingField, Field: "status"}
	}

	p := &CommandPlan{
		Status:     parseStatus(*r.Status),
		Confidence: r.Confidence,
		Reason:     r.Reason,
		RawJSON:    raw,
	}
	if r.Plan != nil {
		if body := parseBody(r.Plan); body != nil {
			p.Plan = body
		}
	}
	return p, nil
}

// FirstCommand extracts the first step command from raw model output.
// Returns ok=false when the plan has no steps; errors only on parse failure.
func FirstCommand(raw string) (string, bool, error) {
	p, err := Extract(raw)
	if err != nil {
		return "", false, err
	}
	cmd, ok := p.FirstCommand()
	return cmd, ok, nil
}

// Classify maps a parsed plan to the caller-facing verdict: nil when the
// plan is actionable, ErrDenied for deny/error status, ErrIncomplete for the
// status-ok-without-body contract violation.
func Classify(p *CommandPlan) error {
	if p.Status != StatusOk {
		return ErrDenied
	}
	if p.Plan == nil {
		return ErrIncomplete
	}
	return nil
}

func parseStatus(s string) Status {
	switch s {
	case "ok":
		return StatusOk
	case "deny":
		return StatusDeny
	default:
		return StatusError
	}
}

// parseBody returns nil when no usable steps are present; a plan object with
// zero steps is treated the same as no plan object.
func parseBody(b *rawBody) *Plan {
	steps := make([]Step, 0, len(b.Steps))
	for _, s := range b.Steps {
		if s.Cmd == "" {
			continue
		}
		steps = append(steps, Step{
			Cmd:            s.Cmd,
			Description:    s.Description,
			ExpectedOutput: s.ExpectedOutput,
		})
	}
	if len(steps) == 0 {
		return nil
	}
	return &Plan{Cwd: b.Cwd, Explanation: b.Explanation, Steps: steps}
}
