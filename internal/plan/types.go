// Package plan models the structured command plan produced by the router's
// language model and the extractor that parses it out of raw model output.
package plan

// Status is the router's verdict on the requested action.
type Status string

const (
	StatusOk    Status = "ok"
	StatusDeny  Status = "deny"
	StatusError Status = "error"
)

// Confidence is the router's self-reported score for a plan.
type Confidence struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// Step is one ordered command in a plan. Cmd is required; the rest is
// advisory detail for the human reviewing the plan.
type Step struct {
	Cmd            string `json:"cmd"`
	Description    string `json:"description,omitempty"`
	ExpectedOutput string `json:"expected_output,omitempty"`
}

// Plan is the executable half of a CommandPlan.
type Plan struct {
	Cwd         string `json:"cwd,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Steps       []Step `json:"steps"`
}

// CommandPlan is the full routing result. RawJSON retains the original model
// output for audit and debugging.
type CommandPlan struct {
	Status     Status      `json:"status"`
	Confidence *Confidence `json:"confidence,omitempty"`
	Plan       *Plan       `json:"plan,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	RawJSON    string      `json:"-"`
}

// IsValid reports whether the plan can be acted on: status ok and a plan
// body present. A status-ok plan without a body is a router contract
// violation and must be treated as an error by the caller, never accepted.
func (p *CommandPlan) IsValid() bool {
	return p.Status == StatusOk && p.Plan != nil
}

// FirstCommand returns the first step's command, if any.
func (p *CommandPlan) FirstCommand() (string, bool) {
	if p.Plan == nil || len(p.Plan.Steps) == 0 {
		return "", false
	}
	return p.Plan.Steps[0].Cmd, true
}

// Commands returns every step command in order. Never nil.
func (p *CommandPlan) Commands() []string {
	if p.Plan == nil {
		return []string{}
	}
	cmds := make([]string, 0, len(p.Plan.Steps))
	for _, s := range p.Plan.Steps {
		cmds = append(cmds, s.Cmd)
	}
	return cmds
}
