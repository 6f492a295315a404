package router

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/voxd/internal/core"
)

// systemPrompt instructs the model to answer with a single JSON object in
// the command-plan shape. Kept deliberately rigid: the extractor rejects
// anything that strays from it.
const systemPrompt = `You convert a user's spoken request into a JSON command plan for a coding agent.

Respond with exactly one JSON object and nothing else. Shape:

{
  "status": "ok" | "deny",
  "intent": "launch" | "query",
  "confidence": {"score": 0.0-1.0, "label": "high" | "medium" | "low"},
  "plan": {
    "cwd": "<working directory>",
    "explanation": "<one sentence describing what will be done>",
    "steps": [{"cmd": "<instruction for the agent>", "description": "...", "expected_output": "..."}]
  },
  "reason": "<set when status is not ok>"
}

Rules:
- status "ok" with intent "launch" requires a plan with at least one step.
- Use status "deny" with a reason when the request is not a coding task or is too vague to act on.
- intent "query" means the user is asking about the progress of already-running work; omit the plan.`

// buildPrompt assembles the full prompt for one routing call.
func buildPrompt(text string, rc core.RouterContext) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	if rc.SessionActive {
		fmt.Fprintf(&b, "A %s session is currently running", rc.ExecutorType)
		if rc.WorkingDir != "" {
			fmt.Fprintf(&b, " in %s", rc.WorkingDir)
		}
		b.WriteString(". Prefer intent \"query\" if the user asks about its progress.\n")
	} else {
		b.WriteString("No session is running. intent \"query\" is not valid.\n")
		if rc.WorkingDir != "" {
			fmt.Fprintf(&b, "Default working directory: %s\n", rc.WorkingDir)
		}
	}
	fmt.Fprintf(&b, "\nUser request: %s\n", text)
	return b.String()
}
