// Package redact strips credentials from text before it leaves the daemon.
// Executor output is the main hazard: a coding agent reading .env files or
// shell history can echo live keys, and everything the core emits is
// broadcast to any observer on the bus.
package redact

import (
	"fmt"
	"regexp"
	"sort"
)

// Marker replaces every detected credential.
const Marker = "[REDACTED]"

// Rule pairs an identifier with a detection pattern.
type Rule struct {
	ID      string
	Pattern string
}

// DefaultRules covers the credential shapes most likely to pass through a
// coding session: agent API keys, VCS tokens, cloud keys, connection URLs
// and key material.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "anthropic-api-key", Pattern: `sk-ant-[A-Za-z0-9_\-]{90,}`},
		{ID: "openai-api-key", Pattern: `sk-[A-Za-z0-9]{48,}`},
		{ID: "github-token", Pattern: `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}`},
		{ID: "github-fine-grained", Pattern: `github_pat_[A-Za-z0-9_]{22,}`},
		{ID: "gitlab-token", Pattern: `glpat-[A-Za-z0-9\-]{20,}`},
		{ID: "aws-access-key-id", Pattern: `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`},
		{ID: "slack-token", Pattern: `xox[baprs]-[A-Za-z0-9\-]{10,}`},
		{ID: "npm-token", Pattern: `npm_[A-Za-z0-9]{36}`},
		{ID: "private-key", Pattern: `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?:[- ]BLOCK)?-----`},
		{ID: "database-url", Pattern: `(?i)(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^:\s]+:[^@\s]+@[^\s]+`},
		{ID: "bearer-token", Pattern: `(?i)bearer\s+[A-Za-z0-9_\-\.=]{20,}`},
		{ID: "env-credential", Pattern: `(?i)(?:api[_-]?key|secret[_-]?key|access[_-]?token|auth[_-]?token|password)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`},
	}
}

type compiledRule struct {
	id      string
	pattern *regexp.Regexp
}

// Redactor applies a fixed rule set to strings.
type Redactor struct {
	rules []compiledRule
}

// New compiles the given rules, or DefaultRules when none are given.
func New(rules ...Rule) (*Redactor, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact rule %s: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{id: r.ID, pattern: re})
	}
	return &Redactor{rules: compiled}, nil
}

type span struct{ start, end int }

// Apply replaces every credential match in s with Marker and reports how
// many distinct regions were redacted. Overlapping matches collapse into
// one region.
func (r *Redactor) Apply(s string) (string, int) {
	var spans []span
	for _, rule := range r.rules {
		for _, m := range rule.pattern.FindAllStringIndex(s, -1) {
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	if len(spans) == 0 {
		return s, 0
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	// Replace back to front so earlier offsets stay valid.
	out := s
	for i := len(merged) - 1; i >= 0; i-- {
		out = out[:merged[i].start] + Marker + out[merged[i].end:]
	}
	return out, len(merged)
}

// Clean reports whether s contains no detectable credentials.
func (r *Redactor) Clean(s string) bool {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(s) {
			return false
		}
	}
	return true
}
