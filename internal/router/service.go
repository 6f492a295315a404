// Package router turns free-form user text into a routing decision by
// asking an OpenAI-compatible model for a command plan and validating the
// result. Routing is side-effect free and idempotent from the caller's
// perspective; every failure is surfaced, never retried here.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/voxd/internal/core"
	"github.com/fyrsmithlabs/voxd/internal/plan"
)

// Completer is the minimal model surface the router needs. Satisfied by
// langchaingo-backed models; tests substitute a stub.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures the router service.
type Config struct {
	// BaseURL of the OpenAI-compatible endpoint.
	BaseURL string

	// Model name requested from the endpoint.
	Model string

	// APIKey for the endpoint. Local endpoints accept a placeholder.
	APIKey string

	// Timeout bounds one routing call end to end.
	Timeout time.Duration

	// RequestsPerSecond rate-limits calls to the model. Zero disables
	// limiting.
	RequestsPerSecond float64

	// Temperature for plan generation. Low by default: routing wants
	// determinism, not creativity.
	Temperature float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 2,
		Temperature:       0.1,
	}
}

// Service implements the core router port over a Completer.
type Service struct {
	cfg       Config
	completer Completer
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New creates a router backed by an OpenAI-compatible endpoint.
func New(cfg Config, logger *zap.Logger) (*Service, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for local endpoints
		apiKey = "placeholder"
	}
	opts = append(opts, openai.WithToken(apiKey))

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	return NewWithCompleter(cfg, &llmCompleter{llm: llm, temperature: cfg.Temperature}, logger)
}

// NewWithCompleter creates a router over an explicit Completer.
func NewWithCompleter(cfg Config, completer Completer, logger *zap.Logger) (*Service, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Service{cfg: cfg, completer: completer, limiter: limiter, logger: logger}, nil
}

// decision carries the routing fields layered on top of the plan shape.
type decision struct {
	Intent string `json:"intent"`
}

// Route implements the core router port.
func (s *Service) Route(ctx context.Context, text string, rc core.RouterContext) (*core.RouteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, core.NewError(core.ErrKindRouting, "routing rate limit wait canceled", err)
		}
	}

	raw, err := s.completer.Complete(ctx, buildPrompt(text, rc))
	if err != nil {
		return nil, core.NewError(core.ErrKindRouting, "model call failed", err)
	}

	p, err := plan.Extract(raw)
	if err != nil {
		s.logger.Debug("unparseable routing response", zap.String("raw", raw), zap.Error(err))
		return nil, core.NewError(core.ErrKindRouting, "malformed routing response", err)
	}

	var d decision
	// Extract already proved raw is valid JSON.
	_ = json.Unmarshal([]byte(raw), &d)

	if d.Intent == "query" && p.Status == plan.StatusOk {
		return &core.RouteResponse{
			Action:     core.ActionQueryExecutor,
			Confidence: confidenceOf(p),
		}, nil
	}

	switch err := plan.Classify(p); {
	case errors.Is(err, plan.ErrDenied):
		reason := p.Reason
		if reason == "" {
			reason = "request could not be routed to a command"
		}
		return &core.RouteResponse{Action: core.ActionCannotParse, Reason: reason}, nil

	case errors.Is(err, plan.ErrIncomplete):
		return nil, core.NewError(core.ErrKindPlanInvalid, "router returned ok without a plan", err)
	}

	prompt := text
	if p.Plan.Explanation != "" {
		prompt = p.Plan.Explanation
	}
	s.logger.Debug("routed to launch",
		zap.String("prompt", prompt), zap.Float64("confidence", confidenceOf(p)))

	return &core.RouteResponse{
		Action:     core.ActionLaunchClaude,
		Prompt:     prompt,
		Confidence: confidenceOf(p),
	}, nil
}

func confidenceOf(p *plan.CommandPlan) float64 {
	if p.Confidence == nil {
		return 0
	}
	return p.Confidence.Score
}

// llmCompleter adapts a langchaingo model to the Completer interface.
type llmCompleter struct {
	llm         llms.Model
	temperature float64
}

func (c *llmCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(c.temperature),
		llms.WithJSONMode(),
	)
}
