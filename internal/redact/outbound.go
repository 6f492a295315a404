package redact

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/core"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
)

// Outbound decorates a core outbound port, scrubbing the human-readable
// Text and Reason fields before delivery. Kinds, IDs and routing metadata
// pass through unchanged.
type Outbound struct {
	next     core.Outbound
	redactor *Redactor
	logger   *zap.Logger
}

// WrapOutbound returns an outbound port that scrubs before forwarding to
// next.
func WrapOutbound(next core.Outbound, redactor *Redactor, logger *zap.Logger) *Outbound {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbound{next: next, redactor: redactor, logger: logger}
}

// Deliver implements core.Outbound.
func (o *Outbound) Deliver(ctx context.Context, msg protocol.Message) error {
	regions := 0
	if scrubbed, n := o.redactor.Apply(msg.Text); n > 0 {
		msg.Text = scrubbed
		regions += n
	}
	if scrubbed, n := o.redactor.Apply(msg.Reason); n > 0 {
		msg.Reason = scrubbed
		regions += n
	}
	if regions > 0 {
		o.logger.Warn("redacted credentials in outbound message",
			zap.String("kind", string(msg.Kind)),
			zap.Int("regions", regions))
	}
	return o.next.Deliver(ctx, msg)
}
