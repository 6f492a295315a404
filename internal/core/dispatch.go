package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/protocol"
)

// DefaultInboxSize buffers inbound messages between producers and the
// single dispatch loop.
const DefaultInboxSize = 256

// Dispatcher serializes all Handle calls against one Core. Transports and
// the executor relay both feed it through Enqueue; Run drains the inbox on
// a single goroutine, which is the machine's entire concurrency story.
type Dispatcher struct {
	core   *Core
	logger *zap.Logger
	inbox  chan protocol.Message
}

// NewDispatcher wires a dispatcher to the core and binds the core's relay
// feedback path to Enqueue.
func NewDispatcher(c *Core, size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultInboxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		core:   c,
		logger: logger,
		inbox:  make(chan protocol.Message, size),
	}
	c.BindInbound(d.Enqueue)
	return d
}

// Enqueue adds a message to the inbound stream. When the inbox is full the
// message is dropped with a warning rather than blocking the producer.
func (d *Dispatcher) Enqueue(msg protocol.Message) {
	select {
	case d.inbox <- msg:
	default:
		d.logger.Warn("inbox full, dropping message", zap.String("kind", string(msg.Kind)))
	}
}

// Run processes inbound messages one at a time until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-d.inbox:
			if err := d.core.Handle(ctx, msg); err != nil {
				d.logger.Error("handle failed",
					zap.String("kind", string(msg.Kind)), zap.Error(err))
			}
		}
	}
}
