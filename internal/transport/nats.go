// Package transport exposes the orchestrator over NATS and HTTP. Both
// adapters are thin: they validate and forward protocol messages, all
// behavior lives in the core.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/config"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
)

// Subject suffixes under the configured prefix.
const (
	subjectInbound  = "inbound"
	subjectOutbound = "outbound"
)

// Bus connects the orchestrator to a NATS server. Inbound messages arrive
// on <prefix>.inbound and are fed to the dispatcher; every outbound
// message is published on <prefix>.outbound for observers such as the TUI.
type Bus struct {
	nc     *nats.Conn
	srv    *natsserver.Server
	prefix string
	logger *zap.Logger
	sub    *nats.Subscription
}

// NewBus connects to the configured server, or starts an embedded one when
// cfg.Embedded is set.
func NewBus(cfg config.NATSConfig, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	url := cfg.URL
	var srv *natsserver.Server
	if cfg.Embedded {
		opts := &natsserver.Options{
			Host:   "127.0.0.1",
			Port:   -1, // random port
			NoLog:  true,
			NoSigs: true,
		}
		var err error
		srv, err = natsserver.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedded nats server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			srv.Shutdown()
			return nil, fmt.Errorf("embedded nats server did not become ready")
		}
		url = srv.ClientURL()
		logger.Info("embedded nats server started", zap.String("url", url))
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		if srv != nil {
			srv.Shutdown()
		}
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))

	return &Bus{nc: nc, srv: srv, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// ClientURL returns the URL clients should connect to.
func (b *Bus) ClientURL() string {
	if b.srv != nil {
		return b.srv.ClientURL()
	}
	return b.nc.ConnectedUrl()
}

func (b *Bus) subject(suffix string) string {
	return b.prefix + "." + suffix
}

// Deliver implements the core outbound port by publishing the message on
// the outbound subject.
func (b *Bus) Deliver(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	if err := b.nc.Publish(b.subject(subjectOutbound), data); err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}
	return nil
}

// SubscribeInbound feeds well-formed inbound messages to enqueue. Messages
// with non-inbound kinds are dropped: the relay-internal session_ended kind
// must never be injectable from outside.
func (b *Bus) SubscribeInbound(enqueue func(protocol.Message)) error {
	sub, err := b.nc.Subscribe(b.subject(subjectInbound), func(m *nats.Msg) {
		var msg protocol.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Warn("dropping malformed inbound message", zap.Error(err))
			return
		}
		if !msg.Kind.Inbound() {
			b.logger.Warn("dropping message with non-inbound kind",
				zap.String("kind", string(msg.Kind)))
			return
		}
		enqueue(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to inbound subject: %w", err)
	}
	b.sub = sub
	return nil
}

// SubscribeOutbound returns a channel of outbound messages for observer
// clients. The channel closes when the subscription ends.
func (b *Bus) SubscribeOutbound() (<-chan protocol.Message, *nats.Subscription, error) {
	ch := make(chan protocol.Message, 64)
	sub, err := b.nc.Subscribe(b.subject(subjectOutbound), func(m *nats.Msg) {
		var msg protocol.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Warn("dropping malformed outbound message", zap.Error(err))
			return
		}
		select {
		case ch <- msg:
		default:
			b.logger.Warn("outbound observer channel full, dropping message")
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("failed to subscribe to outbound subject: %w", err)
	}
	return ch, sub, nil
}

// Close drains the connection and stops the embedded server, if any.
func (b *Bus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		_ = b.nc.Drain()
	}
	if b.srv != nil {
		b.srv.Shutdown()
	}
}
