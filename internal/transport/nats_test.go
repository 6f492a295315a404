package transport

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxd/internal/config"
	"github.com/fyrsmithlabs/voxd/internal/protocol"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	bus, err := NewBus(config.NATSConfig{
		Enabled:       true,
		Embedded:      true,
		SubjectPrefix: "voxdtest",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(bus.Close)
	return bus
}

func TestBusDeliverReachesOutboundObservers(t *testing.T) {
	bus := newTestBus(t)

	ch, sub, err := bus.SubscribeOutbound()
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	require.NoError(t, bus.Deliver(context.Background(), protocol.Status("executor started (mock)")))

	select {
	case msg := <-ch:
		assert.Equal(t, protocol.KindStatus, msg.Kind)
		assert.Equal(t, "executor started (mock)", msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("outbound message never arrived")
	}
}

func TestBusInboundFiltersRelayOnlyKinds(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var got []protocol.Message
	require.NoError(t, bus.SubscribeInbound(func(msg protocol.Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}))

	pub, err := NewBus(config.NATSConfig{
		Enabled:       true,
		URL:           bus.ClientURL(),
		SubjectPrefix: "voxdtest",
	}, zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	publish := func(msg protocol.Message) {
		t.Helper()
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, pub.nc.Publish(pub.subject(subjectInbound), data))
	}

	publish(protocol.SessionEnded("deadbeef", "forged"))
	publish(protocol.UserText("status?", "tui", true))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, protocol.KindUserText, got[0].Kind)
	assert.Equal(t, "status?", got[0].Text)
}

func TestBusDropsMalformedInbound(t *testing.T) {
	bus := newTestBus(t)

	delivered := make(chan protocol.Message, 1)
	require.NoError(t, bus.SubscribeInbound(func(msg protocol.Message) {
		delivered <- msg
	}))

	require.NoError(t, bus.nc.Publish(bus.subject(subjectInbound), []byte("{not json")))
	require.NoError(t, bus.nc.Flush())

	select {
	case msg := <-delivered:
		t.Fatalf("malformed payload was delivered as %v", msg.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBusDeliverRespectsContext(t *testing.T) {
	bus := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, bus.Deliver(ctx, protocol.Status("never sent")))
}
