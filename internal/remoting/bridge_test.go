package remoting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/babyman/fraktor/internal/remoting"
	"github.com/babyman/fraktor/internal/remoting/transport/memtransport"
)

func newBridge(t *testing.T, net *memtransport.Network, authority string, onUser remoting.UserMessageHandler, onSystem remoting.SystemMessageHandler) *remoting.Bridge {
	t.Helper()
	coordinator := remoting.NewCoordinator(func() time.Duration { return 0 }, 2*time.Second, 5*time.Second)
	sequencer := remoting.NewSequencer()
	cfg := remoting.DefaultBridgeConfig(authority)
	cfg.HandshakeTimeout = 2 * time.Second
	return remoting.NewBridge(cfg, memtransport.New(net, authority), coordinator, sequencer, onUser, onSystem, nil, nil)
}

func TestBridgeHandshakeThenUserMessageDelivery(t *testing.T) {
	net := memtransport.NewNetwork()

	var mu sync.Mutex
	var received []string
	recv := func(_ string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(payload))
	}

	a := newBridge(t, net, "node-a", nil, nil)
	b := newBridge(t, net, "node-b", recv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	b.Start(ctx)

	require.NoError(t, a.Connect(ctx, "node-b", nil))
	require.NoError(t, b.Connect(ctx, "node-a", nil))

	require.Eventually(t, func() bool {
		return a.SendUser(ctx, "node-b", []byte("hello"), nil) == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == "hello"
	}, time.Second, 10*time.Millisecond)
}

func TestBridgeSystemMessageDeliveredAndAcked(t *testing.T) {
	net := memtransport.NewNetwork()

	var mu sync.Mutex
	var received []string
	recv := func(_ string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(payload))
	}

	a := newBridge(t, net, "node-a", nil, nil)
	b := newBridge(t, net, "node-b", nil, recv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	b.Start(ctx)

	require.NoError(t, a.Connect(ctx, "node-b", nil))
	require.NoError(t, b.Connect(ctx, "node-a", nil))
	require.Eventually(t, func() bool {
		return a.SendSystem(ctx, "node-b", []byte("system-cmd")) == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == "system-cmd"
	}, time.Second, 10*time.Millisecond)
}
