// Package memtransport is an in-process Transport, the default used in
// tests and for same-process authorities: frames are handed directly
// between paired channel pipes rather than crossing a socket.
package memtransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/babyman/fraktor/internal/remoting"
)

// Network is a shared registry of named endpoints; Dial("peer") from one
// Network-attached Transport delivers to the Transport registered under
// "peer" on the same Network.
type Network struct {
	mu        sync.Mutex
	endpoints map[string]chan []byte
}

func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]chan []byte)}
}

func (n *Network) register(name string) chan []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.endpoints[name]
	if !ok {
		ch = make(chan []byte, 64)
		n.endpoints[name] = ch
	}
	return ch
}

type Transport struct {
	net  *Network
	self string
}

func New(net *Network, selfAuthority string) *Transport {
	net.register(selfAuthority)
	return &Transport{net: net, self: selfAuthority}
}

var _ remoting.Transport = (*Transport)(nil)

func (t *Transport) Dial(ctx context.Context, authority string) (remoting.Conn, error) {
	t.net.mu.Lock()
	peerCh, ok := t.net.endpoints[authority]
	t.net.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("memtransport: unknown authority %q", authority)
	}
	selfCh := t.net.register(t.self)
	return &conn{send: peerCh, recv: selfCh}, nil
}

type conn struct {
	send chan<- []byte
	recv <-chan []byte
}

func (c *conn) Send(ctx context.Context, frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.recv:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close() error { return nil }
