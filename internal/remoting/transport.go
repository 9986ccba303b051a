package remoting

import "context"

// Transport is the abstract wire: something that can open a channel to an
// authority and ship frames over it. The bridge's read/write lock guards
// only its authority-to-Conn map and is released before Conn.Send, so the
// bridge does not serialize concurrent sends on one Conn.
type Transport interface {
	// Dial opens (or reuses) a connection to authority, returning a
	// Conn the bridge can write frames to and read frames from.
	Dial(ctx context.Context, authority string) (Conn, error)
}

// Conn is one open channel to a peer authority.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
	Close() error
}
