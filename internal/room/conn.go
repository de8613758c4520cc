package room

// Conn is one live client channel bound to a room. The gateway provides the
// websocket implementation; tests use fakes.
type Conn interface {
	// ID is the session identifier, unique per channel.
	ID() string

	// UserID is the authenticated identity bound at channel-open time.
	UserID() string

	// Send enqueues a frame for delivery. It must not block; a full buffer
	// or closed channel returns an error and the room evicts the connection.
	Send(frame []byte) error

	// Close tears down the underlying channel. Safe to call more than once.
	Close()
}
