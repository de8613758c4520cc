package store

import (
	"context"
	"errors"
)

// ErrClosed is returned once a store has been shut down.
var ErrClosed = errors.New("store closed")

// Store persists one opaque document snapshot per room, last writer wins.
// Implementations must tolerate concurrent calls for distinct rooms; the hub
// guarantees at most one write in flight per room.
type Store interface {
	// Get returns the persisted snapshot for a room, or nil if the room has
	// never been saved.
	Get(ctx context.Context, roomID string) ([]byte, error)

	// Put replaces the persisted snapshot for a room.
	Put(ctx context.Context, roomID string, blob []byte) error
}
