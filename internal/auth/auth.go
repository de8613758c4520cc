package auth

import (
	"context"
	"errors"
)

var (
	// ErrUnauthenticated rejects a missing, unknown, or expired token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden rejects an identity that is not a member of the room.
	ErrForbidden = errors.New("forbidden")

	// ErrRoomNotFound rejects a room that was never provisioned.
	ErrRoomNotFound = errors.New("room not found")
)

// Identity is the authenticated user bound to a connection for its lifetime.
type Identity struct {
	UserID string
}

// Authorizer is the external authorization capability. Token issuance and
// room provisioning happen elsewhere; the hub only verifies.
// Implementations may be slow (remote lookups) and must honor ctx.
type Authorizer interface {
	// VerifyToken resolves an identity token, or ErrUnauthenticated.
	VerifyToken(ctx context.Context, token string) (Identity, error)

	// IsMember reports whether the identity may join a room. Returns
	// ErrRoomNotFound when the room was never provisioned.
	IsMember(ctx context.Context, identity Identity, roomID string) (bool, error)
}
