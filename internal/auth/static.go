package auth

import (
	"context"
	"fmt"
	"sync"
)

// Static is a fixed in-memory Authorizer for tests and single-tenant dev
// mode.
type Static struct {
	mu      sync.RWMutex
	tokens  map[string]Identity
	members map[string]map[string]bool
}

func NewStatic() *Static {
	return &Static{
		tokens:  make(map[string]Identity),
		members: make(map[string]map[string]bool),
	}
}

// AddToken registers a token for a user.
func (a *Static) AddToken(token, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = Identity{UserID: userID}
}

// AddMember provisions a room if needed and adds a member.
func (a *Static) AddMember(roomID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.members[roomID] == nil {
		a.members[roomID] = make(map[string]bool)
	}
	a.members[roomID][userID] = true
}

func (a *Static) VerifyToken(ctx context.Context, token string) (Identity, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if token == "" {
		return Identity{}, fmt.Errorf("missing token: %w", ErrUnauthenticated)
	}
	identity, ok := a.tokens[token]
	if !ok {
		return Identity{}, fmt.Errorf("unknown token: %w", ErrUnauthenticated)
	}
	return identity, nil
}

func (a *Static) IsMember(ctx context.Context, identity Identity, roomID string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	members, ok := a.members[roomID]
	if !ok {
		return false, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
	}
	return members[identity.UserID], nil
}
