package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQL answers token and membership lookups from sqlite tables maintained by
// the account service. It shares the hub's database handle.
type SQL struct {
	db *sql.DB
}

func NewSQL(db *sql.DB) (*SQL, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS memberships (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (room_id, user_id),
		FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

func (a *SQL) VerifyToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("missing token: %w", ErrUnauthenticated)
	}

	var userID string
	var expiresAt time.Time
	err := a.db.QueryRowContext(ctx,
		"SELECT user_id, expires_at FROM tokens WHERE token = ?",
		token,
	).Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return Identity{}, fmt.Errorf("unknown token: %w", ErrUnauthenticated)
	}
	if err != nil {
		return Identity{}, err
	}
	if time.Now().After(expiresAt) {
		return Identity{}, fmt.Errorf("expired token: %w", ErrUnauthenticated)
	}
	return Identity{UserID: userID}, nil
}

func (a *SQL) IsMember(ctx context.Context, identity Identity, roomID string) (bool, error) {
	var exists int
	err := a.db.QueryRowContext(ctx,
		"SELECT 1 FROM rooms WHERE id = ?",
		roomID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("room %s: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return false, err
	}

	err = a.db.QueryRowContext(ctx,
		"SELECT 1 FROM memberships WHERE room_id = ? AND user_id = ?",
		roomID, identity.UserID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
