package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQL is a sqlite-backed Store.
type SQL struct {
	db *sql.DB
}

func OpenSQL(dbPath string) (*SQL, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQL{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_snapshots (
		room_id TEXT PRIMARY KEY,
		snapshot_data BLOB NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := db.Exec(schema)
	return err
}

// DB exposes the underlying handle so sibling adapters can share one
// database file.
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Get(ctx context.Context, roomID string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot_data FROM room_snapshots WHERE room_id = ?",
		roomID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *SQL) Put(ctx context.Context, roomID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_snapshots (room_id, snapshot_data, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			snapshot_data = excluded.snapshot_data,
			saved_at = excluded.saved_at
	`, roomID, blob, time.Now().UTC())
	return err
}

// Stats returns operational counters for the ops API.
func (s *SQL) Stats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var roomCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_snapshots").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["saved_rooms"] = roomCount

	return stats, nil
}
