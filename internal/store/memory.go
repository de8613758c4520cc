package store

import (
	"context"
	"errors"
	"sync"
)

// ErrPutFailed is returned by Memory when FailPuts is set.
var ErrPutFailed = errors.New("put failed")

// Memory is an in-process Store used by tests and throwaway dev setups.
type Memory struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	puts   map[string]int
	closed bool

	// FailPuts makes every Put return an error, for save-failure tests.
	FailPuts bool
}

func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
		puts:  make(map[string]int),
	}
}

func (m *Memory) Get(ctx context.Context, roomID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	blob, ok := m.blobs[roomID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (m *Memory) Put(ctx context.Context, roomID string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailPuts {
		return ErrPutFailed
	}
	stored := make([]byte, len(blob))
	copy(stored, blob)
	m.blobs[roomID] = stored
	m.puts[roomID]++
	return nil
}

// SetFailPuts toggles FailPuts safely while the store is in use.
func (m *Memory) SetFailPuts(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailPuts = fail
}

// PutCount reports how many writes a room has received.
func (m *Memory) PutCount(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[roomID]
}

func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
