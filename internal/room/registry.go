package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillhq/quill/backend/internal/store"
)

const loadTimeout = 30 * time.Second

// Registry is the process-wide map from room id to resident Room. Exactly
// one Room exists per id at a time; creation is guarded so two simultaneous
// first-accesses cannot construct duplicates.
type Registry struct {
	store        store.Store
	saveDebounce time.Duration
	log          zerolog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(st store.Store, saveDebounce time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		store:        st,
		saveDebounce: saveDebounce,
		log:          log,
		rooms:        make(map[string]*Room),
	}
}

// GetOrCreate returns the resident Room or constructs one, registering it
// before its asynchronous load begins so concurrent lookups during the load
// observe the same instance. A room caught mid-retirement is replaced.
func (reg *Registry) GetOrCreate(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[roomID]; ok && !r.isClosed() {
		return r
	}

	r := newRoom(roomID, reg.store, reg.saveDebounce, reg.log)
	reg.rooms[roomID] = r
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		r.load(ctx)
	}()
	return r
}

// Rooms returns a snapshot of the resident rooms.
func (reg *Registry) Rooms() []*Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Len returns the number of resident rooms.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// ConnCount returns the number of live connections across all rooms.
func (reg *Registry) ConnCount() int {
	total := 0
	for _, r := range reg.Rooms() {
		total += r.ConnCount()
	}
	return total
}

// FlushAll writes out every dirty room. Used at shutdown.
func (reg *Registry) FlushAll(ctx context.Context) {
	for _, r := range reg.Rooms() {
		if err := r.Flush(ctx); err != nil {
			reg.log.Error().Err(err).Str("room", r.ID).Msg("shutdown flush failed")
		}
	}
}

// evictIdle unloads rooms that have been idle past the cutoff. A room is
// only dropped after its state is safely persisted; it reloads from the
// store on next access. Returns the number of rooms evicted.
func (reg *Registry) evictIdle(ctx context.Context, cutoff time.Time) int {
	evicted := 0
	for _, r := range reg.Rooms() {
		if !r.idleSince(cutoff) {
			continue
		}
		if err := r.Flush(ctx); err != nil {
			reg.log.Warn().Err(err).Str("room", r.ID).Msg("eviction flush failed")
			continue
		}

		reg.mu.Lock()
		if reg.rooms[r.ID] == r && r.retire() {
			delete(reg.rooms, r.ID)
			evicted++
		}
		reg.mu.Unlock()
	}
	return evicted
}
