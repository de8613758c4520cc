package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/rs/zerolog"

	"github.com/quillhq/quill/backend/internal/document"
	"github.com/quillhq/quill/backend/internal/presence"
	"github.com/quillhq/quill/backend/internal/protocol"
	"github.com/quillhq/quill/backend/internal/store"
)

// ErrRoomClosed rejects connections arriving while a room is being retired.
// The caller should resolve the room again through the registry.
var ErrRoomClosed = errors.New("room closed")

const saveTimeout = 10 * time.Second

// connState is the per-connection bookkeeping a room keeps: the sync
// protocol state bound to the room document and the presence entries the
// connection owns.
type connState struct {
	sync    *automerge.SyncState
	entries map[string]struct{}
}

// Room is the unit of collaboration: one replicated document, one presence
// tracker, and the set of live connections, all mutated under one lock.
type Room struct {
	ID string

	store        store.Store
	log          zerolog.Logger
	saveDebounce time.Duration

	// closed once the initial load from the store has finished, whether it
	// found a snapshot, found nothing, or failed
	loadDone chan struct{}

	mu         sync.Mutex
	doc        *document.Document
	presence   *presence.Tracker
	conns      map[Conn]*connState
	closed     bool
	dirty      bool
	saving     bool
	saveTimer  *time.Timer
	lastActive time.Time
}

func newRoom(id string, st store.Store, saveDebounce time.Duration, log zerolog.Logger) *Room {
	r := &Room{
		ID:           id,
		store:        st,
		log:          log.With().Str("room", id).Logger(),
		saveDebounce: saveDebounce,
		loadDone:     make(chan struct{}),
		doc:          document.New(),
		presence:     presence.NewTracker(),
		conns:        make(map[Conn]*connState),
		lastActive:   time.Now(),
	}
	r.doc.OnChange(r.onDocChange)
	return r
}

// onDocChange runs synchronously under r.mu, inside whichever document
// mutation moved the heads.
func (r *Room) onDocChange(origin any) {
	r.lastActive = time.Now()
	if origin == nil {
		// State merged from persistence; writing it straight back out
		// would only amplify writes.
		return
	}
	r.dirty = true
	r.armSaveLocked()
}

// load runs once, in its own goroutine, at room creation. A store failure
// leaves the room empty rather than blocking connections forever.
func (r *Room) load(ctx context.Context) {
	defer close(r.loadDone)

	blob, err := r.store.Get(ctx, r.ID)
	if err != nil {
		r.log.Error().Err(err).Msg("load failed, starting empty")
		return
	}
	if blob == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.doc.Load(blob); err != nil {
		r.log.Error().Err(err).Msg("snapshot corrupt, starting empty")
	}
}

// AddConnection waits for the initial load, registers the connection, and
// streams it the initial document sync plus the current presence snapshot.
func (r *Room) AddConnection(ctx context.Context, conn Conn) error {
	select {
	case <-r.loadDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if _, ok := r.conns[conn]; ok {
		return nil
	}

	cs := &connState{
		sync:    r.doc.NewSyncState(),
		entries: make(map[string]struct{}),
	}
	r.conns[conn] = cs
	r.lastActive = time.Now()

	for _, payload := range r.doc.GenerateSyncMessages(cs.sync) {
		if err := conn.Send(protocol.Frame(protocol.MessageSync, payload)); err != nil {
			r.removeLocked(conn)
			return err
		}
	}
	if snap := r.presence.Snapshot(); snap != nil {
		if err := conn.Send(protocol.Frame(protocol.MessagePresence, snap)); err != nil {
			r.removeLocked(conn)
			return err
		}
	}

	r.log.Debug().Str("conn", conn.ID()).Str("user", conn.UserID()).Int("conns", len(r.conns)).Msg("connection joined")
	return nil
}

// RemoveConnection unregisters a connection, retracts its presence entries,
// and closes the channel. Calling it twice is a no-op the second time.
func (r *Room) RemoveConnection(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn)
}

func (r *Room) removeLocked(conn Conn) {
	cs, ok := r.conns[conn]
	if !ok {
		return
	}
	delete(r.conns, conn)
	r.lastActive = time.Now()

	if len(cs.entries) > 0 {
		ids := make([]string, 0, len(cs.entries))
		for id := range cs.entries {
			ids = append(ids, id)
		}
		if retraction := r.presence.Remove(ids); retraction != nil {
			r.broadcastLocked(protocol.Frame(protocol.MessagePresence, retraction), nil)
		}
	}

	conn.Close()
	r.log.Debug().Str("conn", conn.ID()).Str("user", conn.UserID()).Int("conns", len(r.conns)).Msg("connection left")
}

// HandleFrame processes one validated frame from a connection.
func (r *Room) HandleFrame(conn Conn, frame []byte) error {
	switch protocol.Tag(frame) {
	case protocol.MessageSync:
		return r.handleSync(conn, protocol.Payload(frame))
	case protocol.MessagePresence:
		return r.handlePresence(conn, protocol.Payload(frame))
	default:
		return protocol.ErrMalformedFrame
	}
}

func (r *Room) handleSync(conn Conn, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.conns[conn]
	if !ok {
		return nil
	}

	if _, err := r.doc.ReceiveSyncMessage(cs.sync, payload, conn); err != nil {
		// A connection feeding us garbage is dropped; siblings are
		// unaffected.
		r.log.Warn().Err(err).Str("user", conn.UserID()).Msg("dropping connection")
		r.removeLocked(conn)
		return err
	}

	r.syncPeersLocked()
	return nil
}

// syncPeersLocked drains the outbound sync protocol messages of every
// connection. Peers that already hold the latest changes generate nothing,
// so this is the update fan-out: after a mutation, every stale sibling gets
// the new changes and the origin gets its protocol reply.
func (r *Room) syncPeersLocked() {
	var failed []Conn
	for conn, cs := range r.conns {
		for _, payload := range r.doc.GenerateSyncMessages(cs.sync) {
			if err := conn.Send(protocol.Frame(protocol.MessageSync, payload)); err != nil {
				failed = append(failed, conn)
				break
			}
		}
	}
	for _, conn := range failed {
		r.removeLocked(conn)
	}
}

func (r *Room) handlePresence(conn Conn, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs, ok := r.conns[conn]
	if !ok {
		return nil
	}

	set, removed, err := r.presence.Apply(payload)
	if err != nil {
		r.log.Warn().Err(err).Str("user", conn.UserID()).Msg("dropping connection")
		r.removeLocked(conn)
		return err
	}

	// Each entry id is owned by exactly one live connection.
	for _, id := range set {
		for other, os := range r.conns {
			if other != conn {
				delete(os.entries, id)
			}
		}
		cs.entries[id] = struct{}{}
	}
	for _, id := range removed {
		delete(cs.entries, id)
	}

	r.lastActive = time.Now()
	r.broadcastLocked(protocol.Frame(protocol.MessagePresence, payload), conn)
	return nil
}

// broadcastLocked fans a frame out to every connection except origin. A send
// failure evicts that connection but does not abort delivery to the rest.
func (r *Room) broadcastLocked(frame []byte, origin Conn) {
	var failed []Conn
	for conn := range r.conns {
		if conn == origin {
			continue
		}
		if err := conn.Send(frame); err != nil {
			failed = append(failed, conn)
		}
	}
	for _, conn := range failed {
		r.removeLocked(conn)
	}
}

// armSaveLocked (re)arms the room's single debounced save task.
func (r *Room) armSaveLocked() {
	if r.closed {
		return
	}
	if r.saveTimer == nil {
		r.saveTimer = time.AfterFunc(r.saveDebounce, r.save)
		return
	}
	r.saveTimer.Reset(r.saveDebounce)
}

// save is the debounce timer callback.
func (r *Room) save() {
	if err := r.Flush(context.Background()); err != nil {
		// Not retried here; the next change rearms the timer.
		r.log.Warn().Err(err).Msg("save failed")
	}
}

// Flush writes the current full state to the store if the room is dirty.
// At most one write is in flight per room at a time.
func (r *Room) Flush(ctx context.Context) error {
	r.mu.Lock()
	if !r.dirty || r.saving {
		r.mu.Unlock()
		return nil
	}
	r.saving = true
	blob := r.doc.FullState()
	encodedAt := r.doc.HeadsKey()
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	err := r.store.Put(ctx, r.ID, blob)

	r.mu.Lock()
	r.saving = false
	if err == nil && r.doc.HeadsKey() == encodedAt {
		r.dirty = false
	}
	r.mu.Unlock()

	if err == nil {
		r.log.Debug().Int("bytes", len(blob)).Msg("saved")
	}
	return err
}

// retire marks the room closed so the registry can drop it. It refuses if
// the room still has connections, unsaved changes, or a write in flight.
func (r *Room) retire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.conns) > 0 || r.dirty || r.saving || r.closed {
		return false
	}
	r.closed = true
	if r.saveTimer != nil {
		r.saveTimer.Stop()
	}
	return true
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// idleSince reports whether the room has had no connections and no activity
// since the given cutoff.
func (r *Room) idleSince(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns) == 0 && r.lastActive.Before(cutoff)
}

// ConnCount returns the number of live connections.
func (r *Room) ConnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// PresenceCount returns the number of live presence entries.
func (r *Room) PresenceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.Len()
}
