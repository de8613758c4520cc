package presence

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedDiff marks a presence payload that could not be decoded.
var ErrMalformedDiff = errors.New("malformed presence diff")

// cborNull is the encoding of a CBOR null value.
var cborNull = []byte{0xf6}

// Tracker holds the ephemeral per-session state of one room: cursors,
// selections, display info. Entries are keyed by a session-scoped id, not by
// user identity, so one user with two tabs has two independent entries.
// Nothing in here is ever persisted. Not safe for concurrent use; the owning
// room serializes all access.
type Tracker struct {
	entries map[string]cbor.RawMessage
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]cbor.RawMessage)}
}

// Diff is the wire form of a presence update: entry id to state, with a
// null state meaning removal.
type Diff map[string]cbor.RawMessage

// Apply merges an encoded diff into the tracker. It returns the entry ids
// that were set and the ids that were removed.
func (t *Tracker) Apply(payload []byte) (set, removed []string, err error) {
	var diff Diff
	if err := cbor.Unmarshal(payload, &diff); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedDiff, err)
	}

	for id, state := range diff {
		if isNull(state) {
			if _, ok := t.entries[id]; ok {
				delete(t.entries, id)
				removed = append(removed, id)
			}
			continue
		}
		t.entries[id] = state
		set = append(set, id)
	}
	return set, removed, nil
}

// Remove drops the given entries and returns an encoded retraction diff for
// broadcast, or nil if none of them were present.
func (t *Tracker) Remove(entryIDs []string) []byte {
	diff := make(Diff)
	for _, id := range entryIDs {
		if _, ok := t.entries[id]; !ok {
			continue
		}
		delete(t.entries, id)
		diff[id] = cborNull
	}
	if len(diff) == 0 {
		return nil
	}
	payload, err := cbor.Marshal(diff)
	if err != nil {
		return nil
	}
	return payload
}

// Snapshot encodes every live entry for the initial sync of a newly joined
// connection, or nil when the room has no presence.
func (t *Tracker) Snapshot() []byte {
	if len(t.entries) == 0 {
		return nil
	}
	payload, err := cbor.Marshal(Diff(t.entries))
	if err != nil {
		return nil
	}
	return payload
}

func (t *Tracker) Len() int {
	return len(t.entries)
}

// Has reports whether an entry id is live.
func (t *Tracker) Has(entryID string) bool {
	_, ok := t.entries[entryID]
	return ok
}

func isNull(raw cbor.RawMessage) bool {
	return len(raw) == 0 || (len(raw) == 1 && raw[0] == 0xf6)
}
