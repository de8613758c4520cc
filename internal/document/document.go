package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/automerge/automerge-go"
)

// ErrMalformedUpdate marks a sync payload the document could not apply.
var ErrMalformedUpdate = errors.New("malformed update")

// ChangeFunc is invoked synchronously after every mutation that moved the
// document heads. origin is the opaque source of the update, or nil for
// state merged from persistence.
type ChangeFunc func(origin any)

// Document wraps a replicated automerge document. It is not safe for
// concurrent use; the owning room serializes all access.
type Document struct {
	doc      *automerge.Doc
	onChange ChangeFunc
}

func New() *Document {
	return &Document{doc: automerge.New()}
}

// OnChange registers the single change handler. The room sets this once at
// construction time.
func (d *Document) OnChange(fn ChangeFunc) {
	d.onChange = fn
}

// Load replaces the document contents with a persisted snapshot. Only valid
// before any sync state has been handed out.
func (d *Document) Load(blob []byte) error {
	loaded, err := automerge.Load(blob)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	d.doc = loaded
	d.fireChange(nil)
	return nil
}

// FullState returns an opaque snapshot sufficient to reconstruct the
// document from empty.
func (d *Document) FullState() []byte {
	return d.doc.Save()
}

// StateSummary returns the current heads, a compact fingerprint of this
// replica's knowledge.
func (d *Document) StateSummary() []automerge.ChangeHash {
	return d.doc.Heads()
}

// HeadsKey returns the current heads as one comparable string.
func (d *Document) HeadsKey() string {
	var b strings.Builder
	for _, h := range d.doc.Heads() {
		b.WriteString(h.String())
	}
	return b.String()
}

// ChangesSince returns the changes needed to bring a replica at the given
// heads up to date.
func (d *Document) ChangesSince(heads []automerge.ChangeHash) ([]*automerge.Change, error) {
	return d.doc.Changes(heads...)
}

// ApplyChanges merges changes produced by another replica.
func (d *Document) ApplyChanges(origin any, changes ...*automerge.Change) error {
	before := d.doc.Heads()
	if err := d.doc.Apply(changes...); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	if !headsEqual(before, d.doc.Heads()) {
		d.fireChange(origin)
	}
	return nil
}

// NewSyncState creates the per-peer sync protocol state bound to this
// document.
func (d *Document) NewSyncState() *automerge.SyncState {
	return automerge.NewSyncState(d.doc)
}

// ReceiveSyncMessage feeds one sync protocol payload from a peer into its
// sync state, merging any changes it carries into the document. Reports
// whether the document content advanced.
func (d *Document) ReceiveSyncMessage(state *automerge.SyncState, payload []byte, origin any) (changed bool, err error) {
	before := d.doc.Heads()
	if _, err := state.ReceiveMessage(payload); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedUpdate, err)
	}
	changed = !headsEqual(before, d.doc.Heads())
	if changed {
		d.fireChange(origin)
	}
	return changed, nil
}

// GenerateSyncMessages drains the pending outbound sync payloads for one
// peer. An empty result means the peer is up to date.
func (d *Document) GenerateSyncMessages(state *automerge.SyncState) [][]byte {
	var out [][]byte
	for {
		msg, valid := state.GenerateMessage()
		if !valid {
			break
		}
		out = append(out, msg.Bytes())
	}
	return out
}

func (d *Document) fireChange(origin any) {
	if d.onChange != nil {
		d.onChange(origin)
	}
}

func headsEqual(a, b []automerge.ChangeHash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].String() != b[i].String() {
			return false
		}
	}
	return true
}
