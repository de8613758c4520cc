package presence

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeDiff(t *testing.T, entries map[string]any) []byte {
	t.Helper()
	payload, err := cbor.Marshal(entries)
	require.NoError(t, err)
	return payload
}

func decodeDiff(t *testing.T, payload []byte) map[string]cbor.RawMessage {
	t.Helper()
	var diff map[string]cbor.RawMessage
	require.NoError(t, cbor.Unmarshal(payload, &diff))
	return diff
}

func TestApplySetsEntries(t *testing.T) {
	tr := NewTracker()

	set, removed, err := tr.Apply(encodeDiff(t, map[string]any{
		"p1": map[string]any{"cursor": 4},
		"p2": map[string]any{"cursor": 9},
	}))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"p1", "p2"}, set)
	assert.Empty(t, removed)
	assert.Equal(t, 2, tr.Len())
	assert.True(t, tr.Has("p1"))
}

func TestApplyNullRemoves(t *testing.T) {
	tr := NewTracker()

	_, _, err := tr.Apply(encodeDiff(t, map[string]any{"p1": "state"}))
	require.NoError(t, err)

	set, removed, err := tr.Apply(encodeDiff(t, map[string]any{"p1": nil}))
	require.NoError(t, err)

	assert.Empty(t, set)
	assert.Equal(t, []string{"p1"}, removed)
	assert.Equal(t, 0, tr.Len())
}

func TestApplyRemoveUnknownEntryIsNoop(t *testing.T) {
	tr := NewTracker()

	set, removed, err := tr.Apply(encodeDiff(t, map[string]any{"ghost": nil}))
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.Empty(t, removed)
}

func TestApplyRejectsGarbage(t *testing.T) {
	tr := NewTracker()

	_, _, err := tr.Apply([]byte{0xff, 0xff})
	assert.ErrorIs(t, err, ErrMalformedDiff)
}

func TestRemoveProducesRetractionDiff(t *testing.T) {
	tr := NewTracker()

	_, _, err := tr.Apply(encodeDiff(t, map[string]any{"p1": "a", "p2": "b"}))
	require.NoError(t, err)

	retraction := tr.Remove([]string{"p1", "never-existed"})
	require.NotNil(t, retraction)

	diff := decodeDiff(t, retraction)
	require.Len(t, diff, 1)
	assert.Equal(t, cbor.RawMessage{0xf6}, diff["p1"])

	assert.False(t, tr.Has("p1"))
	assert.True(t, tr.Has("p2"))
}

func TestRemoveNothingReturnsNil(t *testing.T) {
	tr := NewTracker()
	assert.Nil(t, tr.Remove([]string{"p1"}))
}

func TestSnapshot(t *testing.T) {
	tr := NewTracker()
	assert.Nil(t, tr.Snapshot(), "empty tracker has no snapshot")

	_, _, err := tr.Apply(encodeDiff(t, map[string]any{"p1": "a"}))
	require.NoError(t, err)

	snap := tr.Snapshot()
	require.NotNil(t, snap)

	// A snapshot is itself a valid diff: applying it to a fresh tracker
	// reproduces the entries.
	other := NewTracker()
	set, _, err := other.Apply(snap)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, set)
	assert.Equal(t, 1, other.Len())
}
