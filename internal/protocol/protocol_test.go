package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		wantErr bool
	}{
		{"empty", nil, true},
		{"sync with payload", []byte{0, 1, 2, 3}, false},
		{"presence with payload", []byte{1, 9}, false},
		{"sync missing payload", []byte{0}, true},
		{"presence missing payload", []byte{1}, true},
		{"unknown tag", []byte{7, 1, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.frame)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	frame := Frame(MessagePresence, payload)

	require.NoError(t, Validate(frame))
	assert.Equal(t, MessagePresence, Tag(frame))
	assert.Equal(t, payload, Payload(frame))
}

func TestFrameDoesNotAliasPayload(t *testing.T) {
	payload := []byte{1, 2, 3}
	frame := Frame(MessageSync, payload)

	payload[0] = 9
	assert.Equal(t, byte(1), frame[1])
}
