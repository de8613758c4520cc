package protocol

import (
	"errors"
	"fmt"
)

// Represents the type of a wire frame
type MessageType byte

const (
	// Carries a document sync payload (state exchange or incremental update)
	MessageSync MessageType = 0

	// Carries an encoded presence diff (cursors, selections)
	MessagePresence MessageType = 1
)

var ErrMalformedFrame = errors.New("malformed frame")

// Extracts the message type from the first byte
func Tag(frame []byte) MessageType {
	if len(frame) == 0 {
		return MessageSync
	}
	return MessageType(frame[0])
}

// Returns the payload following the tag byte
func Payload(frame []byte) []byte {
	if len(frame) < 2 {
		return nil
	}
	return frame[1:]
}

// Prepends the tag byte to a payload
func Frame(t MessageType, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, byte(t))
	return append(frame, payload...)
}

// Checks the outer shape of an incoming frame before it reaches a room
func Validate(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	switch MessageType(frame[0]) {
	case MessageSync, MessagePresence:
		if len(frame) < 2 {
			return fmt.Errorf("%w: missing payload", ErrMalformedFrame)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown message type %d", ErrMalformedFrame, frame[0])
	}
}
