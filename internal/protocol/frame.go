package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header sizes for the two directions of the world protocol. The size
// field is big-endian and counts the opcode plus the payload.
const (
	ServerHeaderSize = 4 // [size:2 BE][opcode:2 LE]
	ClientHeaderSize = 6 // [size:2 BE][opcode:4 LE]
)

// ReadServerMessage reads one server-to-client message.
func ReadServerMessage(r io.Reader) (Message, error) {
	var hdr [ServerHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, fmt.Errorf("failed to read message header: %w", err)
	}

	size := int(binary.BigEndian.Uint16(hdr[:2]))
	if size < 2 {
		return Message{}, fmt.Errorf("message size too small: %d bytes", size)
	}
	op := Opcode(binary.LittleEndian.Uint16(hdr[2:]))

	payload := make([]byte, size-2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("failed to read %s payload (%d bytes): %w", op, len(payload), err)
	}
	return Message{Opcode: op, Payload: payload}, nil
}

// WriteServerMessage writes one server-to-client message. Used by the
// loopback relay and tests that play the server side.
func WriteServerMessage(w io.Writer, op Opcode, payload []byte) error {
	if len(payload)+2 > MaxPacketSize {
		return fmt.Errorf("%s payload too large: %d bytes", op, len(payload))
	}
	frame := make([]byte, ServerHeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[:2], uint16(len(payload)+2))
	binary.LittleEndian.PutUint16(frame[2:4], uint16(op))
	copy(frame[ServerHeaderSize:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", op, err)
	}
	return nil
}

// ReadClientMessage reads one client-to-server message.
func ReadClientMessage(r io.Reader) (Message, error) {
	var hdr [ClientHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Message{}, fmt.Errorf("failed to read message header: %w", err)
	}

	size := int(binary.BigEndian.Uint16(hdr[:2]))
	if size < 4 {
		return Message{}, fmt.Errorf("message size too small: %d bytes", size)
	}
	op := Opcode(binary.LittleEndian.Uint32(hdr[2:]))

	payload := make([]byte, size-4)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("failed to read %s payload (%d bytes): %w", op, len(payload), err)
	}
	return Message{Opcode: op, Payload: payload}, nil
}

// WriteClientMessage writes one client-to-server message in a single
// Write call so concurrent senders never interleave frames.
func WriteClientMessage(w io.Writer, op Opcode, payload []byte) error {
	if len(payload)+4 > MaxPacketSize {
		return fmt.Errorf("%s payload too large: %d bytes", op, len(payload))
	}
	frame := make([]byte, ClientHeaderSize+len(payload))
	binary.BigEndian.PutUint16(frame[:2], uint16(len(payload)+4))
	binary.LittleEndian.PutUint32(frame[2:6], uint32(op))
	copy(frame[ClientHeaderSize:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s: %w", op, err)
	}
	return nil
}
