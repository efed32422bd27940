package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrMalformed is returned when a payload does not fit its shape. A
	// field carrying a value the shape cannot accept is reported as
	// ErrMalformed itself.
	ErrMalformed = errors.New("malformed packet")

	// ErrShortPacket is returned by parsers when a required fixed field lies
	// past the end of the payload. It wraps ErrMalformed.
	ErrShortPacket = fmt.Errorf("%w: short", ErrMalformed)
)

// ReadU8 reads one byte at off. When fewer bytes remain it returns 0 and
// len(buf) so that every following read is short as well.
func ReadU8(buf []byte, off int) (uint8, int) {
	if off < 0 || off+1 > len(buf) {
		return 0, len(buf)
	}
	return buf[off], off + 1
}

// ReadU16 reads a little-endian uint16 at off.
func ReadU16(buf []byte, off int) (uint16, int) {
	if off < 0 || off+2 > len(buf) {
		return 0, len(buf)
	}
	return binary.LittleEndian.Uint16(buf[off:]), off + 2
}

// ReadU32 reads a little-endian uint32 at off.
func ReadU32(buf []byte, off int) (uint32, int) {
	if off < 0 || off+4 > len(buf) {
		return 0, len(buf)
	}
	return binary.LittleEndian.Uint32(buf[off:]), off + 4
}

// ReadU64 reads a little-endian uint64 at off.
func ReadU64(buf []byte, off int) (uint64, int) {
	if off < 0 || off+8 > len(buf) {
		return 0, len(buf)
	}
	return binary.LittleEndian.Uint64(buf[off:]), off + 8
}

// ReadCString scans from off to the next NUL or the end of buf. The text
// found is returned (possibly empty) and the offset moves past the
// terminator when one is present.
func ReadCString(buf []byte, off int) (string, int) {
	if off < 0 || off >= len(buf) {
		return "", len(buf)
	}
	for i := off; i < len(buf); i++ {
		if buf[i] == 0 {
			return string(buf[off:i]), i + 1
		}
	}
	return string(buf[off:]), len(buf)
}

// Reader is a cursor over a borrowed payload. Reads never panic: a read
// that runs past the end yields zero, parks the cursor at the end and
// marks the reader short. Parsers check Short (or Err) once a required
// section has been consumed.
type Reader struct {
	buf   []byte
	off   int
	short bool
}

// NewReader creates a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) need(n int) bool {
	if r.off+n > len(r.buf) {
		r.off = len(r.buf)
		r.short = true
		return false
	}
	return true
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() uint8 {
	if !r.need(1) {
		return 0
	}
	v, off := ReadU8(r.buf, r.off)
	r.off = off
	return v
}

// ReadBool reads one byte and reports whether it is non-zero.
func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v, off := ReadU16(r.buf, r.off)
	r.off = off
	return v
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v, off := ReadU32(r.buf, r.off)
	r.off = off
	return v
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v, off := ReadU64(r.buf, r.off)
	r.off = off
	return v
}

// ReadFloat32 reads a little-endian IEEE-754 float.
func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

// ReadGUID reads a full-width 8-byte identifier.
func (r *Reader) ReadGUID() GUID {
	return GUID(r.ReadUint64())
}

// ReadPackedGUID reads a mask-prefixed identifier.
func (r *Reader) ReadPackedGUID() GUID {
	if !r.need(1) {
		return 0
	}
	g, off, ok := ReadPackedGUID(r.buf, r.off)
	if !ok {
		r.off = len(r.buf)
		r.short = true
		return 0
	}
	r.off = off
	return g
}

// ReadCString reads NUL-terminated text. Calling it with no bytes left
// marks the reader short, since a required string was absent entirely.
func (r *Reader) ReadCString() string {
	if r.off >= len(r.buf) {
		r.short = true
		return ""
	}
	s, off := ReadCString(r.buf, r.off)
	r.off = off
	return s
}

// ReadBytes copies the next n bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 || !r.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out
}

// Skip advances over n bytes.
func (r *Reader) Skip(n int) {
	if n < 0 || !r.need(n) {
		return
	}
	r.off += n
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the current position.
func (r *Reader) Offset() int {
	return r.off
}

// Short reports whether any read ran past the end of the payload.
func (r *Reader) Short() bool {
	return r.short
}

// Err returns a wrapped ErrShortPacket naming the shape when the reader
// ran short, and nil otherwise.
func (r *Reader) Err(shape string) error {
	if r.short {
		return fmt.Errorf("%s: %w (%d bytes)", shape, ErrShortPacket, len(r.buf))
	}
	return nil
}
