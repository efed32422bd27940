package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"math"
)

// PacketBuilder constructs outbound payloads. Fields are appended in call
// order; callers own the layout. Integers are little-endian.
type PacketBuilder struct {
	buf []byte
}

func NewPacketBuilder() *PacketBuilder {
	return &PacketBuilder{buf: make([]byte, 0, 32)}
}

func (b *PacketBuilder) WriteUint8(v uint8) *PacketBuilder {
	b.buf = append(b.buf, v)
	return b
}

// WriteBool writes 1 for true and 0 for false.
func (b *PacketBuilder) WriteBool(v bool) *PacketBuilder {
	if v {
		return b.WriteUint8(1)
	}
	return b.WriteUint8(0)
}

func (b *PacketBuilder) WriteUint16(v uint16) *PacketBuilder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	return b
}

func (b *PacketBuilder) WriteUint32(v uint32) *PacketBuilder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *PacketBuilder) WriteInt32(v int32) *PacketBuilder {
	return b.WriteUint32(uint32(v))
}

func (b *PacketBuilder) WriteFloat32(v float32) *PacketBuilder {
	return b.WriteUint32(math.Float32bits(v))
}

func (b *PacketBuilder) WriteUint64(v uint64) *PacketBuilder {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
	return b
}

// WriteGUID writes a full-width 8-byte identifier.
func (b *PacketBuilder) WriteGUID(g GUID) *PacketBuilder {
	return b.WriteUint64(uint64(g))
}

// WritePackedGUID writes a mask-prefixed identifier.
func (b *PacketBuilder) WritePackedGUID(g GUID) *PacketBuilder {
	b.buf = AppendPackedGUID(b.buf, g)
	return b
}

// WriteNullString writes s followed by a NUL byte.
func (b *PacketBuilder) WriteNullString(s string) *PacketBuilder {
	b.buf = append(append(b.buf, s...), 0)
	return b
}

func (b *PacketBuilder) WriteBytes(data []byte) *PacketBuilder {
	b.buf = append(b.buf, data...)
	return b
}

// Build returns a copy of the payload; the builder stays usable.
func (b *PacketBuilder) Build() []byte {
	return append([]byte(nil), b.buf...)
}

// Len is the size of the payload written so far.
func (b *PacketBuilder) Len() int { return len(b.buf) }

// Reset empties the builder and keeps its storage.
func (b *PacketBuilder) Reset() { b.buf = b.buf[:0] }

// String is a hex dump of the payload, for logs.
func (b *PacketBuilder) String() string {
	return hex.EncodeToString(b.buf)
}

// buildGUID is the shape shared by every command whose body is a single
// addressee.
// Format: [guid:8]
func buildGUID(g GUID) []byte {
	return NewPacketBuilder().WriteGUID(g).Build()
}
