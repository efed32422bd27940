package protocol

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"math/bits"
)

// Update block types carried by SMSG_UPDATE_OBJECT.
const (
	UpdateTypeValues      = 0
	UpdateTypeMovement    = 1
	UpdateTypeCreate      = 2
	UpdateTypeCreate2     = 3
	UpdateTypeOutOfRange  = 4
	UpdateTypeNearObjects = 5
)

// Unit descriptor indexes this package cares about. Each 64-bit field
// spans two consecutive 32-bit words.
const (
	UnitFieldTarget   uint16 = 0x12
	UnitFieldTargetHi uint16 = 0x13
)

const maxMaskBlocks = 64

// ValuesUpdate is one decoded values block: the words that changed on
// one object, keyed by descriptor index.
type ValuesUpdate struct {
	GUID   GUID              `json:"guid"`
	Fields map[uint16]uint32 `json:"fields"`
}

// Field returns the word at index and whether it was part of the update.
func (v ValuesUpdate) Field(index uint16) (uint32, bool) {
	w, ok := v.Fields[index]
	return w, ok
}

// ObjectUpdate is the decoded part of an SMSG_UPDATE_OBJECT. Decoding
// stops at the first block that is not a values block, because other
// block types must be fully understood to be skipped; Undecoded counts
// the blocks left behind.
type ObjectUpdate struct {
	Values    []ValuesUpdate `json:"values"`
	Undecoded int            `json:"undecoded"`
	Truncated bool           `json:"truncated"`
}

// ParseUpdateObject decodes the values blocks of SMSG_UPDATE_OBJECT.
// Format: [block_count:4] then per block [type:1]; a values block is
// [guid:packed][mask_blocks:1][mask_blocks x mask:4][one word:4 per set mask bit]
func ParseUpdateObject(payload []byte) (*ObjectUpdate, error) {
	r := NewReader(payload)
	count := r.ReadUint32()
	if err := r.Err("update object"); err != nil {
		return nil, err
	}

	upd := &ObjectUpdate{}
	for i := uint32(0); i < count; i++ {
		if r.Remaining() == 0 {
			upd.Truncated = true
			break
		}
		if typ := r.ReadUint8(); typ != UpdateTypeValues {
			upd.Undecoded = int(count - i)
			break
		}
		v, ok := readValuesBlock(r)
		if !ok {
			upd.Truncated = true
			break
		}
		upd.Values = append(upd.Values, v)
	}
	return upd, nil
}

func readValuesBlock(r *Reader) (ValuesUpdate, bool) {
	v := ValuesUpdate{GUID: r.ReadPackedGUID()}
	blocks := int(r.ReadUint8())
	if r.Short() || blocks > maxMaskBlocks {
		return ValuesUpdate{}, false
	}

	masks := make([]uint32, blocks)
	set := 0
	for i := range masks {
		masks[i] = r.ReadUint32()
		set += bits.OnesCount32(masks[i])
	}
	if r.Short() || r.Remaining() < set*4 {
		return ValuesUpdate{}, false
	}

	v.Fields = make(map[uint16]uint32, set)
	for blk, m := range masks {
		for m != 0 {
			bit := bits.TrailingZeros32(m)
			m &^= 1 << bit
			v.Fields[uint16(blk*32+bit)] = r.ReadUint32()
		}
	}
	return v, true
}

// SmsgCompressedUpdateObject carries a zlib-deflated SMSG_UPDATE_OBJECT body.
const SmsgCompressedUpdateObject Opcode = 0x1F6

// maxInflatedUpdate bounds the declared size of a compressed update.
const maxInflatedUpdate = 1 << 20

// ParseCompressedUpdateObject inflates and decodes
// SMSG_COMPRESSED_UPDATE_OBJECT.
// Format: [inflated_size:4][zlib stream]
func ParseCompressedUpdateObject(payload []byte) (*ObjectUpdate, error) {
	r := NewReader(payload)
	size := r.ReadUint32()
	if err := r.Err("compressed update object"); err != nil {
		return nil, err
	}
	if size > maxInflatedUpdate {
		return nil, fmt.Errorf("compressed update object: inflated size %d: %w", size, ErrMalformed)
	}

	zr, err := zlib.NewReader(bytes.NewReader(payload[r.Offset():]))
	if err != nil {
		return nil, fmt.Errorf("compressed update object: %w: %v", ErrMalformed, err)
	}
	defer zr.Close()

	body := make([]byte, size)
	if _, err := io.ReadFull(zr, body); err != nil {
		return nil, fmt.Errorf("compressed update object: %w: %v", ErrShortPacket, err)
	}
	return ParseUpdateObject(body)
}

// BuildValuesBlock encodes a single values block as the server would.
// Only used to replay synthetic updates through the loopback.
func BuildValuesBlock(guid GUID, fields map[uint16]uint32) []byte {
	var top uint16
	for idx := range fields {
		if idx > top {
			top = idx
		}
	}
	blocks := int(top)/32 + 1
	masks := make([]uint32, blocks)
	for idx := range fields {
		masks[idx/32] |= 1 << (idx % 32)
	}

	b := NewPacketBuilder()
	b.WriteUint8(UpdateTypeValues)
	b.WritePackedGUID(guid)
	b.WriteUint8(uint8(blocks))
	for _, m := range masks {
		b.WriteUint32(m)
	}
	for blk, m := range masks {
		for m != 0 {
			bit := bits.TrailingZeros32(m)
			m &^= 1 << bit
			b.WriteUint32(fields[uint16(blk*32+bit)])
		}
	}
	return b.Build()
}

// BuildUpdateObject wraps pre-encoded blocks into an SMSG_UPDATE_OBJECT
// body.
// Format: [block_count:4][blocks...]
func BuildUpdateObject(blocks ...[]byte) []byte {
	b := NewPacketBuilder().WriteUint32(uint32(len(blocks)))
	for _, blk := range blocks {
		b.WriteBytes(blk)
	}
	return b.Build()
}
