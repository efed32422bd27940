package protocol

import "fmt"

// GUID is the 64-bit object identifier used throughout the protocol.
type GUID uint64

// IsEmpty reports whether the identifier is unset.
func (g GUID) IsEmpty() bool {
	return g == 0
}

func (g GUID) String() string {
	return fmt.Sprintf("0x%016X", uint64(g))
}

// MarshalText renders the identifier in hex so JSON surfaces stay readable.
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// ParseGUID parses a decimal or 0x-prefixed hex identifier.
func ParseGUID(s string) (GUID, error) {
	var v uint64
	if _, err := fmt.Sscan(s, &v); err != nil {
		return 0, fmt.Errorf("invalid guid %q: %w", s, err)
	}
	return GUID(v), nil
}

// ReadPackedGUID decodes a packed identifier at off.
// Format: [mask:1][one byte per set mask bit, lowest position first]
// ok is false when the mask or any announced byte is missing.
func ReadPackedGUID(buf []byte, off int) (GUID, int, bool) {
	if off < 0 || off >= len(buf) {
		return 0, len(buf), false
	}
	mask := buf[off]
	off++

	var g uint64
	for i := 0; i < 8; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		if off >= len(buf) {
			return 0, len(buf), false
		}
		g |= uint64(buf[off]) << (8 * i)
		off++
	}
	return GUID(g), off, true
}

// AppendPackedGUID appends the packed form of g to dst.
func AppendPackedGUID(dst []byte, g GUID) []byte {
	var (
		mask  byte
		bytes [8]byte
		n     int
	)
	for i := 0; i < 8; i++ {
		b := byte(uint64(g) >> (8 * i))
		if b != 0 {
			mask |= 1 << i
			bytes[n] = b
			n++
		}
	}
	dst = append(dst, mask)
	return append(dst, bytes[:n]...)
}

// PackedGUIDSize returns the encoded length of g in packed form.
func PackedGUIDSize(g GUID) int {
	n := 1
	for i := 0; i < 8; i++ {
		if byte(uint64(g)>>(8*i)) != 0 {
			n++
		}
	}
	return n
}
