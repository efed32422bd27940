package protocol

// Pong answers a ping with the sequence number it carried.
type Pong struct {
	Seq uint32 `json:"seq"`
}

// ParsePong decodes SMSG_PONG.
// Format: [seq:4]
func ParsePong(payload []byte) (*Pong, error) {
	r := NewReader(payload)
	p := &Pong{Seq: r.ReadUint32()}
	if err := r.Err("pong"); err != nil {
		return nil, err
	}
	return p, nil
}

// BuildPing creates a keepalive carrying the last measured latency.
// Format: [seq:4][latency_ms:4]
func BuildPing(seq, latencyMs uint32) []byte {
	return NewPacketBuilder().WriteUint32(seq).WriteUint32(latencyMs).Build()
}
