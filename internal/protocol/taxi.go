package protocol

// TaxiNodeStatus reports whether a flight master's node is known.
type TaxiNodeStatus struct {
	NPC   GUID `json:"npc"`
	Known bool `json:"known"`
}

// ParseTaxiNodeStatus decodes SMSG_TAXINODE_STATUS.
// Format: [npc:8][known:1]
func ParseTaxiNodeStatus(payload []byte) (*TaxiNodeStatus, error) {
	r := NewReader(payload)
	s := &TaxiNodeStatus{NPC: r.ReadGUID(), Known: r.ReadBool()}
	if err := r.Err("taxi node status"); err != nil {
		return nil, err
	}
	return s, nil
}

// TaxiMap is a decoded SMSG_SHOWTAXINODES: the node the player stands
// at and every node it may fly to.
type TaxiMap struct {
	Show    uint32   `json:"show"`
	NPC     GUID     `json:"npc"`
	Current uint32   `json:"current"`
	Known   []uint32 `json:"known"`
}

// ParseShowTaxiNodes decodes SMSG_SHOWTAXINODES. The node mask runs
// until the end of the payload; bit n of word w is node w*32+n.
// Format: [show:4][npc:8][current:4][mask:4...]
func ParseShowTaxiNodes(payload []byte) (*TaxiMap, error) {
	r := NewReader(payload)
	m := &TaxiMap{Show: r.ReadUint32(), NPC: r.ReadGUID(), Current: r.ReadUint32()}
	if err := r.Err("show taxi nodes"); err != nil {
		return nil, err
	}
	m.Known = []uint32{}
	for w := uint32(0); r.Remaining() >= 4; w++ {
		mask := r.ReadUint32()
		for bit := uint32(0); bit < 32; bit++ {
			if mask&(1<<bit) != 0 {
				m.Known = append(m.Known, w*32+bit)
			}
		}
	}
	return m, nil
}

// TaxiReply is the result of a flight activation.
type TaxiReply uint32

const (
	TaxiOK               TaxiReply = 0
	TaxiUnspecifiedError TaxiReply = 1
	TaxiNoSuchPath       TaxiReply = 2
	TaxiNotEnoughMoney   TaxiReply = 3
	TaxiTooFarAway       TaxiReply = 4
	TaxiNoVendorNearby   TaxiReply = 5
	TaxiNotVisited       TaxiReply = 6
	TaxiPlayerBusy       TaxiReply = 7
)

// ActivateTaxiReply is a decoded SMSG_ACTIVATETAXIREPLY.
type ActivateTaxiReply struct {
	Reply TaxiReply `json:"reply"`
}

// ParseActivateTaxiReply decodes SMSG_ACTIVATETAXIREPLY.
// Format: [reply:4]
func ParseActivateTaxiReply(payload []byte) (*ActivateTaxiReply, error) {
	r := NewReader(payload)
	a := &ActivateTaxiReply{Reply: TaxiReply(r.ReadUint32())}
	if err := r.Err("activate taxi reply"); err != nil {
		return nil, err
	}
	return a, nil
}

// BuildTaxiNodeStatusQuery asks whether a flight master is known.
// Format: [npc:8]
func BuildTaxiNodeStatusQuery(npc GUID) []byte {
	return buildGUID(npc)
}

// BuildTaxiQueryAvailableNodes opens the flight map.
// Format: [npc:8]
func BuildTaxiQueryAvailableNodes(npc GUID) []byte {
	return buildGUID(npc)
}

// BuildActivateTaxi starts a flight between two nodes.
// Format: [npc:8][src:4][dst:4]
func BuildActivateTaxi(npc GUID, src, dst uint32) []byte {
	return NewPacketBuilder().WriteGUID(npc).WriteUint32(src).WriteUint32(dst).Build()
}
