package protocol

// declinedForms is the number of declined name variants some realms send.
const declinedForms = 5

// CharacterName is a decoded SMSG_NAME_QUERY_RESPONSE.
type CharacterName struct {
	GUID     GUID     `json:"guid"`
	Known    bool     `json:"known"`
	Name     string   `json:"name,omitempty"`
	Realm    string   `json:"realm,omitempty"`
	Race     uint8    `json:"race,omitempty"`
	Gender   uint8    `json:"gender,omitempty"`
	Class    uint8    `json:"class,omitempty"`
	Declined []string `json:"declined,omitempty"`
}

// ParseNameQueryResponse decodes SMSG_NAME_QUERY_RESPONSE.
// Format: [guid:packed][unknown:1] then, when unknown == 0,
// [name:cstr][realm:cstr][race:1][gender:1][class:1][has_declined:1][5 x cstr]?
func ParseNameQueryResponse(payload []byte) (*CharacterName, error) {
	r := NewReader(payload)
	n := &CharacterName{GUID: r.ReadPackedGUID()}
	unknown := r.ReadUint8()
	if err := r.Err("name query response"); err != nil {
		return nil, err
	}
	if unknown != 0 {
		return n, nil
	}

	n.Known = true
	n.Name = r.ReadCString()
	n.Realm = r.ReadCString()
	n.Race = r.ReadUint8()
	n.Gender = r.ReadUint8()
	n.Class = r.ReadUint8()
	hasDeclined := r.ReadBool()
	if err := r.Err("name query response"); err != nil {
		return nil, err
	}
	if hasDeclined {
		n.Declined = make([]string, declinedForms)
		for i := range n.Declined {
			n.Declined[i] = r.ReadCString()
		}
		if err := r.Err("name query response declined names"); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// BuildNameQuery asks the server for a character's name.
// Format: [guid:8]
func BuildNameQuery(guid GUID) []byte {
	return buildGUID(guid)
}
