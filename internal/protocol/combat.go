package protocol

// AttackStart confirms that attacker began auto-attacking victim.
type AttackStart struct {
	Attacker GUID `json:"attacker"`
	Victim   GUID `json:"victim"`
}

// ParseAttackStart decodes SMSG_ATTACKSTART.
// Format: [attacker:8][victim:8]
func ParseAttackStart(payload []byte) (*AttackStart, error) {
	r := NewReader(payload)
	a := &AttackStart{Attacker: r.ReadGUID(), Victim: r.ReadGUID()}
	if err := r.Err("attack start"); err != nil {
		return nil, err
	}
	return a, nil
}

// AttackStop confirms that attacker stopped attacking.
type AttackStop struct {
	Attacker GUID   `json:"attacker"`
	Victim   GUID   `json:"victim"`
	Reason   uint32 `json:"reason"`
}

// ParseAttackStop decodes SMSG_ATTACKSTOP.
// Format: [attacker:packed][victim:packed][reason:4]
func ParseAttackStop(payload []byte) (*AttackStop, error) {
	r := NewReader(payload)
	a := &AttackStop{
		Attacker: r.ReadPackedGUID(),
		Victim:   r.ReadPackedGUID(),
		Reason:   r.ReadUint32(),
	}
	if err := r.Err("attack stop"); err != nil {
		return nil, err
	}
	return a, nil
}

// SwingError explains why an auto-attack swing could not happen.
type SwingError string

const (
	SwingNotInRange SwingError = "not_in_range"
	SwingBadFacing  SwingError = "bad_facing"
	SwingDeadTarget SwingError = "dead_target"
	SwingCantAttack SwingError = "cant_attack"
)

var swingErrors = map[Opcode]SwingError{
	SmsgAttackSwingNotInRange: SwingNotInRange,
	SmsgAttackSwingBadFacing:  SwingBadFacing,
	SmsgAttackSwingDeadTarget: SwingDeadTarget,
	SmsgAttackSwingCantAttack: SwingCantAttack,
}

// SwingErrorOpcodes lists the empty-payload swing error messages.
var SwingErrorOpcodes = []Opcode{
	SmsgAttackSwingNotInRange,
	SmsgAttackSwingBadFacing,
	SmsgAttackSwingDeadTarget,
	SmsgAttackSwingCantAttack,
}

// SwingErrorParser returns the parser for one swing error opcode. The
// payloads are empty, so the opcode alone carries the record.
func SwingErrorParser(op Opcode) func([]byte) (*SwingError, error) {
	kind, ok := swingErrors[op]
	return func([]byte) (*SwingError, error) {
		if !ok {
			return nil, ErrMalformed
		}
		k := kind
		return &k, nil
	}
}

// BuildSetSelection changes the current target.
// Format: [target:8]
func BuildSetSelection(target GUID) []byte {
	return buildGUID(target)
}

// BuildAttackSwing starts auto-attacking a target.
// Format: [target:8]
func BuildAttackSwing(target GUID) []byte {
	return buildGUID(target)
}

// BuildAttackStop stops auto-attacking. The payload is empty.
func BuildAttackStop() []byte {
	return nil
}
