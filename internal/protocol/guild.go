package protocol

import "time"

// GuildRankSize is the fixed size of one rank descriptor in the roster:
// rights, gold per day and six bank tab right/slot pairs.
const GuildRankSize = 56

// GuildInvite is an incoming invitation to join a guild.
type GuildInvite struct {
	Inviter string `json:"inviter"`
	Guild   string `json:"guild"`
}

// ParseGuildInvite decodes SMSG_GUILD_INVITE.
// Format: [inviter:cstr][guild:cstr]
func ParseGuildInvite(payload []byte) (*GuildInvite, error) {
	r := NewReader(payload)
	inv := &GuildInvite{Inviter: r.ReadCString(), Guild: r.ReadCString()}
	if err := r.Err("guild invite"); err != nil {
		return nil, err
	}
	return inv, nil
}

// GuildRank is one rank of the guild.
type GuildRank struct {
	Rights     uint32 `json:"rights"`
	GoldPerDay uint32 `json:"gold_per_day"`
}

// GuildMember is one roster line.
type GuildMember struct {
	GUID        GUID      `json:"guid"`
	Online      bool      `json:"online"`
	Name        string    `json:"name"`
	Rank        uint32    `json:"rank"`
	Level       uint8     `json:"level"`
	Class       uint8     `json:"class"`
	Gender      uint8     `json:"gender"`
	Zone        uint32    `json:"zone"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
	Note        string    `json:"note,omitempty"`
	OfficerNote string    `json:"officer_note,omitempty"`
}

// GuildRoster is a decoded SMSG_GUILD_ROSTER.
type GuildRoster struct {
	MOTD      string        `json:"motd"`
	Info      string        `json:"info"`
	Ranks     []GuildRank   `json:"ranks"`
	Members   []GuildMember `json:"members"`
	Truncated bool          `json:"truncated"`
}

// ParseGuildRoster decodes SMSG_GUILD_ROSTER. Offline members carry the
// number of days since they were last seen, which is turned into an
// absolute time relative to now. A roster cut short keeps the members
// decoded so far.
// Format: [members:4][motd:cstr][info:cstr][ranks:4][ranks x 56]
// then per member [guid:8][online:1][name:cstr][rank:4][level:1][class:1]
// [gender:1][zone:4][offline_days:f32 if !online][note:cstr][officer_note:cstr]
func ParseGuildRoster(payload []byte, now time.Time) (*GuildRoster, error) {
	r := NewReader(payload)
	members := r.ReadUint32()
	roster := &GuildRoster{MOTD: r.ReadCString(), Info: r.ReadCString()}
	ranks := r.ReadUint32()
	if err := r.Err("guild roster"); err != nil {
		return nil, err
	}

	for i := uint32(0); i < ranks; i++ {
		if r.Remaining() < GuildRankSize {
			roster.Truncated = true
			return roster, nil
		}
		rank := GuildRank{Rights: r.ReadUint32(), GoldPerDay: r.ReadUint32()}
		r.Skip(GuildRankSize - 8)
		roster.Ranks = append(roster.Ranks, rank)
	}

	for i := uint32(0); i < members; i++ {
		m, ok := readGuildMember(r, now)
		if !ok {
			roster.Truncated = true
			break
		}
		roster.Members = append(roster.Members, m)
	}
	return roster, nil
}

func readGuildMember(r *Reader, now time.Time) (GuildMember, bool) {
	if r.Remaining() == 0 {
		return GuildMember{}, false
	}
	m := GuildMember{
		GUID:   r.ReadGUID(),
		Online: r.ReadBool(),
		Name:   r.ReadCString(),
		Rank:   r.ReadUint32(),
		Level:  r.ReadUint8(),
		Class:  r.ReadUint8(),
		Gender: r.ReadUint8(),
		Zone:   r.ReadUint32(),
	}
	if m.Online {
		m.LastSeen = now
	} else {
		days := r.ReadFloat32()
		m.LastSeen = now.Add(-time.Duration(float64(days) * float64(24*time.Hour)))
	}
	m.Note = r.ReadCString()
	m.OfficerNote = r.ReadCString()
	if r.Short() {
		return GuildMember{}, false
	}
	return m, true
}

// GuildEventKind identifies an SMSG_GUILD_EVENT.
type GuildEventKind uint8

const (
	GuildEventPromotion     GuildEventKind = 0
	GuildEventDemotion      GuildEventKind = 1
	GuildEventMotd          GuildEventKind = 2
	GuildEventJoined        GuildEventKind = 3
	GuildEventLeft          GuildEventKind = 4
	GuildEventRemoved       GuildEventKind = 5
	GuildEventLeaderIs      GuildEventKind = 6
	GuildEventLeaderChanged GuildEventKind = 7
	GuildEventDisbanded     GuildEventKind = 8
	GuildEventSignedOn      GuildEventKind = 12
	GuildEventSignedOff     GuildEventKind = 13
)

// GuildEvent is a decoded SMSG_GUILD_EVENT.
type GuildEvent struct {
	Kind    GuildEventKind `json:"kind"`
	Strings []string       `json:"strings"`
	GUID    GUID           `json:"guid,omitempty"`
}

// ParseGuildEvent decodes SMSG_GUILD_EVENT.
// Format: [event:1][count:1][count x cstr][guid:8]?
func ParseGuildEvent(payload []byte) (*GuildEvent, error) {
	r := NewReader(payload)
	ev := &GuildEvent{Kind: GuildEventKind(r.ReadUint8())}
	n := int(r.ReadUint8())
	if err := r.Err("guild event"); err != nil {
		return nil, err
	}
	ev.Strings = make([]string, 0, n)
	for i := 0; i < n; i++ {
		ev.Strings = append(ev.Strings, r.ReadCString())
	}
	if err := r.Err("guild event strings"); err != nil {
		return nil, err
	}
	if r.Remaining() >= 8 {
		ev.GUID = r.ReadGUID()
	}
	return ev, nil
}

// GuildCommand names the command a GuildCommandResult answers.
type GuildCommand uint32

const (
	GuildCommandCreate  GuildCommand = 0
	GuildCommandInvite  GuildCommand = 1
	GuildCommandQuit    GuildCommand = 3
	GuildCommandFounder GuildCommand = 14
)

// GuildCommandResult is a decoded SMSG_GUILD_COMMAND_RESULT.
type GuildCommandResult struct {
	Command GuildCommand `json:"command"`
	Name    string       `json:"name"`
	Result  uint32       `json:"result"`
}

// Succeeded reports whether the command was accepted.
func (c GuildCommandResult) Succeeded() bool { return c.Result == 0 }

// ParseGuildCommandResult decodes SMSG_GUILD_COMMAND_RESULT.
// Format: [command:4][name:cstr][result:4]
func ParseGuildCommandResult(payload []byte) (*GuildCommandResult, error) {
	r := NewReader(payload)
	res := &GuildCommandResult{
		Command: GuildCommand(r.ReadUint32()),
		Name:    r.ReadCString(),
		Result:  r.ReadUint32(),
	}
	if err := r.Err("guild command result"); err != nil {
		return nil, err
	}
	return res, nil
}

// GuildDecline reports that an invitation we sent was declined.
type GuildDecline struct {
	Name string `json:"name"`
}

// ParseGuildDecline decodes SMSG_GUILD_DECLINE.
// Format: [name:cstr]
func ParseGuildDecline(payload []byte) (*GuildDecline, error) {
	r := NewReader(payload)
	d := &GuildDecline{Name: r.ReadCString()}
	if err := r.Err("guild decline"); err != nil {
		return nil, err
	}
	return d, nil
}

// BuildGuildName encodes the payload shared by invite, promote, demote
// and remove.
// Format: [name:cstr]
func BuildGuildName(name string) []byte {
	return NewPacketBuilder().WriteNullString(name).Build()
}

// BuildGuildMotd sets the message of the day.
// Format: [motd:cstr]
func BuildGuildMotd(text string) []byte {
	return NewPacketBuilder().WriteNullString(text).Build()
}
