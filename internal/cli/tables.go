package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/realmlink/internal/db"
	"github.com/energizer-project/realmlink/internal/facade"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatMoney renders copper as gold, silver and copper.
func formatMoney(copper uint32) string {
	g, s, c := copper/10000, copper/100%100, copper%100
	switch {
	case g > 0:
		return fmt.Sprintf("%dg %02ds %02dc", g, s, c)
	case s > 0:
		return fmt.Sprintf("%ds %02dc", s, c)
	}
	return fmt.Sprintf("%dc", c)
}

// parseValue turns a typed-in config value into the JSON type it most
// likely means.
func parseValue(raw string) interface{} {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func (c *CLI) printStatus() {
	realm := c.cfg.GetRealm()
	fmt.Fprintln(c.out)

	tw := newTable(c.out, "Field", "Value")
	tw.Append([]string{"Realm", realm.Address})
	tw.Append([]string{"Connected", yesNo(c.deps.Connected())})
	tw.Append([]string{"Player", c.set.Targeting.Player().String()})
	tw.Append([]string{"Target", c.set.Targeting.Target().String()})
	tw.Append([]string{"Attacking", yesNo(c.set.Combat.IsAttacking())})
	tw.Append([]string{"Latency", c.set.Pinger.Latency().String()})
	tw.Append([]string{"Trade open", yesNo(c.set.Trade.IsOpen())})
	tw.Append([]string{"Bank open", yesNo(c.set.Bank.IsOpen())})
	tw.Append([]string{"Auction open", yesNo(c.set.Auction.IsOpen())})
	tw.Append([]string{"Guild bank open", yesNo(c.set.GuildBank.IsOpen())})
	tw.Append([]string{"Taxi open", yesNo(c.set.Taxi.IsOpen())})
	tw.Append([]string{"Names cached", strconv.Itoa(c.set.Names.Cached())})
	tw.Render()
	fmt.Fprintln(c.out)
}

func (c *CLI) printAuctions() {
	s := c.set.Auction.Snapshot()
	if len(s.Listings) == 0 {
		fmt.Fprintln(c.out, "No auction listings. Open an auction house and 'search' first.")
		return
	}

	fmt.Fprintln(c.out)
	tw := newTable(c.out, "ID", "Item", "Count", "Bid", "Buyout", "Owner", "Expires")
	for _, e := range s.Listings {
		bid := e.Bid
		if bid == 0 {
			bid = e.StartBid
		}
		expires := "-"
		if !e.ExpiresAt.IsZero() {
			expires = e.ExpiresAt.Format(time.RFC3339)
		}
		tw.Append([]string{
			strconv.FormatUint(uint64(e.ID), 10),
			strconv.FormatUint(uint64(e.ItemEntry), 10),
			strconv.FormatUint(uint64(e.Count), 10),
			formatMoney(bid),
			formatMoney(e.Buyout),
			e.Owner.String(),
			expires,
		})
	}
	tw.Render()
	fmt.Fprintf(c.out, "  %d shown, %d total\n\n", len(s.Listings), s.TotalListings)
}

func (c *CLI) printRoster() {
	s := c.set.Guild.Snapshot()
	if len(s.Roster) == 0 {
		fmt.Fprintln(c.out, "No guild roster yet.")
		return
	}

	fmt.Fprintln(c.out)
	if s.MOTD != "" {
		fmt.Fprintf(c.out, "  MOTD: %s\n", s.MOTD)
	}
	tw := newTable(c.out, "Name", "Level", "Class", "Rank", "Online", "Zone")
	for _, m := range s.Roster {
		tw.Append([]string{
			m.Name,
			strconv.Itoa(int(m.Level)),
			strconv.Itoa(int(m.Class)),
			strconv.FormatUint(uint64(m.Rank), 10),
			yesNo(m.Online),
			strconv.FormatUint(uint64(m.Zone), 10),
		})
	}
	tw.Render()
	fmt.Fprintln(c.out)
}

// WriteSubsystems renders every mirror with its version.
func WriteSubsystems(w io.Writer, set *facade.Set) {
	tw := newTable(w, "Subsystem", "Version", "Mirror")
	for _, name := range set.SubsystemNames() {
		snap, version, _ := set.Subsystem(name)
		data, err := json.Marshal(snap)
		mirror := string(data)
		if err != nil {
			mirror = err.Error()
		}
		if len(mirror) > 96 {
			mirror = mirror[:93] + "..."
		}
		tw.Append([]string{name, strconv.FormatUint(version, 10), mirror})
	}
	tw.Render()
}

// WriteCaptures renders stored capture sessions, newest first.
func WriteCaptures(w io.Writer, sessions []db.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No capture sessions stored.")
		return
	}
	tw := newTable(w, "ID", "Realm", "Player", "Started", "Ended", "Messages")
	for _, s := range sessions {
		ended := "-"
		if s.EndedAt != nil {
			ended = s.EndedAt.Format(time.RFC3339)
		}
		tw.Append([]string{
			strconv.FormatInt(s.ID, 10),
			s.Address,
			s.Player,
			s.StartedAt.Format(time.RFC3339),
			ended,
			strconv.Itoa(s.Messages),
		})
	}
	tw.Render()
}

// WriteMessages renders the messages of one capture session in order.
func WriteMessages(w io.Writer, msgs []db.CapturedMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "Session holds no messages.")
		return
	}
	tw := newTable(w, "Seq", "At", "Dir", "Opcode", "Bytes")
	for _, m := range msgs {
		tw.Append([]string{
			strconv.FormatInt(m.Seq, 10),
			m.At.Format("15:04:05.000"),
			m.Direction,
			m.Opcode.String(),
			strconv.Itoa(len(m.Payload)),
		})
	}
	tw.Render()
}
