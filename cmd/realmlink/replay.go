package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/energizer-project/realmlink/internal/cli"
	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/replay"
	"github.com/energizer-project/realmlink/internal/util"
)

func replayCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "replay <session>",
		Short: "Rebuild the mirrors of a recorded session",
		Long: `replay feeds the inbound messages of a recorded session through a
fresh set of facades and prints the mirrors they end with.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			store, closeAll, err := openCaptures(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeAll()

			sessions, err := store.Sessions()
			if err != nil {
				return err
			}
			var (
				owner string
				found bool
			)
			for _, s := range sessions {
				if s.ID == id {
					owner, found = s.Player, true
					break
				}
			}
			if !found {
				return fmt.Errorf("no capture session %d", id)
			}
			player, err := protocol.ParseGUID(owner)
			if err != nil {
				return fmt.Errorf("session %d has an unreadable player %q: %w", id, owner, err)
			}

			msgs, err := store.Messages(id)
			if err != nil {
				return err
			}
			res, err := replay.Run(cmd.Context(), msgs, replay.Options{
				Player: player,
				Logger: util.ComponentLogger("replay"),
			})
			if err != nil {
				return err
			}
			defer res.Close()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Set.Snapshot())
			}

			fmt.Fprintf(out, "Session %d: %d inbound, %d outbound", id, res.Inbound, res.Outbound)
			if !res.First.IsZero() {
				fmt.Fprintf(out, ", %s", res.Last.Sub(res.First))
			}
			fmt.Fprintln(out)
			cli.WriteSubsystems(out, res.Set)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full mirrors as JSON")
	return cmd
}
