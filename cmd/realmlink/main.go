// realmlink - World of Warcraft 3.3.5a realm session client.
//
// realmlink keeps a session to a realm's world server, mirrors what the
// server says about the logged-in character in per-subsystem facades,
// exposes those mirrors over a REST API and MQTT, and records the raw
// session to SQLite so it can be replayed later.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/energizer-project/realmlink/internal/config"
)

const (
	AppName = "realmlink"
	Banner  = `
                 _           _ _       _
  _ __ ___  __ _| |_ __ ___ | (_)_ __ | | __
 | '__/ _ \/ _' | | '_ ' _ \| | | '_ \| |/ /
 | | |  __/ (_| | | | | | | | | | | | |   <
 |_|  \___|\__,_|_|_| |_| |_|_|_|_| |_|_|\_\
                                       v%s
 Realm session client & API
`
)

// Set by -ldflags at build time.
var (
	version = "1.0.0"
	commit  = "none"
	date    = "unknown"
)

type rootOptions struct {
	configDir string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   AppName,
		Short: "Realm session client with mirrors, REST API and capture replay",
		Long: `realmlink connects to a realm's world server as the configured
character and keeps a live mirror of every supported subsystem:
targeting, combat, trade, bank, inventory, auction house, guild,
guild bank, flight master, name cache and latency.

Run 'realmlink run' to start a session. Without a subcommand the
session starts as well.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, runOptions{})
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configDir, "config", "c", config.DefaultConfigDir,
		"directory holding "+config.DefaultConfigFile)

	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(capturesCmd(opts))
	cmd.AddCommand(replayCmd(opts))
	cmd.AddCommand(versionCmd())
	return cmd
}
