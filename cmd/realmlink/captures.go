package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/energizer-project/realmlink/internal/cli"
	"github.com/energizer-project/realmlink/internal/db"
)

func capturesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "captures [session]",
		Short: "List recorded sessions, or the messages of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeAll, err := openCaptures(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeAll()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				sessions, err := store.Sessions()
				if err != nil {
					return err
				}
				cli.WriteCaptures(out, sessions)
				return nil
			}

			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			msgs, err := store.Messages(id)
			if err != nil {
				return err
			}
			cli.WriteMessages(out, msgs)
			return nil
		},
	}
	return cmd
}

// openCaptures opens the configured capture database read side. The
// returned func closes it and the log file.
func openCaptures(ctx context.Context, opts *rootOptions) (*db.CaptureDatabase, func(), error) {
	cfg, logFile, err := loadConfig(ctx, opts, false)
	if err != nil {
		return nil, nil, err
	}
	store, err := db.NewCaptureDatabase(cfg.GetCapture().DatabasePath)
	if err != nil {
		logFile.Close()
		return nil, nil, fmt.Errorf("failed to open capture database: %w", err)
	}
	return store, func() {
		store.Close()
		logFile.Close()
	}, nil
}

func parseSessionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid session id %q", arg)
	}
	return id, nil
}
