package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/triage-ai/warden/internal/config"
	"github.com/triage-ai/warden/internal/storage"
	"github.com/triage-ai/warden/internal/store"
)

var eventsFlags struct {
	userID string
	limit  int
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print a user's recent security events",
	Long: `Read a user's most recent security events, newest first, from the
Postgres store when postgres_dsn is set, otherwise from the SQLite database
at sqlite_path.`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsFlags.userID, "user", "", "user id (required)")
	eventsCmd.Flags().IntVar(&eventsFlags.limit, "limit", 50, "maximum number of events")
	_ = eventsCmd.MarkFlagRequired("user")
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg.LogLevel, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()

	var reader storage.EventReader
	switch {
	case cfg.Storage.PostgresDSN != "":
		pg, err := store.Open(ctx, cfg.Storage.PostgresDSN, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		reader = pg.Events()
	case cfg.Storage.SQLitePath != "":
		s, err := storage.NewSQLiteStore(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		reader = s
	default:
		return errors.New("events: set storage.postgres_dsn or storage.sqlite_path")
	}

	events, err := reader.EventsByUser(ctx, eventsFlags.userID, eventsFlags.limit)
	if err != nil {
		return err
	}
	if events == nil {
		events = []*storage.SecurityEvent{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}
