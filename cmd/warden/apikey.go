package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triage-ai/warden/internal/auth"
	"github.com/triage-ai/warden/internal/config"
	"github.com/triage-ai/warden/internal/store"
)

var apikeyName string

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key in the Postgres store",
	Long: `Create an API key and store its bcrypt hash in Postgres. The plaintext
key is printed once and cannot be recovered.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pg, err := openKeyStore(cmd)
		if err != nil {
			return err
		}
		defer pg.Close()

		id, key, err := pg.Keys().CreateAPIKey(cmd.Context(), apikeyName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", id, key)
		return nil
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Revoke an API key in the Postgres store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pg, err := openKeyStore(cmd)
		if err != nil {
			return err
		}
		defer pg.Close()

		ok, err := pg.Keys().RevokeAPIKey(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no active API key with id %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a key and the hash to put in server.api_key_hashes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, hash, _, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key:  %s\nhash: %s\n", key, hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyRevokeCmd, apikeyGenerateCmd)

	apikeyCreateCmd.Flags().StringVar(&apikeyName, "name", "", "label for the key (required)")
	_ = apikeyCreateCmd.MarkFlagRequired("name")
}

func openKeyStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.PostgresDSN == "" {
		return nil, fmt.Errorf("apikey: storage.postgres_dsn is required")
	}
	logger, err := buildLogger(cfg.LogLevel, "stderr")
	if err != nil {
		return nil, err
	}
	pg, err := store.Open(cmd.Context(), cfg.Storage.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
