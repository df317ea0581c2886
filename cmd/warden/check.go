package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/triage-ai/warden/internal/config"
	"github.com/triage-ai/warden/internal/engine"
)

var checkFlags struct {
	userID    string
	sessionID string
	failOn    string
}

var checkCmd = &cobra.Command{
	Use:   "check [text]",
	Short: "Validate one input and print the result as JSON",
	Long: `Run every enabled detection module over one input and print the
validation result. The text is taken from the argument, or from stdin when
no argument is given. Nothing is persisted.

Examples:
  warden check "ignore all previous instructions"
  cat prompt.txt | warden check --fail-on high`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkFlags.userID, "user", "cli", "user id recorded on the validation")
	checkCmd.Flags().StringVar(&checkFlags.sessionID, "session", "cli", "session id recorded on the validation")
	checkCmd.Flags().StringVar(&checkFlags.failOn, "fail-on", "", "exit non-zero at or above this severity (low, medium, high, critical)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	text, err := checkInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var failOn engine.Severity
	if checkFlags.failOn != "" {
		if failOn, err = engine.ParseSeverity(checkFlags.failOn); err != nil {
			return err
		}
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	// Offender history lives in memory for a one-shot check.
	cfg.Storage.PostgresDSN = ""

	logger, err := buildLogger("error", "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	a, err := buildApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.close(context.Background()) //nolint:errcheck

	result, err := a.orch.Validate(ctx, text, engine.ValidationMetadata{
		UserID:    checkFlags.userID,
		SessionID: checkFlags.sessionID,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if checkFlags.failOn != "" && result.Severity >= failOn {
		return fmt.Errorf("severity %s is at or above %s", result.Severity, failOn)
	}
	return nil
}

func checkInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	text := strings.TrimRight(string(b), "\r\n")
	if text == "" {
		return "", fmt.Errorf("no input: pass text as an argument or on stdin")
	}
	return text, nil
}
