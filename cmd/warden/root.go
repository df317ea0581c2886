package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - threat detection for untrusted LLM input",
	Long: `Warden runs a set of detection modules over untrusted text, scores the
findings and decides whether to allow, log, warn, block or block and notify.

Configuration is read from a YAML file (--config) and WARDEN_* environment
variables. Without a file the built-in defaults are used.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
}
