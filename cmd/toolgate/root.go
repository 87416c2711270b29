package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/config"
	"radium-hq/toolgate/pkg/telemetry/logging"
)

var (
	// Global flags
	cfgFile    string
	policyFile string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Toolgate - policy engine for AI agent tool calls",
	Long: `Toolgate decides whether an AI agent may run a tool call.

Requests are matched against a priority-ordered rule set loaded from a TOML
policy file:
  - admin rules are scanned before user rules, user before default
  - the first matching rule decides: allow, deny, ask_user or dry_run_first
  - unmatched requests follow the approval mode (yolo, auto_edit, ask)

Settings that are not part of the policy (timeouts, alerts, analytics,
telemetry, server) live in an optional YAML config file and can be overridden
with TOOLGATE_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Message != "" {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML)")
	rootCmd.PersistentFlags().StringVarP(&policyFile, "policy", "p", "", "policy file path (overrides policy.file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the application config, applies environment overrides
// and the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	if policyFile != "" {
		cfg.Policy.File = policyFile
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(cfg.LoggingConfig(w))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
