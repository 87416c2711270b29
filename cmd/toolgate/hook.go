package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/policy/engine"
)

// maxHookInput bounds the JSON read from stdin.
const maxHookInput = 1 << 20

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Evaluate a tool call read from stdin (agent pre-tool hook)",
	Long: `Read one tool call as JSON from stdin, evaluate it and write the decision as
JSON to stdout.

Input:
  {"tool_name": "run_shell_command", "args": ["rm -rf /"], "metadata": {"user": "alice"}}

The exit status is 2 when the call is denied, so agents that treat a non-zero
hook status as a block stop the call. Unreadable input, a config or policy
file that fails to load and evaluation errors also exit 2. Every other action
exits 0; the caller reads the decision to ask the user or show a dry-run
preview.

Decisions are sent to the alert and analytics sinks enabled in the config.`,
	Args: cobra.NoArgs,
	RunE: runHook,
}

func init() {
	rootCmd.AddCommand(hookCmd)
}

// blocked returns a blocking exit so the tool call does not run.
func blocked(format string, a ...any) error {
	return &cli.ExitError{Code: cli.ExitBlocked, Message: fmt.Sprintf(format, a...)}
}

func runHook(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxHookInput+1))
	if err != nil {
		return blocked("failed to read stdin: %v", err)
	}
	if len(data) > maxHookInput {
		return blocked("invalid hook input: exceeds %d bytes", maxHookInput)
	}

	var req engine.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return blocked("invalid hook input: %v", err)
	}
	if req.ToolName == "" {
		return blocked("invalid hook input: tool_name is required")
	}

	cfg, logger, err := setup(cmd.ErrOrStderr())
	if err != nil {
		return blocked("failed to load config: %v", err)
	}
	app, err := newApplication(cfg, logger, appOptions{})
	if err != nil {
		return blocked("failed to load policy: %v", err)
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("failed to close application", "error", err)
		}
	}()

	d, err := app.engine.Evaluate(cmd.Context(), req)
	if err != nil {
		// Any evaluation error means the call must not run.
		return blocked("policy evaluation failed: %v", err)
	}

	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(d); err != nil {
		return blocked("failed to write decision: %v", err)
	}

	if d.IsDenied() {
		fmt.Fprintln(cmd.ErrOrStderr(), d.Reason)
		return &cli.ExitError{Code: cli.ExitBlocked}
	}
	return nil
}
