package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"radium-hq/toolgate/pkg/config"
	"radium-hq/toolgate/pkg/policy/dryrun"
	"radium-hq/toolgate/pkg/policy/engine"
)

// loadEngine creates an engine from the policy file without sinks, for
// commands that only inspect or evaluate the policy.
func loadEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	return engine.NewFromFile(cfg.Policy.File,
		engine.WithConfig(cfg.EngineConfig()),
		engine.WithLogger(logger),
	)
}

// setup loads the config and logger shared by every command. Logs go to
// errOut so stdout stays machine readable.
func setup(errOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, errOut)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// printDecision writes a human readable decision.
func printDecision(w io.Writer, d *engine.Decision) {
	fmt.Fprintf(w, "Action:  %s\n", d.Action)
	fmt.Fprintf(w, "Reason:  %s\n", d.Reason)
	if d.MatchedRule != "" {
		fmt.Fprintf(w, "Rule:    %s\n", d.MatchedRule)
	}
	fmt.Fprintf(w, "Source:  %s (mode %s)\n", d.Source, d.Mode)
	fmt.Fprintf(w, "Tool:    %s %s\n", d.ToolName, strings.Join(d.Args, " "))
	if d.HookFailure != "" {
		fmt.Fprintf(w, "Warning: before-tool hook failed: %s\n", d.HookFailure)
	}
	if d.Preview != nil {
		fmt.Fprintln(w)
		fmt.Fprint(w, dryrun.Format(d.Preview))
	}
}
