package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/policy/engine"
)

var conflictsFlags struct {
	resolve string
	write   bool
	format  string
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve rule conflicts",
	Long: `Detect pairs of same-priority rules that match a common tool call with
different actions. Which of them wins depends only on declaration order.

With --resolve, conflicting rules are removed using a strategy:
  keep-highest-priority  keep the earlier rule of each pair (default)
  keep-first-declared    keep the rule declared first
  keep-most-specific     keep the rule with fewer wildcards

The result is printed; --write saves it back to the policy file.

Examples:
  toolgate conflicts
  toolgate conflicts --resolve keep-most-specific
  toolgate conflicts --resolve keep-first-declared --write`,
	Args: cobra.NoArgs,
	RunE: runConflicts,
}

func init() {
	rootCmd.AddCommand(conflictsCmd)

	conflictsCmd.Flags().StringVar(&conflictsFlags.resolve, "resolve", "", "resolution strategy")
	conflictsCmd.Flags().BoolVar(&conflictsFlags.write, "write", false, "write the resolved policy back to the policy file")
	conflictsCmd.Flags().StringVar(&conflictsFlags.format, "format", "text", "output format: text, json")
}

func runConflicts(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(conflictsFlags.format)
	if err != nil {
		return err
	}
	if conflictsFlags.write && conflictsFlags.resolve == "" {
		return fmt.Errorf("--write requires --resolve")
	}

	cfg, logger, err := setup(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	eng, err := loadEngine(cfg, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	conflicts := eng.DetectConflicts()

	if conflictsFlags.resolve == "" {
		if format == cli.FormatJSON {
			if conflicts == nil {
				conflicts = []engine.Conflict{}
			}
			return (&cli.JSONFormatter{Indent: true}).FormatTo(out, conflicts)
		}
		if len(conflicts) == 0 {
			fmt.Fprintln(out, "✓ No conflicts")
			return nil
		}
		table := &cli.Table{Headers: []string{"TYPE", "RULE 1", "RULE 2", "EXAMPLE"}}
		for _, c := range conflicts {
			example := c.ExampleTool
			if len(c.ExampleArgs) > 0 {
				example += " " + strings.Join(c.ExampleArgs, " ")
			}
			table.Append(string(c.Type),
				fmt.Sprintf("%s (%s)", c.Rule1.Name, c.Rule1.Action),
				fmt.Sprintf("%s (%s)", c.Rule2.Name, c.Rule2.Action),
				example)
		}
		return (&cli.TextFormatter{}).FormatTo(out, table)
	}

	strategy, err := engine.ParseResolutionStrategy(conflictsFlags.resolve)
	if err != nil {
		return err
	}
	removed, err := eng.ResolveConflicts(strategy)
	if err != nil {
		return err
	}

	if conflictsFlags.write && len(removed) > 0 {
		if err := engine.WriteFile(cfg.Policy.File, eng.PolicyConfig()); err != nil {
			return err
		}
	}

	if format == cli.FormatJSON {
		if removed == nil {
			removed = []string{}
		}
		return (&cli.JSONFormatter{Indent: true}).FormatTo(out, map[string]any{
			"strategy": strategy.String(),
			"removed":  removed,
			"written":  conflictsFlags.write && len(removed) > 0,
		})
	}

	if len(removed) == 0 {
		fmt.Fprintln(out, "✓ No conflicts")
		return nil
	}
	fmt.Fprintf(out, "Removed %d rule(s) using %s:\n", len(removed), strategy)
	for _, name := range removed {
		fmt.Fprintf(out, "  - %s\n", name)
	}
	if conflictsFlags.write {
		fmt.Fprintf(out, "✓ Wrote %s\n", cfg.Policy.File)
	}
	return nil
}
