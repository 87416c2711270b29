package main

import (
	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/cli"
)

var rulesFlags struct {
	format string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List policy rules in evaluation order",
	Long: `List the rules of the policy in the order they are scanned: admin rules
first, then user, then default; declaration order within a priority.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVar(&rulesFlags.format, "format", "text", "output format: text, json")
}

func runRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(rulesFlags.format)
	if err != nil {
		return err
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
	if format == cli.FormatJSON {
		return (&cli.JSONFormatter{Indent: true}).FormatTo(out, eng.PolicyConfig())
	}

	table := &cli.Table{Headers: []string{"NAME", "PRIORITY", "ACTION", "TOOL", "ARGS", "REASON"}}
	for _, r := range eng.Rules() {
		args := r.ArgPattern
		if args == "" {
			args = "-"
		}
		table.Append(r.Name, r.Priority.String(), string(r.Action), r.ToolPattern, args, r.DecisionReason())
	}
	if err := (&cli.TextFormatter{}).FormatTo(out, table); err != nil {
		return err
	}
	_, err = out.Write([]byte("\napproval mode: " + string(eng.ApprovalMode()) + "\n"))
	return err
}
