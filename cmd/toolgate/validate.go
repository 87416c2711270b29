package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/policy/engine"
)

var validateFlags struct {
	strict bool
	format string
}

// validateResult is the JSON shape of one validated file.
type validateResult struct {
	File      string            `json:"file"`
	Valid     bool              `json:"valid"`
	Mode      string            `json:"approval_mode,omitempty"`
	Rules     int               `json:"rules"`
	Conflicts []engine.Conflict `json:"conflicts,omitempty"`
	Error     string            `json:"error,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate [FILE...]",
	Short: "Validate policy files",
	Long: `Validate policy files for syntax and semantic errors.

Each file is parsed strictly (unknown keys are errors), then every rule is
checked for a name, a tool pattern, a known action and priority, and
patterns that compile. Same-priority rule conflicts are reported as
warnings.

Without arguments the configured policy file is validated.

Examples:
  # Validate the configured policy
  toolgate validate

  # Validate several files, failing on conflicts
  toolgate validate --strict policies/*.toml

  # JSON output for CI/CD
  toolgate validate --format json policy.toml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.strict, "strict", false, "treat conflicts as errors")
	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.format)
	if err != nil {
		return err
	}

	files := args
	if len(files) == 0 {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		files = []string{cfg.Policy.File}
	}

	results := make([]validateResult, 0, len(files))
	failed := 0
	for _, file := range files {
		res := validateFile(file)
		if !res.Valid || (validateFlags.strict && len(res.Conflicts) > 0) {
			failed++
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if err := (&cli.JSONFormatter{Indent: true}).FormatTo(out, results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if !res.Valid {
				fmt.Fprintf(out, "✗ %s\n  %s\n", res.File, res.Error)
				continue
			}
			fmt.Fprintf(out, "✓ %s (%d rules, approval mode %s)\n", res.File, res.Rules, res.Mode)
			for _, c := range res.Conflicts {
				fmt.Fprintf(out, "  warning: %s\n", c)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d policy files failed validation", failed, len(files))
	}
	return nil
}

func validateFile(file string) validateResult {
	res := validateResult{File: file}

	policy, err := engine.LoadFile(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Valid = true
	res.Mode = string(policy.ApprovalMode)
	res.Rules = len(policy.Rules)

	rules := append([]engine.Rule(nil), policy.Rules...)
	engine.SortRulesByPriority(rules)
	res.Conflicts = engine.DetectConflicts(rules)
	return res
}
