package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/policy/engine"
	"radium-hq/toolgate/pkg/policy/templates"
)

var initFlags struct {
	template     string
	templatesDir string
	merge        bool
	force        bool
	list         bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a policy file from a template",
	Long: `Create a policy file from a built-in or directory template.

Built-in templates:
  development  auto_edit mode, blocks destructive shell commands
  production   ask mode, admin denies for dangerous operations
  strict       ask mode, everything denied unless allowed

Templates in --templates-dir (*.toml) override built-ins of the same name.

With --merge, the template's rules are appended to an existing policy file,
skipping rules whose names already exist; the existing approval mode is kept.

Examples:
  toolgate init --list
  toolgate init --template strict --policy policy.toml
  toolgate init --template production --merge`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initFlags.template, "template", "production", "template name")
	initCmd.Flags().StringVar(&initFlags.templatesDir, "templates-dir", "", "directory of additional templates")
	initCmd.Flags().BoolVar(&initFlags.merge, "merge", false, "merge into an existing policy file")
	initCmd.Flags().BoolVar(&initFlags.force, "force", false, "overwrite an existing policy file")
	initCmd.Flags().BoolVar(&initFlags.list, "list", false, "list available templates")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if initFlags.list {
		all, err := templates.All(initFlags.templatesDir)
		if err != nil {
			return err
		}
		table := &cli.Table{Headers: []string{"NAME", "SOURCE", "DESCRIPTION"}}
		for _, t := range all {
			table.Append(t.Name, t.Source, t.Description)
		}
		return (&cli.TextFormatter{}).FormatTo(out, table)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Policy.File

	tmpl, err := templates.Lookup(initFlags.template, initFlags.templatesDir)
	if err != nil {
		return err
	}
	policy, err := tmpl.Parse()
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return fmt.Errorf("failed to check policy file: %w", statErr)
	}

	if initFlags.merge && exists {
		existing, err := engine.LoadFile(path)
		if err != nil {
			return err
		}
		merged, added := templates.Merge(*existing, *policy)
		if err := engine.WriteFile(path, merged); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Merged template %s into %s (%d rules added)\n", tmpl.Name, path, len(added))
		for _, name := range added {
			fmt.Fprintf(out, "  + %s\n", name)
		}
		return nil
	}

	if exists && !initFlags.force {
		return fmt.Errorf("policy file %s already exists (use --merge or --force)", path)
	}

	if err := os.WriteFile(path, tmpl.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}
	fmt.Fprintf(out, "✓ Created %s from template %s (%d rules, approval mode %s)\n",
		path, tmpl.Name, len(policy.Rules), policy.ApprovalMode)
	return nil
}
