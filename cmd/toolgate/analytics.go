package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"radium-hq/toolgate/pkg/analytics"
	"radium-hq/toolgate/pkg/analytics/export"
	"radium-hq/toolgate/pkg/analytics/retention"
	"radium-hq/toolgate/pkg/cli"
	"radium-hq/toolgate/pkg/config"
)

var analyticsFlags struct {
	rulesFormat  string
	trendsFormat string
	trendsDays   int

	// export
	exportFormat string
	exportDays   int
	output       string
	tool       string
	action     string
	rule       string
	user       string
	violations bool
	limit      int
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query recorded policy decisions",
	Long: `Query the policy decisions recorded in the analytics database.

Subcommands:
  rules   per-rule evaluation counters
  trends  violations (non-allow decisions) per day
  export  export events as JSON or CSV
  prune   apply the retention policy now`,
}

var analyticsRulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show per-rule evaluation counters",
	Args:  cobra.NoArgs,
	RunE:  runAnalyticsRules,
}

var analyticsTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show violations per day",
	Args:  cobra.NoArgs,
	RunE:  runAnalyticsTrends,
}

var analyticsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded events",
	Long: `Export recorded events, newest first.

Examples:
  # Last week's denials as CSV
  toolgate analytics export --format csv --days 7 --action deny --output denials.csv

  # Every violation by one user as JSON
  toolgate analytics export --violations --user alice`,
	Args: cobra.NoArgs,
	RunE: runAnalyticsExport,
}

var analyticsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete events outside the retention policy",
	Args:  cobra.NoArgs,
	RunE:  runAnalyticsPrune,
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsRulesCmd, analyticsTrendsCmd, analyticsExportCmd, analyticsPruneCmd)

	analyticsRulesCmd.Flags().StringVar(&analyticsFlags.rulesFormat, "format", "text", "output format: text, json")

	analyticsTrendsCmd.Flags().StringVar(&analyticsFlags.trendsFormat, "format", "text", "output format: text, json")
	analyticsTrendsCmd.Flags().IntVar(&analyticsFlags.trendsDays, "days", 30, "number of days to include")

	analyticsExportCmd.Flags().StringVar(&analyticsFlags.exportFormat, "format", "json", "export format: json, csv")
	analyticsExportCmd.Flags().IntVar(&analyticsFlags.exportDays, "days", 0, "only events from the last N days (0 = all)")
	analyticsExportCmd.Flags().StringVarP(&analyticsFlags.output, "output", "o", "", "output file (default stdout)")
	analyticsExportCmd.Flags().StringVar(&analyticsFlags.tool, "tool", "", "filter by tool name")
	analyticsExportCmd.Flags().StringVar(&analyticsFlags.action, "action", "", "filter by action")
	analyticsExportCmd.Flags().StringVar(&analyticsFlags.rule, "rule", "", "filter by matched rule")
	analyticsExportCmd.Flags().StringVar(&analyticsFlags.user, "user", "", "filter by user")
	analyticsExportCmd.Flags().BoolVar(&analyticsFlags.violations, "violations", false, "only non-allow decisions")
	analyticsExportCmd.Flags().IntVar(&analyticsFlags.limit, "limit", 1000, "maximum number of events")
}

// openAnalytics opens the configured analytics database for reading.
func openAnalytics(errOut io.Writer) (*config.Config, analytics.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Analytics.Backend == "memory" {
		return nil, nil, fmt.Errorf("analytics backend %q keeps no data between runs", cfg.Analytics.Backend)
	}
	if _, err := newLogger(cfg, errOut); err != nil {
		return nil, nil, err
	}
	store, err := openStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

func runAnalyticsRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analyticsFlags.rulesFormat)
	if err != nil {
		return err
	}
	_, store, err := openAnalytics(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer store.Close()

	metrics, err := store.RuleMetrics(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if metrics == nil {
			metrics = []analytics.RuleMetrics{}
		}
		return (&cli.JSONFormatter{Indent: true}).FormatTo(out, metrics)
	}

	table := &cli.Table{Headers: []string{"RULE", "TOTAL", "ALLOW", "DENY", "ASK", "DRY-RUN", "LAST"}}
	for _, m := range metrics {
		table.Append(m.RuleName,
			strconv.FormatInt(m.TotalEvaluations, 10),
			strconv.FormatInt(m.AllowCount, 10),
			strconv.FormatInt(m.DenyCount, 10),
			strconv.FormatInt(m.AskCount, 10),
			strconv.FormatInt(m.DryRunCount, 10),
			m.LastUpdated.UTC().Format(time.RFC3339),
		)
	}
	return (&cli.TextFormatter{}).FormatTo(out, table)
}

func runAnalyticsTrends(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(analyticsFlags.trendsFormat)
	if err != nil {
		return err
	}
	if analyticsFlags.trendsDays <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	_, store, err := openAnalytics(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer store.Close()

	since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(analyticsFlags.trendsDays - 1))
	trends, err := store.ViolationTrends(cmd.Context(), since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		if trends == nil {
			trends = []analytics.TrendPoint{}
		}
		return (&cli.JSONFormatter{Indent: true}).FormatTo(out, trends)
	}

	table := &cli.Table{Headers: []string{"DATE", "VIOLATIONS"}}
	for _, p := range trends {
		table.Append(p.Date, strconv.FormatInt(p.Violations, 10))
	}
	return (&cli.TextFormatter{}).FormatTo(out, table)
}

func runAnalyticsExport(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(export.Format(analyticsFlags.exportFormat))
	if err != nil {
		return err
	}

	query := &analytics.Query{
		ToolName:       analyticsFlags.tool,
		Action:         analyticsFlags.action,
		MatchedRule:    analyticsFlags.rule,
		User:           analyticsFlags.user,
		ViolationsOnly: analyticsFlags.violations,
		Limit:          analyticsFlags.limit,
		SortOrder:      "desc",
	}
	if analyticsFlags.exportDays > 0 {
		since := time.Now().AddDate(0, 0, -analyticsFlags.exportDays)
		query.StartTime = &since
	}
	if err := query.Validate(); err != nil {
		return err
	}

	_, store, err := openAnalytics(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.Query(cmd.Context(), query)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if analyticsFlags.output != "" {
		f, err := os.Create(analyticsFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := exporter.Export(cmd.Context(), events, w); err != nil {
		return err
	}
	if analyticsFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d events to %s\n", len(events), analyticsFlags.output)
	}
	return nil
}

func runAnalyticsPrune(cmd *cobra.Command, args []string) error {
	cfg, store, err := openAnalytics(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer store.Close()

	deleted, err := retention.NewPruner(store, cfg.RetentionConfig()).Prune(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d events\n", deleted)
	return nil
}
