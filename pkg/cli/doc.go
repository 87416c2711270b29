/*
Package cli provides command-line helpers shared by the toolgate commands.

Output Formatting:

Commands print either aligned text tables or JSON:

	formatter, err := cli.NewFormatter(cli.FormatJSON)
	if err != nil {
		return err
	}
	table := &cli.Table{Headers: []string{"NAME", "ACTION"}}
	table.Append("deny-rm", "deny")
	return formatter.FormatTo(os.Stdout, table)

Exit Codes:

Commands that need a specific process exit status return an *ExitError.
main passes the error to ExitCode:

	if err := cmd.Execute(); err != nil {
	    os.Exit(cli.ExitCode(err))
	}

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
