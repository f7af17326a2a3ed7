package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format  string
	Input   string
	Explain bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a SQL query against a registered source",
		Long: `Run a single SELECT against the connectors listed in the config file.

The FROM clause names exactly one source as source('type.identifier'). Only AND
predicates are supported; joins and subqueries are rejected.`,
		Example: `  # Execute SQL directly
  nirv query "SELECT name, age FROM source('mock.users') WHERE age > 26" --config nirv.yaml

  # Output as CSV
  nirv query "SELECT * FROM source('file.people')" --format csv

  # Show the plan without running it
  nirv query "SELECT * FROM source('mock.users') ORDER BY age DESC LIMIT 1" --explain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "table", "Output format: table, json, csv")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "Print the execution plan instead of running the query")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "csv"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	default:
		return fmt.Errorf("no query given (pass SQL as an argument or use --input)")
	}

	switch opts.Format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown format %q (must be table, json, or csv)", opts.Format)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := commandContext(cmd)
	if opts.Explain {
		plan, err := cmdCtx.Engine.Explain(ctx, sqlQuery)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprint(cmd.OutOrStdout(), plan)
		if !strings.HasSuffix(plan, "\n") {
			_, _ = fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}

	result, err := cmdCtx.Engine.Query(ctx, sqlQuery)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), result.QueryResult, opts.Format)
}
