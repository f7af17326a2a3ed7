package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nirv/nirv/internal/engine"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the registered object types",
		Long: `Connect every connector in the config file and list the object
types queries can name in their FROM clause.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			return renderSources(cmd.OutOrStdout(), cmdCtx.Engine.DescribeSources(), detailed)
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show connector type and capabilities")

	return cmd
}

func renderSources(w io.Writer, sources []engine.SourceInfo, detailed bool) error {
	if len(sources) == 0 {
		_, _ = fmt.Fprintln(w, "No data sources registered")
		return nil
	}

	if !detailed {
		for _, s := range sources {
			_, _ = fmt.Fprintln(w, s.ObjectType)
		}
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"object type", "connector", "connected", "joins", "aggregations", "subqueries", "max concurrent"})
	for _, s := range sources {
		maxConcurrent := "-"
		if s.Capabilities.MaxConcurrentQueries != nil {
			maxConcurrent = strconv.FormatUint(uint64(*s.Capabilities.MaxConcurrentQueries), 10)
		}
		t.AppendRow(table.Row{
			s.ObjectType,
			s.ConnectorType,
			s.Connected,
			s.Capabilities.SupportsJoins,
			s.Capabilities.SupportsAggregations,
			s.Capabilities.SupportsSubqueries,
			maxConcurrent,
		})
	}
	t.Render()
	return nil
}
