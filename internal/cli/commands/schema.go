package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nirv/nirv/pkg/types"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <type.identifier>",
		Short: "Describe the columns of a source object",
		Example: `  nirv schema mock.users
  nirv schema postgres.orders --config nirv.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			schema, err := cmdCtx.Engine.Schema(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			renderSchema(cmd.OutOrStdout(), schema)
			return nil
		},
	}
}

func renderSchema(w io.Writer, schema *types.Schema) {
	_, _ = fmt.Fprintf(w, "%s\n", schema.Name)

	pk := make(map[string]bool, len(schema.PrimaryKey))
	for _, c := range schema.PrimaryKey {
		pk[c] = true
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"column", "type", "nullable", "key"})
	for _, c := range schema.Columns {
		key := ""
		if pk[c.Name] {
			key = "PK"
		}
		t.AppendRow(table.Row{c.Name, c.DataType.String(), c.Nullable, key})
	}
	t.Render()

	for _, idx := range schema.Indexes {
		kind := "index"
		if idx.Unique {
			kind = "unique index"
		}
		_, _ = fmt.Fprintf(w, "%s %s (%s)\n", kind, idx.Name, strings.Join(idx.Columns, ", "))
	}
}
