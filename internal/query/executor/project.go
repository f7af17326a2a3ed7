package executor

import (
	"fmt"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// project narrows result to cols. A wildcard expands to every column;
// a qualified wildcard must name the scanned source by alias or
// identifier. Named columns resolve by exact name, then by their
// unqualified name, and take their alias as output name.
func project(result *types.QueryResult, cols []types.Column, source types.DataSource) (*types.QueryResult, error) {
	if len(result.Columns) == 0 && len(result.Rows) > 0 {
		result.Columns = connector.InferColumns(nil, result.Rows[0])
	}

	var (
		indices []int
		meta    []types.ColumnMetadata
	)
	for _, col := range cols {
		if col.IsWildcard() {
			if col.Source != "" && col.Source != source.Alias && col.Source != source.Identifier {
				return nil, nerrors.NewExecutionError(nerrors.CodeProjectionColumnNotFound,
					fmt.Sprintf("Unknown source '%s' in %s.*", col.Source, col.Source))
			}
			for i, m := range result.Columns {
				indices = append(indices, i)
				meta = append(meta, m)
			}
			continue
		}

		name := col.Name
		if col.Source != "" {
			name = col.Source + "." + col.Name
		}
		idx := connector.ResolveColumn(result.Columns, name)
		if idx < 0 {
			// Empty results from connectors that report no metadata
			// still get the requested shape.
			if len(result.Columns) == 0 && len(result.Rows) == 0 {
				indices = append(indices, -1)
				meta = append(meta, types.ColumnMetadata{Name: col.OutputName(), Nullable: true})
				continue
			}
			return nil, nerrors.NewExecutionError(nerrors.CodeProjectionColumnNotFound,
				fmt.Sprintf("Projected column '%s' not found in result", name))
		}
		m := result.Columns[idx]
		m.Name = col.OutputName()
		indices = append(indices, idx)
		meta = append(meta, m)
	}

	rows := make([]types.Row, len(result.Rows))
	for r, row := range result.Rows {
		out := make(types.Row, len(indices))
		for i, idx := range indices {
			out[i] = cell(row, idx)
		}
		rows[r] = out
	}

	return &types.QueryResult{
		Columns:       meta,
		Rows:          rows,
		AffectedRows:  result.AffectedRows,
		ExecutionTime: result.ExecutionTime,
	}, nil
}
