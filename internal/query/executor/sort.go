package executor

import (
	"fmt"
	"sort"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// sortRows stably sorts result rows by every ordering column, primary
// first. Rows are copied before sorting so connector-owned slices are
// never reordered.
func sortRows(result *types.QueryResult, ordering types.OrderBy) error {
	if len(ordering.Columns) == 0 {
		return nil
	}
	// An empty result without metadata has nothing to resolve against.
	if len(result.Columns) == 0 && len(result.Rows) == 0 {
		return nil
	}

	// Resolve ORDER BY column indices
	indices := make([]int, len(ordering.Columns))
	for i, oc := range ordering.Columns {
		idx := connector.ResolveColumn(result.Columns, oc.Column)
		if idx < 0 {
			return nerrors.NewExecutionError(nerrors.CodeSortColumnNotFound,
				fmt.Sprintf("Sort column '%s' not found in result", oc.Column))
		}
		indices[i] = idx
	}
	if len(result.Rows) < 2 {
		return nil
	}

	rows := make([]types.Row, len(result.Rows))
	copy(rows, result.Rows)

	sort.SliceStable(rows, func(i, j int) bool {
		for k, oc := range ordering.Columns {
			idx := indices[k]
			c := types.Compare(cell(rows[i], idx), cell(rows[j], idx))
			if c == 0 {
				continue
			}
			if oc.Direction == types.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	result.Rows = rows
	return nil
}

// cell returns row[idx], treating a short row as null.
func cell(row types.Row, idx int) types.Value {
	if idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return types.NullValue()
}
