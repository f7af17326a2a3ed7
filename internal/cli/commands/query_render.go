package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/nirv/nirv/pkg/types"
)

func renderResult(w io.Writer, result *types.QueryResult, format string) error {
	cols := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		cols[i] = c.Name
	}

	switch format {
	case "json":
		return renderJSON(w, cols, result.Rows)
	case "csv":
		return renderCSV(w, cols, result.Rows)
	default:
		return renderTable(w, cols, result.Rows)
	}
}

func renderTable(w io.Writer, cols []string, rows []types.Row) error {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, v := range r {
			row[i] = v.String()
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	return nil
}

// renderJSON writes one object per row keyed by column name.
func renderJSON(w io.Writer, cols []string, rows []types.Row) error {
	results := make([]map[string]types.Value, 0, len(rows))
	for _, r := range rows {
		obj := make(map[string]types.Value, len(cols))
		for i, col := range cols {
			if i < len(r) {
				obj[col] = r[i]
			}
		}
		results = append(results, obj)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func renderCSV(w io.Writer, cols []string, rows []types.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	record := make([]string, len(cols))
	for _, r := range rows {
		for i := range record {
			record[i] = ""
			if i < len(r) && !r[i].IsNull() {
				record[i] = r[i].String()
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
