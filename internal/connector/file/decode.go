package file

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/snappy"

	"github.com/nirv/nirv/internal/connector"
	"github.com/nirv/nirv/pkg/types"
)

// snappySuffix marks a file compressed with the snappy block format.
const snappySuffix = ".sz"

type table struct {
	columns []types.ColumnMetadata
	rows    []types.Row
}

// formatOf returns the data format of an object key ("csv", "json"),
// looking through a trailing snappy suffix.
func formatOf(key string) (format string, compressed bool) {
	lower := strings.ToLower(key)
	if strings.HasSuffix(lower, snappySuffix) {
		compressed = true
		lower = strings.TrimSuffix(lower, snappySuffix)
	}
	dot := strings.LastIndexByte(lower, '.')
	if dot < 0 || strings.ContainsRune(lower[dot:], '/') {
		return "", compressed
	}
	return lower[dot+1:], compressed
}

func decode(data []byte, format string, compressed bool) (*table, error) {
	if compressed {
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		data = raw
	}

	switch format {
	case "csv":
		return decodeCSV(data)
	case "json":
		return decodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// decodeCSV reads a headed CSV file. Cell kinds are inferred per cell:
// empty is NULL, then integer, float, boolean, text. Column metadata is
// Text since a column may mix kinds.
func decodeCSV(data []byte) (*table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &table{columns: []types.ColumnMetadata{}, rows: []types.Row{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	t := &table{columns: make([]types.ColumnMetadata, len(header)), rows: []types.Row{}}
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = connector.DefaultColumnName(i)
		}
		t.columns[i] = types.ColumnMetadata{Name: name, DataType: types.DataTypeText, Nullable: true}
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV record: %w", err)
		}
		row := make(types.Row, len(header))
		for i := range row {
			if i < len(record) {
				row[i] = inferCell(record[i])
			} else {
				row[i] = types.NullValue()
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func inferCell(field string) types.Value {
	if field == "" {
		return types.NullValue()
	}
	if i, err := strconv.ParseInt(field, 10, 64); err == nil {
		return types.IntegerValue(i)
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return types.FloatValue(f)
	}
	if field == "true" || field == "false" {
		return types.BooleanValue(field == "true")
	}
	return types.TextValue(field)
}

// decodeJSON reads an array of objects.
func decodeJSON(data []byte) (*table, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("JSON file must contain an array of objects: %w", err)
	}
	columns, rows, err := connector.JSONObjects(items)
	if err != nil {
		return nil, err
	}
	return &table{columns: columns, rows: rows}, nil
}
