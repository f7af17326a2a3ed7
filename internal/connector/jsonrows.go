package connector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nirv/nirv/pkg/types"
)

var errNotObject = errors.New("expected an array of JSON objects")

// JSONObjects converts a list of JSON objects into rows. Columns are the
// keys of the first object in document order; each column's type is taken
// from its first non-null value. Keys missing from later objects read as
// NULL and keys absent from the first object are ignored.
func JSONObjects(items []json.RawMessage) ([]types.ColumnMetadata, []types.Row, error) {
	columns := []types.ColumnMetadata{}
	rows := []types.Row{}
	if len(items) == 0 {
		return columns, rows, nil
	}

	names, err := objectKeys(items[0])
	if err != nil {
		return nil, nil, err
	}
	for _, name := range names {
		columns = append(columns, types.ColumnMetadata{Name: name, DataType: types.DataTypeText, Nullable: true})
	}

	typed := make([]bool, len(names))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil || obj == nil {
			return nil, nil, errNotObject
		}
		row := make(types.Row, len(names))
		for i, name := range names {
			raw, ok := obj[name]
			if !ok {
				row[i] = types.NullValue()
				continue
			}
			v, err := JSONValue(raw)
			if err != nil {
				return nil, nil, err
			}
			row[i] = v
			if !typed[i] && !v.IsNull() {
				columns[i].DataType = v.DataType()
				typed[i] = true
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// JSONValue converts one JSON value. Arrays and objects are kept as
// compact JSON documents; numbers become integers when they fit.
func JSONValue(raw json.RawMessage) (types.Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return types.Value{}, err
		}
		return types.JSONValue(buf.String()), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var x interface{}
	if err := dec.Decode(&x); err != nil {
		return types.Value{}, fmt.Errorf("invalid JSON value: %w", err)
	}
	return types.ValueOf(x), nil
}
