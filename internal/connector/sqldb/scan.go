package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/nirv/nirv/pkg/types"
)

// scanRows drains rows into a result. Column types come from the driver
// when it reports them and from the first non-null value otherwise.
func scanRows(rows *sql.Rows) ([]types.ColumnMetadata, []types.Row, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, err
	}

	columns := make([]types.ColumnMetadata, len(colTypes))
	known := make([]bool, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = types.ColumnMetadata{Name: ct.Name(), DataType: types.DataTypeText, Nullable: true}
		if nullable, ok := ct.Nullable(); ok {
			columns[i].Nullable = nullable
		}
		if name := ct.DatabaseTypeName(); name != "" {
			columns[i].DataType = MapType(name)
			known[i] = true
		}
	}

	out := []types.Row{}
	dest := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(types.Row, len(columns))
		for i, raw := range dest {
			if known[i] {
				row[i] = convert(raw, columns[i].DataType)
				continue
			}
			row[i] = types.ValueOf(normalize(raw))
			if !row[i].IsNull() {
				columns[i].DataType = row[i].DataType()
				known[i] = true
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}

// normalize turns driver byte slices into strings so untyped columns
// read as text.
func normalize(raw interface{}) interface{} {
	if b, ok := raw.([]byte); ok {
		return string(b)
	}
	return raw
}

// convert coerces a driver value into the kind its column declares.
func convert(raw interface{}, dt types.DataType) types.Value {
	if raw == nil {
		return types.NullValue()
	}

	switch dt {
	case types.DataTypeInteger:
		switch v := raw.(type) {
		case int64:
			return types.IntegerValue(v)
		case int32:
			return types.IntegerValue(int64(v))
		case []byte:
			if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
				return types.IntegerValue(i)
			}
		case string:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				return types.IntegerValue(i)
			}
		}
	case types.DataTypeFloat:
		switch v := raw.(type) {
		case float64:
			return types.FloatValue(v)
		case float32:
			return types.FloatValue(float64(v))
		case int64:
			return types.FloatValue(float64(v))
		case []byte:
			if f, err := strconv.ParseFloat(string(v), 64); err == nil {
				return types.FloatValue(f)
			}
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return types.FloatValue(f)
			}
		}
	case types.DataTypeBoolean:
		switch v := raw.(type) {
		case bool:
			return types.BooleanValue(v)
		case int64:
			return types.BooleanValue(v != 0)
		}
	case types.DataTypeDate:
		switch v := raw.(type) {
		case time.Time:
			return types.DateValue(v.Format("2006-01-02"))
		case string:
			return types.DateValue(v)
		case []byte:
			return types.DateValue(string(v))
		}
	case types.DataTypeDateTime:
		switch v := raw.(type) {
		case time.Time:
			return types.DateTimeValue(v.Format(time.RFC3339Nano))
		case string:
			return types.DateTimeValue(v)
		case []byte:
			return types.DateTimeValue(string(v))
		}
	case types.DataTypeJSON:
		switch v := raw.(type) {
		case []byte:
			return types.JSONValue(string(v))
		case string:
			return types.JSONValue(v)
		}
	case types.DataTypeBinary:
		if b, ok := raw.([]byte); ok {
			return types.BinaryValue(append([]byte(nil), b...))
		}
	}

	switch v := raw.(type) {
	case []byte:
		return types.TextValue(string(v))
	case time.Time:
		return types.DateTimeValue(v.Format(time.RFC3339Nano))
	case string, int64, float64, bool:
		return types.ValueOf(v)
	default:
		return types.TextValue(fmt.Sprint(v))
	}
}
