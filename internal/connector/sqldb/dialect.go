package sqldb

import (
	"strconv"
	"strings"

	"github.com/nirv/nirv/pkg/types"
)

// Dialect captures the differences between the supported databases.
type Dialect struct {
	Name          string
	DriverName    string
	ConnectorType types.ConnectorType
	DefaultSchema string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// Postgres uses $n placeholders and the public schema.
var Postgres = Dialect{
	Name:          "postgres",
	DriverName:    "pgx",
	ConnectorType: types.ConnectorPostgreSQL,
	DefaultSchema: "public",
	Placeholder:   func(n int) string { return "$" + strconv.Itoa(n) },
}

// SQLite uses ? placeholders and the main schema.
var SQLite = Dialect{
	Name:          "sqlite",
	DriverName:    "sqlite3",
	ConnectorType: types.ConnectorSQLite,
	DefaultSchema: "main",
	Placeholder:   func(int) string { return "?" },
}

// QuoteIdent double-quotes an identifier, which both dialects accept.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes each dot-separated part of a table reference.
func QuoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// splitQualified separates an optional schema from a table name.
func (d Dialect) splitQualified(name string) (schema, table string) {
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		return name[:dot], name[dot+1:]
	}
	return d.DefaultSchema, name
}

// MapType maps a database type name to a DataType. PostgreSQL names are
// matched first; anything else follows SQLite's affinity rules.
func MapType(dbType string) types.DataType {
	t := strings.ToUpper(strings.TrimSpace(dbType))
	if paren := strings.IndexByte(t, '('); paren >= 0 {
		t = strings.TrimSpace(t[:paren])
	}

	switch t {
	case "TEXT", "VARCHAR", "CHARACTER VARYING", "CHARACTER", "CHAR", "BPCHAR", "NAME", "UUID", "INTERVAL", "POINT":
		return types.DataTypeText
	case "INT2", "INT4", "INT8", "SMALLINT", "INTEGER", "BIGINT", "SERIAL", "BIGSERIAL":
		return types.DataTypeInteger
	case "FLOAT4", "FLOAT8", "REAL", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return types.DataTypeFloat
	case "BOOL", "BOOLEAN":
		return types.DataTypeBoolean
	case "DATE":
		return types.DataTypeDate
	case "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE", "DATETIME":
		return types.DataTypeDateTime
	case "JSON", "JSONB":
		return types.DataTypeJSON
	case "BYTEA", "BLOB":
		return types.DataTypeBinary
	}

	switch {
	case strings.Contains(t, "INT"):
		return types.DataTypeInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return types.DataTypeText
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return types.DataTypeFloat
	case strings.Contains(t, "BOOL"):
		return types.DataTypeBoolean
	case strings.Contains(t, "TIME"):
		return types.DataTypeDateTime
	default:
		return types.DataTypeText
	}
}
