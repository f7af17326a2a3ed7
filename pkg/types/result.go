package types

import "time"

// ColumnMetadata describes one result column.
type ColumnMetadata struct {
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
	Nullable bool     `json:"nullable"`
}

// Row is an ordered list of values aligned with the result columns.
type Row []Value

// QueryResult is what a connector or the executor returns.
type QueryResult struct {
	Columns       []ColumnMetadata `json:"columns"`
	Rows          []Row            `json:"rows"`
	AffectedRows  *uint64          `json:"affected_rows,omitempty"`
	ExecutionTime time.Duration    `json:"execution_time"`
}

// NewQueryResult returns an empty result.
func NewQueryResult() *QueryResult {
	return &QueryResult{Columns: []ColumnMetadata{}, Rows: []Row{}}
}

// RowCount returns the number of rows.
func (r *QueryResult) RowCount() int { return len(r.Rows) }

// IsEmpty reports whether the result has no rows.
func (r *QueryResult) IsEmpty() bool { return len(r.Rows) == 0 }

// ColumnIndex returns the position of the named column, or -1.
func (r *QueryResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Index is a secondary index reported by schema introspection.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// Schema describes a backend object.
type Schema struct {
	Name       string           `json:"name"`
	Columns    []ColumnMetadata `json:"columns"`
	PrimaryKey []string         `json:"primary_key,omitempty"`
	Indexes    []Index          `json:"indexes"`
}
