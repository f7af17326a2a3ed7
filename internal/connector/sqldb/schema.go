package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nirv/nirv/pkg/types"
)

const pgColumnsQuery = `
	SELECT column_name, data_type, is_nullable
	FROM information_schema.columns
	WHERE table_schema = $1 AND table_name = $2
	ORDER BY ordinal_position`

const pgPrimaryKeyQuery = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
	WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
	ORDER BY kcu.ordinal_position`

const pgIndexQuery = `
	SELECT indexname, indexdef
	FROM pg_indexes
	WHERE schemaname = $1 AND tablename = $2
	ORDER BY indexname`

// introspectPostgres reads a table description from information_schema and
// pg_indexes. It returns nil when the table has no columns.
func introspectPostgres(ctx context.Context, db *sql.DB, schemaName, table string) (*types.Schema, error) {
	rows, err := db.QueryContext(ctx, pgColumnsQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	var columns []types.ColumnMetadata
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		columns = append(columns, types.ColumnMetadata{Name: name, DataType: MapType(dataType), Nullable: nullable == "YES"})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}
	if len(columns) == 0 {
		return nil, nil
	}

	pk, err := queryStrings(ctx, db, pgPrimaryKeyQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query primary key: %w", err)
	}

	idxRows, err := db.QueryContext(ctx, pgIndexQuery, schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer idxRows.Close()
	indexes := []types.Index{}
	for idxRows.Next() {
		var name, def string
		if err := idxRows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indexes = append(indexes, types.Index{
			Name:    name,
			Columns: indexColumns(def),
			Unique:  strings.Contains(strings.ToUpper(def), "UNIQUE"),
		})
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indexes: %w", err)
	}

	return &types.Schema{Name: table, Columns: columns, PrimaryKey: pk, Indexes: indexes}, nil
}

// indexColumns extracts the column list from a CREATE INDEX definition,
// e.g. "CREATE UNIQUE INDEX x ON public.t USING btree (a, b)".
func indexColumns(def string) []string {
	open := strings.LastIndexByte(def, '(')
	end := strings.LastIndexByte(def, ')')
	if open < 0 || end <= open {
		return nil
	}
	var cols []string
	for _, c := range strings.Split(def[open+1:end], ",") {
		c = strings.Trim(strings.TrimSpace(c), `"`)
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// introspectSQLite reads a table description through PRAGMAs. It returns
// nil when the table does not exist.
func introspectSQLite(ctx context.Context, db *sql.DB, table string) (*types.Schema, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query table info: %w", err)
	}
	type pkCol struct {
		name string
		pos  int
	}
	var columns []types.ColumnMetadata
	var pkCols []pkCol
	for rows.Next() {
		var (
			cid      int
			name     string
			declType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		columns = append(columns, types.ColumnMetadata{Name: name, DataType: MapType(declType), Nullable: notNull == 0 && pk == 0})
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, pos: pk})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table info: %w", err)
	}
	if len(columns) == 0 {
		return nil, nil
	}

	var primaryKey []string
	for pos := 1; pos <= len(pkCols); pos++ {
		for _, c := range pkCols {
			if c.pos == pos {
				primaryKey = append(primaryKey, c.name)
			}
		}
	}

	idxRows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query index list: %w", err)
	}
	type indexEntry struct {
		name   string
		unique bool
	}
	var entries []indexEntry
	for idxRows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := idxRows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			idxRows.Close()
			return nil, fmt.Errorf("failed to scan index list: %w", err)
		}
		entries = append(entries, indexEntry{name: name, unique: unique == 1})
	}
	idxRows.Close()
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index list: %w", err)
	}

	indexes := []types.Index{}
	for _, e := range entries {
		infoRows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", QuoteIdent(e.name)))
		if err != nil {
			return nil, fmt.Errorf("failed to query index info: %w", err)
		}
		var cols []string
		for infoRows.Next() {
			var seqno, cid int
			var name sql.NullString
			if err := infoRows.Scan(&seqno, &cid, &name); err != nil {
				infoRows.Close()
				return nil, fmt.Errorf("failed to scan index info: %w", err)
			}
			cols = append(cols, name.String)
		}
		infoRows.Close()
		indexes = append(indexes, types.Index{Name: e.name, Columns: cols, Unique: e.unique})
	}

	return &types.Schema{Name: table, Columns: columns, PrimaryKey: primaryKey, Indexes: indexes}, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...interface{}) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
