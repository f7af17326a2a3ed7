package sqldb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

func selectQuery(table string, preds ...types.Predicate) *types.Query {
	q := types.NewQuery(types.OperationSelect)
	q.Sources = []types.DataSource{{ObjectType: "db", Identifier: table}}
	q.Predicates = preds
	return q
}

func TestMapType(t *testing.T) {
	tests := []struct {
		dbType   string
		expected types.DataType
	}{
		{"INT8", types.DataTypeInteger},
		{"integer", types.DataTypeInteger},
		{"MEDIUMINT", types.DataTypeInteger},
		{"VARCHAR(255)", types.DataTypeText},
		{"character varying", types.DataTypeText},
		{"NVARCHAR(10)", types.DataTypeText},
		{"uuid", types.DataTypeText},
		{"NUMERIC(10,2)", types.DataTypeFloat},
		{"DOUBLE PRECISION", types.DataTypeFloat},
		{"REAL", types.DataTypeFloat},
		{"bool", types.DataTypeBoolean},
		{"DATE", types.DataTypeDate},
		{"timestamptz", types.DataTypeDateTime},
		{"timestamp without time zone", types.DataTypeDateTime},
		{"JSONB", types.DataTypeJSON},
		{"bytea", types.DataTypeBinary},
		{"BLOB", types.DataTypeBinary},
		{"", types.DataTypeText},
	}

	for _, tt := range tests {
		t.Run(tt.dbType, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapType(tt.dbType))
		})
	}
}

func TestQuoteQualified(t *testing.T) {
	assert.Equal(t, `"users"`, QuoteQualified("users"))
	assert.Equal(t, `"sales"."orders"`, QuoteQualified("sales.orders"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		preds   []types.Predicate
		params  map[string]string
		sql     string
		args    []interface{}
	}{
		{
			name:    "bare",
			dialect: Postgres,
			sql:     `SELECT * FROM "users"`,
		},
		{
			name:    "postgres placeholders",
			dialect: Postgres,
			preds: []types.Predicate{
				{Column: "u.age", Operator: types.OpGreaterThan, Value: types.IntegerPredicate(26)},
				{Column: "name", Operator: types.OpLike, Value: types.StringPredicate("A%")},
			},
			sql:  `SELECT * FROM "users" WHERE "age" > $1 AND "name" LIKE $2`,
			args: []interface{}{int64(26), "A%"},
		},
		{
			name:    "sqlite placeholders with IN",
			dialect: SQLite,
			preds: []types.Predicate{
				{Column: "id", Operator: types.OpIn, Value: types.ListPredicate(types.IntegerPredicate(1), types.IntegerPredicate(3))},
				{Column: "active", Operator: types.OpEqual, Value: types.BooleanPredicate(true)},
			},
			sql:  `SELECT * FROM "users" WHERE "id" IN (?, ?) AND "active" = ?`,
			args: []interface{}{int64(1), int64(3), true},
		},
		{
			name:    "null checks",
			dialect: Postgres,
			preds: []types.Predicate{
				{Column: "age", Operator: types.OpIsNull, Value: types.NullPredicate()},
				{Column: "email", Operator: types.OpNotEqual, Value: types.NullPredicate()},
			},
			sql: `SELECT * FROM "users" WHERE "age" IS NULL AND "email" IS NOT NULL`,
		},
		{
			name:    "limit param",
			dialect: SQLite,
			params:  map[string]string{"limit": "5"},
			sql:     `SELECT * FROM "users" LIMIT 5`,
		},
		{
			name:    "invalid limit param ignored",
			dialect: SQLite,
			params:  map[string]string{"limit": "many"},
			sql:     `SELECT * FROM "users"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, args, err := BuildSelect(tt.dialect, selectQuery("users", tt.preds...), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, stmt)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestBuildSelect_Errors(t *testing.T) {
	_, _, err := BuildSelect(Postgres, types.NewQuery(types.OperationDelete), nil)
	assert.Equal(t, nerrors.CodeUnsupportedOperation, nerrors.GetCode(err))

	_, _, err = BuildSelect(Postgres, types.NewQuery(types.OperationSelect), nil)
	assert.Equal(t, nerrors.CodeQueryExecutionFailed, nerrors.GetCode(err))

	empty := selectQuery("users", types.Predicate{Column: "id", Operator: types.OpIn, Value: types.ListPredicate()})
	_, _, err = BuildSelect(Postgres, empty, nil)
	assert.Equal(t, nerrors.CodeQueryExecutionFailed, nerrors.GetCode(err))
}

func newMockConnector(t *testing.T, d Dialect) (*Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := New(d, WithDB(db))
	require.NoError(t, c.Connect(context.Background(), connector.NewInitConfig().WithMaxConnections(4)))
	return c, mock
}

func TestConnector_ExecuteQuery(t *testing.T) {
	c, mock := newMockConnector(t, Postgres)

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("INT8", int64(0)).Nullable(false),
		mock.NewColumn("name").OfType("TEXT", ""),
		mock.NewColumn("balance").OfType("NUMERIC", ""),
		mock.NewColumn("created").OfType("DATE", time.Time{}),
	).
		AddRow(int64(1), "Alice", []byte("10.50"), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)).
		AddRow(int64(3), "Charlie", nil, nil)
	mock.ExpectQuery(`SELECT * FROM "accounts" WHERE "id" > $1 LIMIT 10`).
		WithArgs(int64(0)).
		WillReturnRows(rows)

	q := types.NewConnectorQuery(types.ConnectorPostgreSQL,
		selectQuery("accounts", types.Predicate{Column: "id", Operator: types.OpGreaterThan, Value: types.IntegerPredicate(0)}))
	q.ConnectionParams["limit"] = "10"

	res, err := c.ExecuteQuery(context.Background(), q)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, res.Columns, 4)
	assert.Equal(t, types.DataTypeInteger, res.Columns[0].DataType)
	assert.False(t, res.Columns[0].Nullable)
	assert.Equal(t, types.DataTypeFloat, res.Columns[2].DataType)
	assert.Equal(t, types.DataTypeDate, res.Columns[3].DataType)

	require.Equal(t, 2, res.RowCount())
	assert.Equal(t, types.IntegerValue(1), res.Rows[0][0])
	assert.Equal(t, types.TextValue("Alice"), res.Rows[0][1])
	assert.Equal(t, types.FloatValue(10.5), res.Rows[0][2])
	assert.Equal(t, types.DateValue("2024-01-02"), res.Rows[0][3])
	assert.True(t, res.Rows[1][2].IsNull())
	assert.True(t, res.Rows[1][3].IsNull())
}

func TestConnector_ExecuteQueryUntypedColumns(t *testing.T) {
	c, mock := newMockConnector(t, SQLite)

	rows := sqlmock.NewRows([]string{"n", "label"}).
		AddRow(nil, []byte("x")).
		AddRow(int64(7), []byte("y"))
	mock.ExpectQuery(`SELECT * FROM "t"`).WillReturnRows(rows)

	res, err := c.ExecuteQuery(context.Background(), types.NewConnectorQuery(types.ConnectorSQLite, selectQuery("t")))
	require.NoError(t, err)
	assert.Equal(t, types.DataTypeInteger, res.Columns[0].DataType)
	assert.Equal(t, types.DataTypeText, res.Columns[1].DataType)
	assert.Equal(t, types.TextValue("y"), res.Rows[1][1])
}

func TestConnector_ExecuteQueryErrors(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		c := NewPostgres()
		_, err := c.ExecuteQuery(context.Background(), types.NewConnectorQuery(types.ConnectorPostgreSQL, selectQuery("t")))
		assert.Equal(t, nerrors.CodeConnectionFailed, nerrors.GetCode(err))
		assert.True(t, nerrors.IsRetryable(err))
	})

	t.Run("driver failure", func(t *testing.T) {
		c, mock := newMockConnector(t, Postgres)
		mock.ExpectQuery(`SELECT * FROM "missing"`).WillReturnError(assert.AnError)

		_, err := c.ExecuteQuery(context.Background(), types.NewConnectorQuery(types.ConnectorPostgreSQL, selectQuery("missing")))
		assert.Equal(t, nerrors.CodeQueryExecutionFailed, nerrors.GetCode(err))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("deadline", func(t *testing.T) {
		c, mock := newMockConnector(t, Postgres)
		mock.ExpectQuery(`SELECT * FROM "slow"`).
			WillDelayFor(time.Second).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := c.ExecuteQuery(ctx, types.NewConnectorQuery(types.ConnectorPostgreSQL, selectQuery("slow")))
		assert.Equal(t, nerrors.CodeTimeout, nerrors.GetCode(err))
	})
}

func TestConnector_GetSchemaPostgres(t *testing.T) {
	c, mock := newMockConnector(t, Postgres)

	mock.ExpectQuery(pgColumnsQuery).
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "bigint", "NO").
			AddRow("total", "numeric", "YES").
			AddRow("placed_at", "timestamp with time zone", "YES"))
	mock.ExpectQuery(pgPrimaryKeyQuery).
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("id"))
	mock.ExpectQuery(pgIndexQuery).
		WithArgs("sales", "orders").
		WillReturnRows(sqlmock.NewRows([]string{"indexname", "indexdef"}).
			AddRow("orders_pkey", "CREATE UNIQUE INDEX orders_pkey ON sales.orders USING btree (id)").
			AddRow("orders_placed_idx", "CREATE INDEX orders_placed_idx ON sales.orders USING btree (placed_at, total)"))

	schema, err := c.GetSchema(context.Background(), "sales.orders")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "sales.orders", schema.Name)
	require.Len(t, schema.Columns, 3)
	assert.Equal(t, types.DataTypeInteger, schema.Columns[0].DataType)
	assert.False(t, schema.Columns[0].Nullable)
	assert.Equal(t, types.DataTypeFloat, schema.Columns[1].DataType)
	assert.Equal(t, types.DataTypeDateTime, schema.Columns[2].DataType)
	assert.Equal(t, []string{"id"}, schema.PrimaryKey)
	require.Len(t, schema.Indexes, 2)
	assert.True(t, schema.Indexes[0].Unique)
	assert.Equal(t, []string{"placed_at", "total"}, schema.Indexes[1].Columns)
	assert.False(t, schema.Indexes[1].Unique)
}

func TestConnector_GetSchemaPostgresMissingTable(t *testing.T) {
	c, mock := newMockConnector(t, Postgres)
	mock.ExpectQuery(pgColumnsQuery).
		WithArgs("public", "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))

	_, err := c.GetSchema(context.Background(), "ghost")
	assert.Equal(t, nerrors.CodeSchemaRetrievalFailed, nerrors.GetCode(err))
	assert.Contains(t, err.Error(), "Table 'ghost' not found")
}

func TestConnector_Capabilities(t *testing.T) {
	c, _ := newMockConnector(t, Postgres)
	caps := c.Capabilities()
	assert.True(t, caps.SupportsJoins)
	assert.True(t, caps.SupportsTransactions)
	require.NotNil(t, caps.MaxConcurrentQueries)
	assert.Equal(t, uint32(4), *caps.MaxConcurrentQueries)
	assert.Equal(t, types.ConnectorPostgreSQL, c.Type())
	assert.True(t, c.SupportsTransactions())
}

func TestPostgresDSN(t *testing.T) {
	cfg := connector.NewInitConfig().
		WithParam("host", "db.internal").
		WithParam("dbname", "shop").
		WithParam("password", "it's secret")
	assert.Equal(t,
		`host=db.internal port=5432 dbname=shop user=postgres sslmode=disable password='it\'s secret'`,
		postgresDSN(cfg))

	cfg = connector.NewInitConfig().WithParam("dsn", "postgres://u@h/db")
	assert.Equal(t, "postgres://u@h/db", postgresDSN(cfg))
}

// seedSQLite writes a small database to a temporary file.
func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email VARCHAR(100), age INTEGER, score REAL, active BOOLEAN)`,
		`CREATE UNIQUE INDEX idx_users_email ON users (email)`,
		`INSERT INTO users VALUES (1, 'Alice', 'alice@example.com', 30, 9.5, 1)`,
		`INSERT INTO users VALUES (2, 'Bob', 'bob@example.com', 25, 7.25, 1)`,
		`INSERT INTO users VALUES (3, 'Charlie', NULL, NULL, 6.0, 0)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return path
}

func TestSQLite_EndToEnd(t *testing.T) {
	path := seedSQLite(t)

	c := NewSQLite()
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, connector.NewInitConfig().WithParam("path", path)))
	defer func() { _ = c.Disconnect(ctx) }()
	assert.True(t, c.IsConnected())

	q := selectQuery("users", types.Predicate{Column: "age", Operator: types.OpGreaterThan, Value: types.IntegerPredicate(26)})
	res, err := c.ExecuteQuery(ctx, types.NewConnectorQuery(types.ConnectorSQLite, q))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, types.TextValue("Alice"), res.Rows[0][res.ColumnIndex("name")])
	assert.Equal(t, types.FloatValue(9.5), res.Rows[0][res.ColumnIndex("score")])
	assert.Equal(t, types.BooleanValue(true), res.Rows[0][res.ColumnIndex("active")])

	q = selectQuery("users", types.Predicate{Column: "email", Operator: types.OpIsNull, Value: types.NullPredicate()})
	res, err = c.ExecuteQuery(ctx, types.NewConnectorQuery(types.ConnectorSQLite, q))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, types.IntegerValue(3), res.Rows[0][0])
	assert.True(t, res.Rows[0][res.ColumnIndex("age")].IsNull())

	schema, err := c.GetSchema(ctx, "users")
	require.NoError(t, err)
	require.Len(t, schema.Columns, 6)
	assert.Equal(t, types.DataTypeText, schema.Columns[2].DataType)
	assert.True(t, schema.Columns[2].Nullable)
	assert.False(t, schema.Columns[1].Nullable)
	assert.Equal(t, []string{"id"}, schema.PrimaryKey)
	require.Len(t, schema.Indexes, 1)
	assert.Equal(t, "idx_users_email", schema.Indexes[0].Name)
	assert.Equal(t, []string{"email"}, schema.Indexes[0].Columns)
	assert.True(t, schema.Indexes[0].Unique)

	_, err = c.GetSchema(ctx, "ghost")
	assert.Equal(t, nerrors.CodeSchemaRetrievalFailed, nerrors.GetCode(err))

	require.NoError(t, c.Disconnect(ctx))
	assert.False(t, c.IsConnected())
}

func TestSQLite_ConnectRequiresPath(t *testing.T) {
	err := NewSQLite().Connect(context.Background(), connector.NewInitConfig())
	assert.Equal(t, nerrors.CodeConnectionFailed, nerrors.GetCode(err))
}
