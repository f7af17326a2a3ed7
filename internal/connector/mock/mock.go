// Package mock provides an in-memory connector with deterministic fixture
// tables. It backs tests, demos and the "mock" connector type in config.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// DefaultConnectDelay simulates connection setup.
const DefaultConnectDelay = 10 * time.Millisecond

type table struct {
	schema types.Schema
	rows   []types.Row
}

// Connector serves fixture tables from memory.
type Connector struct {
	mu           sync.RWMutex
	connected    bool
	tables       map[string]*table
	connectDelay time.Duration
	queryDelay   time.Duration
}

// Option configures a mock Connector.
type Option func(*Connector)

// WithConnectDelay overrides the simulated connection delay.
func WithConnectDelay(d time.Duration) Option {
	return func(c *Connector) {
		c.connectDelay = d
	}
}

// WithQueryDelay makes every query wait d before answering, or until the
// query context is done.
func WithQueryDelay(d time.Duration) Option {
	return func(c *Connector) {
		c.queryDelay = d
	}
}

// New creates a disconnected mock connector preloaded with the users and
// products fixtures.
func New(opts ...Option) *Connector {
	c := &Connector{
		tables:       make(map[string]*table),
		connectDelay: DefaultConnectDelay,
	}
	c.loadFixtures()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect marks the connector connected after the configured delay.
// Params "connect_delay_ms" and "query_delay_ms" override the options.
func (c *Connector) Connect(ctx context.Context, cfg connector.InitConfig) error {
	connectDelay, queryDelay := c.connectDelay, c.queryDelay
	if ms, ok, err := cfg.IntParam("connect_delay_ms"); err != nil {
		return nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "invalid connect_delay_ms", err)
	} else if ok {
		connectDelay = time.Duration(ms) * time.Millisecond
	}
	if ms, ok, err := cfg.IntParam("query_delay_ms"); err != nil {
		return nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "invalid query_delay_ms", err)
	} else if ok {
		queryDelay = time.Duration(ms) * time.Millisecond
	}

	if err := wait(ctx, connectDelay); err != nil {
		return nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "connect interrupted", err)
	}

	c.mu.Lock()
	c.connected = true
	c.queryDelay = queryDelay
	c.mu.Unlock()
	return nil
}

// ExecuteQuery answers a SELECT against the table named by the first
// source identifier. Predicates and the "limit" connection parameter are
// applied; ordering and projection are left to the executor.
func (c *Connector) ExecuteQuery(ctx context.Context, q types.ConnectorQuery) (*types.QueryResult, error) {
	start := time.Now()

	c.mu.RLock()
	connected, delay := c.connected, c.queryDelay
	c.mu.RUnlock()
	if !connected {
		return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "Not connected", nil)
	}

	if err := wait(ctx, delay); err != nil {
		if err == context.DeadlineExceeded {
			return nil, nerrors.NewConnectorError(nerrors.CodeTimeout, "Query deadline exceeded", err)
		}
		return nil, err
	}

	if q.Query == nil || q.Query.Operation != types.OperationSelect {
		op := "unknown"
		if q.Query != nil {
			op = q.Query.Operation.String()
		}
		return nil, nerrors.NewConnectorError(nerrors.CodeUnsupportedOperation,
			fmt.Sprintf("Operation %s not supported by mock connector", op), nil)
	}
	if len(q.Query.Sources) == 0 {
		return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			"No data source specified in query", nil)
	}

	name := q.Query.Sources[0].Identifier
	c.mu.RLock()
	t, ok := c.tables[name]
	var columns []types.ColumnMetadata
	var rows []types.Row
	if ok {
		columns = append(columns, t.schema.Columns...)
		rows = connector.FilterRows(t.schema.Columns, t.rows, q.Query.Predicates)
	}
	c.mu.RUnlock()
	if !ok {
		return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			fmt.Sprintf("Table '%s' not found", name), nil)
	}

	rows = connector.ApplyLimit(rows, q.ConnectionParams)
	return &types.QueryResult{
		Columns:       columns,
		Rows:          copyRows(rows),
		ExecutionTime: time.Since(start),
	}, nil
}

// GetSchema describes a fixture table.
func (c *Connector) GetSchema(ctx context.Context, name string) (*types.Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "Not connected", nil)
	}
	t, ok := c.tables[name]
	if !ok {
		return nil, nerrors.NewConnectorError(nerrors.CodeSchemaRetrievalFailed,
			fmt.Sprintf("Object '%s' not found", name), nil)
	}
	schema := t.schema
	schema.Columns = append([]types.ColumnMetadata(nil), t.schema.Columns...)
	schema.PrimaryKey = append([]string(nil), t.schema.PrimaryKey...)
	schema.Indexes = append([]types.Index{}, t.schema.Indexes...)
	return &schema, nil
}

// Disconnect marks the connector disconnected. Fixture data is kept.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *Connector) Type() types.ConnectorType  { return types.ConnectorMock }
func (c *Connector) SupportsTransactions() bool { return false }

func (c *Connector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Connector) Capabilities() connector.Capabilities {
	maxQueries := uint32(10)
	return connector.Capabilities{
		SupportsSchemaIntrospection: true,
		MaxConcurrentQueries:        &maxQueries,
	}
}

// Tables returns the fixture table names, sorted.
func (c *Connector) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddTable replaces or creates a table. Column types are inferred from
// the first row; missing names become column_<i>.
func (c *Connector) AddTable(name string, columns []string, rows []types.Row) {
	var cols []types.ColumnMetadata
	if len(rows) > 0 {
		cols = connector.InferColumns(columns, rows[0])
	} else {
		for _, col := range columns {
			cols = append(cols, types.ColumnMetadata{Name: col, DataType: types.DataTypeText, Nullable: true})
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[name] = &table{
		schema: types.Schema{Name: name, Columns: cols, Indexes: []types.Index{}},
		rows:   copyRows(rows),
	}
}

// AddRows appends rows to an existing table.
func (c *Connector) AddRows(name string, rows ...types.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			fmt.Sprintf("Table '%s' not found", name), nil)
	}
	t.rows = append(t.rows, copyRows(rows)...)
	return nil
}

func (c *Connector) loadFixtures() {
	c.tables["users"] = &table{
		schema: types.Schema{
			Name: "users",
			Columns: []types.ColumnMetadata{
				{Name: "id", DataType: types.DataTypeInteger},
				{Name: "name", DataType: types.DataTypeText},
				{Name: "email", DataType: types.DataTypeText, Nullable: true},
				{Name: "age", DataType: types.DataTypeInteger, Nullable: true},
				{Name: "active", DataType: types.DataTypeBoolean},
			},
			PrimaryKey: []string{"id"},
			Indexes:    []types.Index{{Name: "idx_users_email", Columns: []string{"email"}, Unique: true}},
		},
		rows: []types.Row{
			{types.IntegerValue(1), types.TextValue("Alice Johnson"), types.TextValue("alice@example.com"), types.IntegerValue(30), types.BooleanValue(true)},
			{types.IntegerValue(2), types.TextValue("Bob Smith"), types.TextValue("bob@example.com"), types.IntegerValue(25), types.BooleanValue(true)},
			{types.IntegerValue(3), types.TextValue("Charlie Brown"), types.NullValue(), types.IntegerValue(35), types.BooleanValue(false)},
		},
	}

	c.tables["products"] = &table{
		schema: types.Schema{
			Name: "products",
			Columns: []types.ColumnMetadata{
				{Name: "id", DataType: types.DataTypeInteger},
				{Name: "name", DataType: types.DataTypeText},
				{Name: "price", DataType: types.DataTypeFloat},
				{Name: "category", DataType: types.DataTypeText, Nullable: true},
			},
			PrimaryKey: []string{"id"},
			Indexes:    []types.Index{},
		},
		rows: []types.Row{
			{types.IntegerValue(1), types.TextValue("Laptop"), types.FloatValue(999.99), types.TextValue("Electronics")},
			{types.IntegerValue(2), types.TextValue("Coffee Mug"), types.FloatValue(12.50), types.TextValue("Kitchen")},
		},
	}
}

func copyRows(rows []types.Row) []types.Row {
	out := make([]types.Row, len(rows))
	for i, r := range rows {
		out[i] = append(types.Row(nil), r...)
	}
	return out
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
