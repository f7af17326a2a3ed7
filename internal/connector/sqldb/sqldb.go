// Package sqldb implements connectors for relational databases reached
// through database/sql: PostgreSQL via pgx and SQLite via go-sqlite3.
//
// The identifier of a source is a table name, optionally schema-qualified.
// Predicates are pushed down as bind parameters; ordering and projection
// are applied by the executor.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// Connector serves tables from one database.
type Connector struct {
	dialect Dialect
	logger  *slog.Logger

	mu       sync.RWMutex
	db       *sql.DB
	injected *sql.DB
	maxConns uint32
}

// Option configures a Connector.
type Option func(*Connector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithDB makes Connect adopt db instead of opening a new handle.
func WithDB(db *sql.DB) Option {
	return func(c *Connector) {
		c.injected = db
	}
}

// New creates a disconnected connector for dialect d.
func New(d Dialect, opts ...Option) *Connector {
	c := &Connector{
		dialect:  d,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxConns: connector.DefaultMaxConnections,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewPostgres creates a PostgreSQL connector.
func NewPostgres(opts ...Option) *Connector { return New(Postgres, opts...) }

// NewSQLite creates a SQLite connector.
func NewSQLite(opts ...Option) *Connector { return New(SQLite, opts...) }

// Connect opens the database and pings it within the configured timeout.
//
// PostgreSQL takes either "dsn" or host, port, database (or dbname), user,
// password and sslmode. SQLite takes "path" and opens it read-only unless
// "read_only" is "false".
func (c *Connector) Connect(ctx context.Context, cfg connector.InitConfig) error {
	db := c.injected
	if db == nil {
		var err error
		if db, err = c.open(cfg); err != nil {
			return err
		}
	}

	maxConns := cfg.MaxConnectionsOrDefault()
	db.SetMaxOpenConns(int(maxConns))
	db.SetMaxIdleConns(int(maxConns))

	pingCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutOrDefault())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if c.injected == nil {
			_ = db.Close()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nerrors.NewConnectorError(nerrors.CodeTimeout, "Connection timeout", err)
		}
		return nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
			fmt.Sprintf("failed to ping %s", c.dialect.Name), err)
	}

	c.mu.Lock()
	c.db = db
	c.maxConns = maxConns
	c.mu.Unlock()

	c.logger.Info("database connected", "dialect", c.dialect.Name, "max_connections", maxConns)
	return nil
}

func (c *Connector) open(cfg connector.InitConfig) (*sql.DB, error) {
	switch c.dialect.Name {
	case Postgres.Name:
		pgCfg, err := pgx.ParseConfig(postgresDSN(cfg))
		if err != nil {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "invalid postgres connection parameters", err)
		}
		return stdlib.OpenDB(*pgCfg), nil

	case SQLite.Name:
		path, ok := cfg.Param("path")
		if !ok {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "path parameter is required", nil)
		}
		dsn := path
		if cfg.ParamOr("read_only", "true") != "false" {
			dsn = sqliteURI(path, map[string]string{"mode": "ro", "_query_only": "true"})
		}
		db, err := sql.Open(c.dialect.DriverName, dsn)
		if err != nil {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "failed to open sqlite database", err)
		}
		return db, nil

	default:
		return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
			fmt.Sprintf("unsupported dialect %q", c.dialect.Name), nil)
	}
}

// postgresDSN builds a key=value connection string unless "dsn" is given.
func postgresDSN(cfg connector.InitConfig) string {
	if dsn, ok := cfg.Param("dsn"); ok {
		return dsn
	}
	database := cfg.ParamOr("database", cfg.ParamOr("dbname", "postgres"))
	parts := []string{
		"host=" + cfg.ParamOr("host", "localhost"),
		"port=" + cfg.ParamOr("port", "5432"),
		"dbname=" + database,
		"user=" + cfg.ParamOr("user", "postgres"),
		"sslmode=" + cfg.ParamOr("sslmode", "disable"),
	}
	if pw, ok := cfg.Param("password"); ok {
		parts = append(parts, "password="+quoteDSNValue(pw))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// ExecuteQuery runs the SELECT built from q.
func (c *Connector) ExecuteQuery(ctx context.Context, q types.ConnectorQuery) (*types.QueryResult, error) {
	start := time.Now()

	db, err := c.handle()
	if err != nil {
		return nil, err
	}
	stmt, args, err := BuildSelect(c.dialect, q.Query, q.ConnectionParams)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, c.queryError(ctx, stmt, err)
	}
	defer rows.Close()

	columns, out, err := scanRows(rows)
	if err != nil {
		return nil, c.queryError(ctx, stmt, err)
	}

	c.logger.Debug("sql executed", "dialect", c.dialect.Name, "sql", stmt, "rows", len(out))
	return &types.QueryResult{
		Columns:       columns,
		Rows:          out,
		ExecutionTime: time.Since(start),
	}, nil
}

func (c *Connector) queryError(ctx context.Context, stmt string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nerrors.NewConnectorError(nerrors.CodeTimeout, "Query deadline exceeded", err)
	}
	return nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
		fmt.Sprintf("Query execution failed: %s", stmt), err)
}

// GetSchema describes a table. A "schema.table" name selects the schema
// on PostgreSQL.
func (c *Connector) GetSchema(ctx context.Context, name string) (*types.Schema, error) {
	db, err := c.handle()
	if err != nil {
		return nil, err
	}

	var schema *types.Schema
	switch c.dialect.Name {
	case Postgres.Name:
		ns, table := c.dialect.splitQualified(name)
		schema, err = introspectPostgres(ctx, db, ns, table)
	default:
		schema, err = introspectSQLite(ctx, db, name)
	}
	if err != nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeSchemaRetrievalFailed,
			fmt.Sprintf("Failed to describe '%s'", name), err)
	}
	if schema == nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeSchemaRetrievalFailed,
			fmt.Sprintf("Table '%s' not found", name), nil)
	}
	schema.Name = name
	return schema, nil
}

// Disconnect closes the database handle.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func (c *Connector) Type() types.ConnectorType  { return c.dialect.ConnectorType }
func (c *Connector) SupportsTransactions() bool { return true }

func (c *Connector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db != nil
}

func (c *Connector) Capabilities() connector.Capabilities {
	c.mu.RLock()
	maxConns := c.maxConns
	c.mu.RUnlock()
	return connector.Capabilities{
		SupportsJoins:               true,
		SupportsAggregations:        true,
		SupportsSubqueries:          true,
		SupportsTransactions:        true,
		SupportsSchemaIntrospection: true,
		MaxConcurrentQueries:        &maxConns,
	}
}

// Dialect returns the connector's dialect.
func (c *Connector) Dialect() Dialect { return c.dialect }

func (c *Connector) handle() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "Not connected", nil)
	}
	return c.db, nil
}

// sqliteURI builds a file: URI so SQLite honors options such as mode=ro.
func sqliteURI(path string, opts map[string]string) string {
	v := url.Values{}
	for k, val := range opts {
		v.Set(k, val)
	}
	if len(v) == 0 {
		return "file:" + path
	}
	return "file:" + path + "?" + v.Encode()
}
