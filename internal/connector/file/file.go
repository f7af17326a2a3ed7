// Package file implements a connector over CSV and JSON files held in
// object storage, either a local directory or an S3 bucket.
//
// A source identifier names one file, with or without its extension, or a
// glob over file names such as "sales_*.csv". Every file matched by a glob
// must have the same column names.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/internal/storage"
	"github.com/nirv/nirv/pkg/types"
)

// DefaultExtensions are the formats read when file_extensions is unset.
var DefaultExtensions = []string{"csv", "json"}

// Connector reads tabular files from object storage.
type Connector struct {
	mu         sync.RWMutex
	store      storage.ObjectStorage
	extensions []string
	connected  bool
	logger     *slog.Logger

	// openStorage builds the backing store from connection params. Tests
	// swap it to inject a store.
	openStorage func(ctx context.Context, cfg connector.InitConfig) (storage.ObjectStorage, error)
}

// Option configures a file Connector.
type Option func(*Connector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// WithStorage serves files from s instead of building a store from the
// connection parameters.
func WithStorage(s storage.ObjectStorage) Option {
	return func(c *Connector) {
		c.openStorage = func(context.Context, connector.InitConfig) (storage.ObjectStorage, error) {
			return s, nil
		}
	}
}

// New creates a disconnected file connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		extensions:  DefaultExtensions,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		openStorage: openStorage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the backing store. Parameters:
//
//	storage          local (default) or s3
//	base_path        directory for local storage, key prefix for s3
//	bucket           s3 bucket, required for s3
//	region, endpoint s3 client settings
//	file_extensions  comma-separated formats to read (default csv,json)
func (c *Connector) Connect(ctx context.Context, cfg connector.InitConfig) error {
	store, err := c.openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	extensions := DefaultExtensions
	if raw, ok := cfg.Param("file_extensions"); ok {
		extensions = nil
		for _, ext := range strings.Split(raw, ",") {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				extensions = append(extensions, ext)
			}
		}
	}

	c.mu.Lock()
	c.store = store
	c.extensions = extensions
	c.connected = true
	c.mu.Unlock()

	c.logger.Info("file connector connected",
		"storage", cfg.ParamOr("storage", "local"),
		"base_path", cfg.ParamOr("base_path", ""),
		"extensions", strings.Join(extensions, ","))
	return nil
}

func openStorage(ctx context.Context, cfg connector.InitConfig) (storage.ObjectStorage, error) {
	basePath, _ := cfg.Param("base_path")

	switch kind := cfg.ParamOr("storage", "local"); kind {
	case "local":
		if basePath == "" {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
				"base_path parameter is required", nil)
		}
		store, err := storage.NewLocalStorage(basePath)
		if err != nil {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
				fmt.Sprintf("Base path is not a usable directory: %s", basePath), err)
		}
		return store, nil

	case "s3":
		bucket, ok := cfg.Param("bucket")
		if !ok {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
				"bucket parameter is required for s3 storage", nil)
		}
		s3cfg := storage.DefaultS3Config()
		s3cfg.Region = cfg.ParamOr("region", s3cfg.Region)
		s3cfg.Endpoint = cfg.ParamOr("endpoint", "")
		s3cfg.UsePathStyle = s3cfg.Endpoint != ""
		s3cfg.Prefix = basePath
		store, err := storage.NewS3Storage(ctx, bucket, s3cfg)
		if err != nil {
			return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "failed to open S3 storage", err)
		}
		return store, nil

	default:
		return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
			fmt.Sprintf("unknown storage %q", kind), nil)
	}
}

// ExecuteQuery loads the files named by the first source and filters
// them with the query predicates. The "limit" connection parameter is
// honored; ordering and projection are left to the executor.
func (c *Connector) ExecuteQuery(ctx context.Context, q types.ConnectorQuery) (*types.QueryResult, error) {
	start := time.Now()

	store, extensions, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	if q.Query == nil || len(q.Query.Sources) == 0 {
		return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			"No data source specified in query", nil)
	}
	if q.Query.Operation != types.OperationSelect {
		return nil, nerrors.NewConnectorError(nerrors.CodeUnsupportedOperation,
			fmt.Sprintf("Operation %s not supported by file connector", q.Query.Operation), nil)
	}

	identifier := q.Query.Sources[0].Identifier
	keys, err := resolve(ctx, store, extensions, identifier)
	if err != nil {
		return nil, err
	}

	var columns []types.ColumnMetadata
	rows := []types.Row{}
	for i, key := range keys {
		t, err := load(ctx, store, key)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			columns = t.columns
		} else if !sameColumns(columns, t.columns) {
			return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
				fmt.Sprintf("Schema mismatch between files matching '%s': %s differs from %s", identifier, key, keys[0]), nil)
		}
		rows = append(rows, connector.FilterRows(t.columns, t.rows, q.Query.Predicates)...)
	}

	rows = connector.ApplyLimit(rows, q.ConnectionParams)
	c.logger.Debug("files scanned", "identifier", identifier, "files", len(keys), "rows", len(rows))
	return &types.QueryResult{
		Columns:       columns,
		Rows:          rows,
		ExecutionTime: time.Since(start),
	}, nil
}

// GetSchema describes the first file matching name.
func (c *Connector) GetSchema(ctx context.Context, name string) (*types.Schema, error) {
	store, extensions, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	keys, err := resolve(ctx, store, extensions, name)
	if err != nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeSchemaRetrievalFailed,
			fmt.Sprintf("No files found for: %s", name), err)
	}
	t, err := load(ctx, store, keys[0])
	if err != nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeSchemaRetrievalFailed,
			fmt.Sprintf("Failed to read %s", keys[0]), err)
	}
	return &types.Schema{Name: name, Columns: t.columns, Indexes: []types.Index{}}, nil
}

// Disconnect drops the store.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.store = nil
	c.connected = false
	c.mu.Unlock()
	return nil
}

func (c *Connector) Type() types.ConnectorType  { return types.ConnectorFile }
func (c *Connector) SupportsTransactions() bool { return false }

func (c *Connector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Connector) Capabilities() connector.Capabilities {
	caps := connector.DefaultCapabilities()
	caps.SupportsAggregations = true
	return caps
}

func (c *Connector) snapshot() (storage.ObjectStorage, []string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed,
			"File connector is not connected", nil)
	}
	return c.store, c.extensions, nil
}

// resolve maps an identifier to object keys. A name without a supported
// extension is tried with each extension in order, plain before snappy.
func resolve(ctx context.Context, store storage.ObjectStorage, extensions []string, identifier string) ([]string, error) {
	identifier = strings.TrimPrefix(path.Clean("/"+identifier), "/")

	if storage.IsGlob(identifier) {
		matches, err := storage.Glob(ctx, store, identifier)
		if err != nil {
			return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
				fmt.Sprintf("Pattern matching failed: %s", identifier), err)
		}
		var keys []string
		for _, key := range matches {
			if format, _ := formatOf(key); supported(extensions, format) {
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
				fmt.Sprintf("No files found matching pattern: %s", identifier), nil)
		}
		return keys, nil
	}

	candidates := []string{identifier}
	if format, _ := formatOf(identifier); format == "" || !supported(extensions, format) {
		for _, ext := range extensions {
			candidates = append(candidates, identifier+"."+ext)
		}
		for _, ext := range extensions {
			candidates = append(candidates, identifier+"."+ext+snappySuffix)
		}
	}

	for _, key := range candidates {
		ok, err := store.Exists(ctx, key)
		if err != nil {
			return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
				fmt.Sprintf("Failed to stat %s", key), err)
		}
		if !ok {
			continue
		}
		format, _ := formatOf(key)
		if !supported(extensions, format) {
			return nil, nerrors.NewConnectorError(nerrors.CodeUnsupportedOperation,
				fmt.Sprintf("Unsupported file extension: %s", format), nil)
		}
		return []string{key}, nil
	}
	return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
		fmt.Sprintf("File not found: %s", identifier), nil)
}

func load(ctx context.Context, store storage.ObjectStorage, key string) (*table, error) {
	data, err := storage.ReadAll(ctx, store, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nerrors.NewConnectorError(nerrors.CodeTimeout, "Query deadline exceeded", err)
		}
		return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			fmt.Sprintf("Failed to read file: %s", key), err)
	}
	format, compressed := formatOf(key)
	t, err := decode(data, format, compressed)
	if err != nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			fmt.Sprintf("Failed to parse %s", key), err)
	}
	return t, nil
}

func supported(extensions []string, format string) bool {
	for _, ext := range extensions {
		if ext == format {
			return true
		}
	}
	return false
}

func sameColumns(a, b []types.ColumnMetadata) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}
