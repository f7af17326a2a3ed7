// Package rest implements a connector over JSON HTTP APIs.
//
// Each queryable identifier is mapped to an endpoint path through
// "endpoint.<identifier>" parameters. Responses are decoded into rows and
// predicates are applied locally.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nirv/nirv/internal/cache"
	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

const (
	// DefaultAPIKeyHeader carries the key when api_key_header is unset.
	DefaultAPIKeyHeader = "X-API-Key"

	// DefaultRateBurst is the limiter burst when rate_limit_burst is unset.
	DefaultRateBurst = 10

	// DefaultCacheTTL applies when cache_ttl_seconds is unset. Zero
	// disables the response cache.
	DefaultCacheTTL time.Duration = 0

	// DefaultCacheBytes bounds the response cache.
	DefaultCacheBytes = 64 << 20

	endpointPrefix = "endpoint."
)

// AuthType selects how requests are authenticated.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthAPIKey AuthType = "api_key"
	AuthBasic  AuthType = "basic"
)

// Endpoint maps an identifier to a request.
type Endpoint struct {
	Path     string
	DataPath string
	Query    url.Values
}

type auth struct {
	kind     AuthType
	token    string
	header   string
	key      string
	username string
	password string
}

func (a auth) apply(req *http.Request) {
	switch a.kind {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+a.token)
	case AuthAPIKey:
		req.Header.Set(a.header, a.key)
	case AuthBasic:
		req.SetBasicAuth(a.username, a.password)
	}
}

// state is everything Connect establishes.
type state struct {
	baseURL   *url.URL
	auth      auth
	endpoints map[string]Endpoint
	limiter   *rate.Limiter
	cache     *cache.ResponseCache
}

// Connector serves endpoints of one HTTP API.
type Connector struct {
	client *http.Client
	logger *slog.Logger

	mu sync.RWMutex
	st *state
}

// Option configures a Connector.
type Option func(*Connector)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) {
		c.logger = logger
	}
}

// New creates a disconnected REST connector.
func New(opts ...Option) *Connector {
	c := &Connector{
		client: &http.Client{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect validates parameters and prepares the limiter and cache. No
// request is made.
func (c *Connector) Connect(ctx context.Context, cfg connector.InitConfig) error {
	raw, ok := cfg.Param("base_url")
	if !ok {
		return connectError("base_url parameter is required", nil)
	}
	base, err := url.Parse(raw)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return connectError(fmt.Sprintf("invalid base_url %q", raw), err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	a, err := parseAuth(cfg)
	if err != nil {
		return err
	}

	st := &state{
		baseURL:   base,
		auth:      a,
		endpoints: parseEndpoints(cfg.Params),
	}

	if v, ok := cfg.Param("rate_limit"); ok {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return connectError(fmt.Sprintf("invalid rate_limit %q", v), err)
		}
		burst, set, err := cfg.IntParam("rate_limit_burst")
		if !set {
			burst = DefaultRateBurst
		}
		if err != nil || burst <= 0 {
			return connectError("invalid rate_limit_burst", err)
		}
		st.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	ttl := DefaultCacheTTL
	if v, ok := cfg.Param("cache_ttl_seconds"); ok {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			return connectError(fmt.Sprintf("invalid cache_ttl_seconds %q", v), err)
		}
		ttl = time.Duration(secs) * time.Second
	}
	if ttl > 0 {
		st.cache, err = cache.New(DefaultCacheBytes, ttl, cache.WithLogger(c.logger))
		if err != nil {
			return connectError("failed to create response cache", err)
		}
	}

	c.mu.Lock()
	prev := c.st
	c.st = st
	c.mu.Unlock()
	if prev != nil && prev.cache != nil {
		prev.cache.Close()
	}

	c.logger.Info("rest connector ready",
		"base_url", base.String(), "auth", string(a.kind), "endpoints", len(st.endpoints))
	return nil
}

func connectError(msg string, cause error) error {
	return nerrors.NewConnectorError(nerrors.CodeConnectionFailed, msg, cause)
}

func parseAuth(cfg connector.InitConfig) (auth, error) {
	a := auth{kind: AuthType(strings.ToLower(cfg.ParamOr("auth_type", string(AuthNone))))}
	var ok bool
	switch a.kind {
	case AuthNone:
	case AuthBearer:
		if a.token, ok = cfg.Param("token"); !ok {
			return a, connectError("token parameter is required for bearer auth", nil)
		}
	case AuthAPIKey:
		if a.key, ok = cfg.Param("api_key"); !ok {
			return a, connectError("api_key parameter is required for api_key auth", nil)
		}
		a.header = cfg.ParamOr("api_key_header", DefaultAPIKeyHeader)
	case AuthBasic:
		if a.username, ok = cfg.Param("username"); !ok {
			return a, connectError("username parameter is required for basic auth", nil)
		}
		if a.password, ok = cfg.Param("password"); !ok {
			return a, connectError("password parameter is required for basic auth", nil)
		}
	default:
		return a, connectError(fmt.Sprintf("unsupported auth_type %q", a.kind), nil)
	}
	return a, nil
}

// parseEndpoints collects "endpoint.<id>" paths with their optional
// ".data_path" and ".query" settings.
func parseEndpoints(params map[string]string) map[string]Endpoint {
	endpoints := make(map[string]Endpoint)
	for key, value := range params {
		if !strings.HasPrefix(key, endpointPrefix) {
			continue
		}
		id := strings.TrimPrefix(key, endpointPrefix)
		if strings.HasSuffix(id, ".data_path") || strings.HasSuffix(id, ".query") {
			continue
		}
		ep := Endpoint{Path: strings.TrimPrefix(value, "/"), DataPath: params[key+".data_path"]}
		if q, ok := params[key+".query"]; ok {
			if values, err := url.ParseQuery(q); err == nil {
				ep.Query = values
			}
		}
		endpoints[id] = ep
	}
	return endpoints
}

func (c *Connector) snapshot() (*state, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.st == nil {
		return nil, nerrors.NewConnectorError(nerrors.CodeConnectionFailed, "Not connected", nil)
	}
	return c.st, nil
}

// ExecuteQuery fetches the mapped endpoint and filters its rows.
func (c *Connector) ExecuteQuery(ctx context.Context, q types.ConnectorQuery) (*types.QueryResult, error) {
	start := time.Now()

	st, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	if q.Query == nil || len(q.Query.Sources) == 0 {
		return nil, nerrors.NewConnectorError(nerrors.CodeQueryExecutionFailed,
			"No data source specified in query", nil)
	}
	if q.Query.Operation != types.OperationSelect {
		return nil, nerrors.NewConnectorError(nerrors.CodeUnsupportedOperation,
			fmt.Sprintf("Operation %s not supported by REST connector", q.Query.Operation), nil)
	}

	id := q.Query.Sources[0].Identifier
	columns, rows, err := c.load(ctx, st, id, nerrors.CodeQueryExecutionFailed)
	if err != nil {
		return nil, err
	}

	rows = connector.FilterRows(columns, rows, q.Query.Predicates)
	rows = connector.ApplyLimit(rows, q.ConnectionParams)

	c.logger.Debug("rest query executed", "endpoint", id, "rows", len(rows))
	return &types.QueryResult{
		Columns:       columns,
		Rows:          rows,
		ExecutionTime: time.Since(start),
	}, nil
}

// GetSchema infers a schema from the endpoint's current data.
func (c *Connector) GetSchema(ctx context.Context, name string) (*types.Schema, error) {
	st, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	columns, _, err := c.load(ctx, st, name, nerrors.CodeSchemaRetrievalFailed)
	if err != nil {
		return nil, err
	}
	return &types.Schema{Name: name, Columns: columns, Indexes: []types.Index{}}, nil
}

// load fetches and decodes the endpoint mapped to id. failCode labels
// failures that are not authentication or timeout errors.
func (c *Connector) load(ctx context.Context, st *state, id, failCode string) ([]types.ColumnMetadata, []types.Row, error) {
	ep, ok := st.endpoints[id]
	if !ok {
		return nil, nil, nerrors.NewConnectorError(failCode,
			fmt.Sprintf("No endpoint mapping found for '%s'", id), nil)
	}

	target := st.baseURL.ResolveReference(&url.URL{Path: ep.Path})
	if len(ep.Query) > 0 {
		target.RawQuery = ep.Query.Encode()
	}

	body, err := c.fetch(ctx, st, target.String(), failCode)
	if err != nil {
		return nil, nil, err
	}

	items, err := extractItems(body, ep.DataPath)
	if err != nil {
		return nil, nil, nerrors.NewConnectorError(failCode, err.Error(), nil)
	}
	columns, rows, err := connector.JSONObjects(items)
	if err != nil {
		return nil, nil, nerrors.NewConnectorError(failCode,
			fmt.Sprintf("Failed to decode response from '%s'", id), err)
	}
	return columns, rows, nil
}

func (c *Connector) fetch(ctx context.Context, st *state, target, failCode string) ([]byte, error) {
	if st.cache != nil {
		if body, ok := st.cache.Get(target); ok {
			return body, nil
		}
	}

	if st.limiter != nil {
		if err := st.limiter.Wait(ctx); err != nil {
			// Wait fails early when the next token lies past the deadline.
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				return nil, nerrors.NewConnectorError(nerrors.CodeTimeout, "Rate limit wait exceeds deadline", err)
			}
			return nil, c.requestError(ctx, failCode, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nerrors.NewConnectorError(failCode, "Failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")
	st.auth.apply(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.requestError(ctx, failCode, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nerrors.NewConnectorError(nerrors.CodeAuthenticationFailed,
			fmt.Sprintf("HTTP request rejected with status: %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, nerrors.NewConnectorError(failCode,
			fmt.Sprintf("HTTP request failed with status: %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.requestError(ctx, failCode, err)
	}
	if st.cache != nil {
		if err := st.cache.Put(target, body); err != nil {
			c.logger.Warn("response not cached", "url", target, "error", err)
		}
	}
	return body, nil
}

func (c *Connector) requestError(ctx context.Context, failCode string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nerrors.NewConnectorError(nerrors.CodeTimeout, "Request deadline exceeded", err)
	}
	return nerrors.NewConnectorError(failCode, "HTTP request failed", err)
}

// extractItems walks a dotted dataPath and returns the array found there.
// Without a path the body must be an array, or a single object which is
// treated as one row.
func extractItems(body []byte, dataPath string) ([]json.RawMessage, error) {
	current := json.RawMessage(body)
	if dataPath != "" {
		for _, part := range strings.Split(dataPath, ".") {
			if part == "" {
				continue
			}
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(current, &obj); err != nil {
				return nil, fmt.Errorf("data path '%s' not found in response", dataPath)
			}
			next, ok := obj[part]
			if !ok {
				return nil, fmt.Errorf("data path '%s' not found in response", dataPath)
			}
			current = next
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(current, &items); err == nil {
		return items, nil
	}
	if dataPath != "" {
		return nil, fmt.Errorf("data path '%s' does not point to an array", dataPath)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(current, &obj); err != nil {
		return nil, fmt.Errorf("response is not an array or object")
	}
	return []json.RawMessage{current}, nil
}

// Disconnect drops the connection state and cached responses.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	st := c.st
	c.st = nil
	c.mu.Unlock()
	if st != nil && st.cache != nil {
		st.cache.Close()
	}
	return nil
}

func (c *Connector) Type() types.ConnectorType  { return types.ConnectorREST }
func (c *Connector) SupportsTransactions() bool { return false }

func (c *Connector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.st != nil
}

func (c *Connector) Capabilities() connector.Capabilities {
	caps := connector.DefaultCapabilities()
	caps.SupportsAggregations = true
	maxQueries := uint32(5)
	caps.MaxConcurrentQueries = &maxQueries
	return caps
}

// CacheStats reports response cache counters; ok is false when caching
// is disabled or the connector is not connected.
func (c *Connector) CacheStats() (stats cache.Stats, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.st == nil || c.st.cache == nil {
		return cache.Stats{}, false
	}
	return c.st.cache.Stats(), true
}
