package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

const usersBody = `[
	{"id": 1, "name": "Alice", "score": 9.5, "active": true, "tags": ["admin"]},
	{"id": 2, "name": "Bob", "score": 7, "active": false, "tags": []},
	{"id": 3, "name": "Charlie", "score": null, "active": true}
]`

const ordersBody = `{"meta": {"page": 1}, "data": {"orders": [
	{"order_id": "A-1", "total": 120.5},
	{"order_id": "A-2", "total": 15}
]}}`

type apiServer struct {
	*httptest.Server
	hits atomic.Int64
}

func newAPIServer(t *testing.T) *apiServer {
	t.Helper()
	s := &apiServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(usersBody))
	})
	mux.HandleFunc("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.URL.Query().Get("status") != "open" {
			http.Error(w, "missing status", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(ordersBody))
	})
	mux.HandleFunc("/api/v1/secure", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"ok": true}]`))
	})
	mux.HandleFunc("/api/v1/keyed", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "k1" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"single": "object"}`))
	})
	mux.HandleFunc("/api/v1/basic", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ann" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v1/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/api/v1/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		_, _ = w.Write([]byte(`[]`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func baseConfig(s *apiServer) connector.InitConfig {
	return connector.NewInitConfig().
		WithParam("base_url", s.URL+"/api/v1").
		WithParam("endpoint.users", "/users").
		WithParam("endpoint.orders", "orders").
		WithParam("endpoint.orders.data_path", "data.orders").
		WithParam("endpoint.orders.query", "status=open").
		WithParam("endpoint.secure", "secure").
		WithParam("endpoint.keyed", "keyed").
		WithParam("endpoint.basic", "basic").
		WithParam("endpoint.broken", "broken").
		WithParam("endpoint.slow", "slow")
}

func connect(t *testing.T, cfg connector.InitConfig) *Connector {
	t.Helper()
	c := New()
	require.NoError(t, c.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func selectFrom(id string, preds ...types.Predicate) types.ConnectorQuery {
	q := types.NewQuery(types.OperationSelect)
	q.Sources = []types.DataSource{{ObjectType: "api", Identifier: id}}
	q.Predicates = preds
	return types.NewConnectorQuery(types.ConnectorREST, q)
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing base_url", map[string]string{}},
		{"bad scheme", map[string]string{"base_url": "ftp://example.com"}},
		{"bearer without token", map[string]string{"base_url": "http://x", "auth_type": "bearer"}},
		{"api_key without key", map[string]string{"base_url": "http://x", "auth_type": "api_key"}},
		{"basic without password", map[string]string{"base_url": "http://x", "auth_type": "basic", "username": "u"}},
		{"unknown auth", map[string]string{"base_url": "http://x", "auth_type": "oauth"}},
		{"bad rate", map[string]string{"base_url": "http://x", "rate_limit": "fast"}},
		{"bad ttl", map[string]string{"base_url": "http://x", "cache_ttl_seconds": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := connector.NewInitConfig()
			for k, v := range tt.params {
				cfg = cfg.WithParam(k, v)
			}
			c := New()
			err := c.Connect(context.Background(), cfg)
			require.Error(t, err)
			assert.Equal(t, nerrors.CodeConnectionFailed, nerrors.GetCode(err))
			assert.False(t, c.IsConnected())
		})
	}
}

func TestExecuteQuery(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s))

	res, err := c.ExecuteQuery(context.Background(), selectFrom("users"))
	require.NoError(t, err)

	names := make([]string, len(res.Columns))
	for i, col := range res.Columns {
		names[i] = col.Name
	}
	assert.Equal(t, []string{"id", "name", "score", "active", "tags"}, names)
	assert.Equal(t, types.DataTypeInteger, res.Columns[0].DataType)
	assert.Equal(t, types.DataTypeFloat, res.Columns[2].DataType)
	assert.Equal(t, types.DataTypeBoolean, res.Columns[3].DataType)
	assert.Equal(t, types.DataTypeJSON, res.Columns[4].DataType)

	require.Equal(t, 3, res.RowCount())
	assert.Equal(t, types.JSONValue(`["admin"]`), res.Rows[0][4])
	assert.Equal(t, types.IntegerValue(7), res.Rows[1][2])
	assert.True(t, res.Rows[2][2].IsNull())
	assert.True(t, res.Rows[2][4].IsNull())
}

func TestExecuteQuery_Predicates(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s))

	res, err := c.ExecuteQuery(context.Background(), selectFrom("users",
		types.Predicate{Column: "active", Operator: types.OpEqual, Value: types.BooleanPredicate(true)},
		types.Predicate{Column: "name", Operator: types.OpLike, Value: types.StringPredicate("%li%")},
	))
	require.NoError(t, err)
	require.Equal(t, 2, res.RowCount())
	assert.Equal(t, types.TextValue("Alice"), res.Rows[0][1])
	assert.Equal(t, types.TextValue("Charlie"), res.Rows[1][1])

	q := selectFrom("users")
	q.ConnectionParams["limit"] = "1"
	res, err = c.ExecuteQuery(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount())
}

func TestExecuteQuery_DataPathAndQuery(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s))

	res, err := c.ExecuteQuery(context.Background(), selectFrom("orders",
		types.Predicate{Column: "total", Operator: types.OpGreaterThan, Value: types.IntegerPredicate(100)}))
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount())
	assert.Equal(t, types.TextValue("A-1"), res.Rows[0][0])
}

func TestExecuteQuery_Auth(t *testing.T) {
	s := newAPIServer(t)

	t.Run("bearer accepted", func(t *testing.T) {
		c := connect(t, baseConfig(s).WithParam("auth_type", "bearer").WithParam("token", "s3cret"))
		res, err := c.ExecuteQuery(context.Background(), selectFrom("secure"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.RowCount())
	})

	t.Run("bearer rejected", func(t *testing.T) {
		c := connect(t, baseConfig(s).WithParam("auth_type", "bearer").WithParam("token", "wrong"))
		_, err := c.ExecuteQuery(context.Background(), selectFrom("secure"))
		assert.Equal(t, nerrors.CodeAuthenticationFailed, nerrors.GetCode(err))
		assert.False(t, nerrors.IsRetryable(err))
	})

	t.Run("api key header", func(t *testing.T) {
		c := connect(t, baseConfig(s).
			WithParam("auth_type", "api_key").
			WithParam("api_key", "k1").
			WithParam("api_key_header", "X-Token"))
		res, err := c.ExecuteQuery(context.Background(), selectFrom("keyed"))
		require.NoError(t, err)
		require.Equal(t, 1, res.RowCount())
		assert.Equal(t, types.TextValue("object"), res.Rows[0][0])
	})

	t.Run("forbidden", func(t *testing.T) {
		c := connect(t, baseConfig(s))
		_, err := c.ExecuteQuery(context.Background(), selectFrom("keyed"))
		assert.Equal(t, nerrors.CodeAuthenticationFailed, nerrors.GetCode(err))
	})

	t.Run("basic", func(t *testing.T) {
		c := connect(t, baseConfig(s).
			WithParam("auth_type", "basic").
			WithParam("username", "ann").
			WithParam("password", "pw"))
		res, err := c.ExecuteQuery(context.Background(), selectFrom("basic"))
		require.NoError(t, err)
		assert.True(t, res.IsEmpty())
	})
}

func TestExecuteQuery_Errors(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s))
	ctx := context.Background()

	_, err := c.ExecuteQuery(ctx, selectFrom("unmapped"))
	assert.Equal(t, nerrors.CodeQueryExecutionFailed, nerrors.GetCode(err))
	assert.Contains(t, err.Error(), "No endpoint mapping found for 'unmapped'")

	_, err = c.ExecuteQuery(ctx, selectFrom("broken"))
	assert.Equal(t, nerrors.CodeQueryExecutionFailed, nerrors.GetCode(err))
	assert.Contains(t, err.Error(), "status: 500")

	del := selectFrom("users")
	del.Query.Operation = types.OperationDelete
	_, err = c.ExecuteQuery(ctx, del)
	assert.Equal(t, nerrors.CodeUnsupportedOperation, nerrors.GetCode(err))

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.ExecuteQuery(timeoutCtx, selectFrom("slow"))
	assert.Equal(t, nerrors.CodeTimeout, nerrors.GetCode(err))

	require.NoError(t, c.Disconnect(ctx))
	_, err = c.ExecuteQuery(ctx, selectFrom("users"))
	assert.Equal(t, nerrors.CodeConnectionFailed, nerrors.GetCode(err))
}

func TestResponseCaching(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s).WithParam("cache_ttl_seconds", "60"))

	for i := 0; i < 3; i++ {
		_, err := c.ExecuteQuery(context.Background(), selectFrom("users"))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), s.hits.Load())

	stats, ok := c.CacheStats()
	require.True(t, ok)
	assert.Equal(t, int64(2), stats.Hits)

	uncached := connect(t, baseConfig(s))
	for i := 0; i < 2; i++ {
		_, err := uncached.ExecuteQuery(context.Background(), selectFrom("users"))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), s.hits.Load())
	_, ok = uncached.CacheStats()
	assert.False(t, ok)
}

func TestRateLimit(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s).
		WithParam("rate_limit", "0.5").
		WithParam("rate_limit_burst", "1"))

	_, err := c.ExecuteQuery(context.Background(), selectFrom("users"))
	require.NoError(t, err)

	// The next token is two seconds away, beyond this deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.ExecuteQuery(ctx, selectFrom("users"))
	assert.Equal(t, nerrors.CodeTimeout, nerrors.GetCode(err))
	assert.Equal(t, int64(1), s.hits.Load())
}

func TestGetSchema(t *testing.T) {
	s := newAPIServer(t)
	c := connect(t, baseConfig(s))

	schema, err := c.GetSchema(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", schema.Name)
	require.Len(t, schema.Columns, 2)
	assert.Equal(t, "order_id", schema.Columns[0].Name)
	assert.Equal(t, types.DataTypeFloat, schema.Columns[1].DataType)

	_, err = c.GetSchema(context.Background(), "unmapped")
	assert.Equal(t, nerrors.CodeSchemaRetrievalFailed, nerrors.GetCode(err))
}

func TestExtractItems(t *testing.T) {
	items, err := extractItems([]byte(`{"a": {"b": [1, 2]}}`), "a.b")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = extractItems([]byte(`{"a": {"b": 3}}`), "a.b")
	assert.ErrorContains(t, err, "does not point to an array")

	_, err = extractItems([]byte(`{"a": 1}`), "x")
	assert.ErrorContains(t, err, "not found")

	_, err = extractItems([]byte(`"text"`), "")
	assert.Error(t, err)
}

func TestCapabilities(t *testing.T) {
	c := New()
	caps := c.Capabilities()
	assert.True(t, caps.SupportsAggregations)
	assert.False(t, caps.SupportsJoins)
	require.NotNil(t, caps.MaxConcurrentQueries)
	assert.Equal(t, uint32(5), *caps.MaxConcurrentQueries)
	assert.Equal(t, types.ConnectorREST, c.Type())
}
