package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nirv/nirv/internal/config"
	"github.com/nirv/nirv/internal/connector"
	"github.com/nirv/nirv/internal/connector/mock"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/internal/query/parser"
	"github.com/nirv/nirv/internal/query/planner"
	"github.com/nirv/nirv/pkg/types"
)

func newEngine(t *testing.T, cfg *config.Config) *Engine {
	t.Helper()
	e := New(cfg)
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	return e
}

func registerMock(t *testing.T, e *Engine, params ...string) *mock.Connector {
	t.Helper()
	c := mock.New(mock.WithConnectDelay(0))
	cfg := connector.NewInitConfig()
	for i := 0; i+1 < len(params); i += 2 {
		cfg = cfg.WithParam(params[i], params[i+1])
	}
	if err := e.RegisterConnector(context.Background(), "mock", c, cfg); err != nil {
		t.Fatalf("RegisterConnector: %v", err)
	}
	return c
}

func column(t *testing.T, r *types.QueryResult, name string) []types.Value {
	t.Helper()
	idx := r.ColumnIndex(name)
	if idx < 0 {
		t.Fatalf("column %q missing from %+v", name, r.Columns)
	}
	out := make([]types.Value, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row[idx]
	}
	return out
}

func names(t *testing.T, r *types.QueryResult, col string) []string {
	t.Helper()
	var out []string
	for _, v := range column(t, r, col) {
		out = append(out, v.Text())
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQuery_FilterKeepsSourceOrder(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	res, err := e.Query(context.Background(), "SELECT * FROM source('mock.users') WHERE age > 25")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.RowCount() != 2 {
		t.Fatalf("rows = %d, want 2", res.RowCount())
	}
	ages := column(t, res.QueryResult, "age")
	if ages[0].Int() != 30 || ages[1].Int() != 35 {
		t.Errorf("ages = %v, want [30 35]", ages)
	}
	if res.QueryID == "" || len(res.Fingerprint) != 16 {
		t.Errorf("query id %q, fingerprint %q", res.QueryID, res.Fingerprint)
	}
}

func TestQuery_OrderByDescWithLimit(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	res, err := e.Query(context.Background(), "SELECT * FROM source('mock.users') ORDER BY name DESC LIMIT 2")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := names(t, res.QueryResult, "name")
	want := []string{"Charlie Brown", "Bob Smith"}
	if !equalStrings(got, want) {
		t.Errorf("names = %v, want %v", got, want)
	}
}

func TestQuery_UnregisteredTypeListsAvailable(t *testing.T) {
	e := newEngine(t, nil)

	_, err := e.Query(context.Background(), "SELECT * FROM source('unregistered.table')")
	if !errors.Is(err, nerrors.ErrUnregisteredObjectType) {
		t.Fatalf("err = %v, want UNREGISTERED_OBJECT_TYPE", err)
	}
	if !strings.Contains(err.Error(), "Available types: []") {
		t.Errorf("message should list no types: %v", err)
	}

	registerMock(t, e)
	_, err = e.Query(context.Background(), "SELECT * FROM source('unregistered.table')")
	if !strings.Contains(err.Error(), "Available types: [mock]") {
		t.Errorf("message should list mock: %v", err)
	}
}

func TestQuery_MultiSourceRejected(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	sql := "SELECT * FROM source('mock.users') u, source('mock.products') p"
	if _, err := parser.Parse(sql); err != nil {
		t.Fatalf("two-source query should parse: %v", err)
	}

	_, err := e.Query(context.Background(), sql)
	if !errors.Is(err, nerrors.ErrCrossConnectorJoin) {
		t.Fatalf("err = %v, want CROSS_CONNECTOR_JOIN_UNSUPPORTED", err)
	}
	if _, err := e.Explain(context.Background(), sql); !errors.Is(err, nerrors.ErrCrossConnectorJoin) {
		t.Errorf("Explain err = %v", err)
	}
}

func TestQuery_ProjectionAndAlias(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	res, err := e.Query(context.Background(),
		"SELECT name AS n, age FROM source('mock.users') WHERE age >= 30 ORDER BY age DESC")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0].Name != "n" || res.Columns[1].Name != "age" {
		t.Fatalf("columns = %+v", res.Columns)
	}
	got := names(t, res.QueryResult, "n")
	if !equalStrings(got, []string{"Charlie Brown", "Alice Johnson"}) {
		t.Errorf("names = %v", got)
	}
}

func TestQuery_ParseErrorPassesThrough(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Query(context.Background(), "SELEC nonsense")
	if nerrors.GetCategory(err) != nerrors.ErrCategoryParse {
		t.Errorf("category = %q, want PARSE", nerrors.GetCategory(err))
	}
}

func TestQuery_Timeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Query.Timeout = 50 * time.Millisecond
	e := newEngine(t, cfg)
	registerMock(t, e, "query_delay_ms", "500")

	start := time.Now()
	_, err := e.Query(context.Background(), "SELECT * FROM source('mock.users')")
	if !errors.Is(err, nerrors.ErrTimeout) {
		t.Fatalf("err = %v, want TIMEOUT", err)
	}
	if !nerrors.IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("query should stop at the deadline, took %s", elapsed)
	}

	s, ok := e.stats.Source("mock")
	if !ok || s.Errors != 1 {
		t.Errorf("stats = %+v, want one error", s)
	}
}

func TestPlanRuleAppliedOnce(t *testing.T) {
	calls := 0
	e := New(nil, WithPlanRule(func(plan *planner.ExecutionPlan) *planner.ExecutionPlan {
		calls++
		return plan
	}))
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	registerMock(t, e)

	if _, err := e.Query(context.Background(), "SELECT * FROM source('mock.users')"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if calls != 1 {
		t.Errorf("rule ran %d times per query, want 1", calls)
	}

	calls = 0
	if _, err := e.Explain(context.Background(), "SELECT * FROM source('mock.users')"); err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if calls != 1 {
		t.Errorf("rule ran %d times per explain, want 1", calls)
	}
}

func TestExplain(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	out, err := e.Explain(context.Background(), "SELECT name FROM source('mock.users') ORDER BY name LIMIT 1")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	for _, want := range []string{"Projection", "Limit(1)", "Sort(name ASC)", "TableScan(mock.users"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan missing %q:\n%s", want, out)
		}
	}
}

func TestExecuteRaw_SkipsOrderingAndLimit(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	q, err := parser.Parse("SELECT * FROM source('mock.users') ORDER BY name DESC LIMIT 1")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	res, err := e.ExecuteRaw(context.Background(), []types.ConnectorQuery{types.NewConnectorQuery(types.ConnectorMock, q)})
	if err != nil {
		t.Fatalf("ExecuteRaw: %v", err)
	}
	if res.RowCount() != 3 {
		t.Fatalf("rows = %d, want connector output of 3", res.RowCount())
	}
	if got := names(t, res, "name")[0]; got != "Alice Johnson" {
		t.Errorf("first row = %q, want fixture order", got)
	}

	empty, err := e.ExecuteRaw(context.Background(), nil)
	if err != nil || !empty.IsEmpty() {
		t.Errorf("no envelopes should give an empty result, got %v, %v", empty, err)
	}
}

func TestRegisterConnector_Duplicate(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	second := mock.New(mock.WithConnectDelay(0))
	err := e.RegisterConnector(context.Background(), "mock", second, connector.NewInitConfig())
	if !errors.Is(err, nerrors.ErrRegistrationFailed) {
		t.Fatalf("err = %v, want REGISTRATION_FAILED", err)
	}
	if second.IsConnected() {
		t.Error("rejected connector should not be left connected")
	}
}

func TestRegisterConnector_ConnectFailure(t *testing.T) {
	e := newEngine(t, nil)
	c := mock.New()
	err := e.RegisterConnector(context.Background(), "mock", c,
		connector.NewInitConfig().WithParam("connect_delay_ms", "soon"))
	if !errors.Is(err, nerrors.ErrConnectionFailed) {
		t.Fatalf("err = %v, want CONNECTION_FAILED", err)
	}
	if len(e.ListAvailableTypes()) != 0 {
		t.Error("failed connector should not be registered")
	}
}

func TestUnregisterConnector(t *testing.T) {
	e := newEngine(t, nil)
	c := registerMock(t, e)

	if _, err := e.Query(context.Background(), "SELECT * FROM source('mock.users') WHERE age > 1"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if err := e.UnregisterConnector(context.Background(), "mock"); err != nil {
		t.Fatalf("UnregisterConnector: %v", err)
	}
	if c.IsConnected() {
		t.Error("connector should be disconnected")
	}
	if err := e.UnregisterConnector(context.Background(), "mock"); !errors.Is(err, nerrors.ErrUnregisteredObjectType) {
		t.Errorf("second unregister err = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := e.stats.Source("mock"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stats for an unregistered type should be dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDescribeSourcesAndSchema(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	sources := e.DescribeSources()
	if len(sources) != 1 {
		t.Fatalf("sources = %+v", sources)
	}
	if s := sources[0]; s.ObjectType != "mock" || s.ConnectorType != "mock" || !s.Connected {
		t.Errorf("source = %+v", s)
	}

	schema, err := e.Schema(context.Background(), "mock.users")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if len(schema.PrimaryKey) != 1 || schema.PrimaryKey[0] != "id" {
		t.Errorf("primary key = %v", schema.PrimaryKey)
	}

	if _, err := e.Schema(context.Background(), "mock."); !errors.Is(err, nerrors.ErrInvalidSourceFormat) {
		t.Errorf("empty identifier err = %v", err)
	}
	if _, err := e.Schema(context.Background(), "nope.users"); !errors.Is(err, nerrors.ErrUnregisteredObjectType) {
		t.Errorf("unregistered err = %v", err)
	}
}

func TestStats(t *testing.T) {
	e := newEngine(t, nil)
	registerMock(t, e)

	for i := 0; i < 3; i++ {
		if _, err := e.Query(context.Background(), "SELECT * FROM source('mock.users') WHERE age > 25"); err != nil {
			t.Fatalf("Query: %v", err)
		}
	}
	if _, err := e.Query(context.Background(), "SELECT * FROM source('mock.users') WHERE name LIKE 'A%'"); err != nil {
		t.Fatalf("Query: %v", err)
	}

	stats := e.Stats()
	if len(stats.Sources) != 1 {
		t.Fatalf("sources = %+v", stats.Sources)
	}
	if s := stats.Sources[0]; s.Queries != 4 || s.Rows != 7 || s.Errors != 0 {
		t.Errorf("source stats = %+v", s)
	}
	if len(stats.TopPredicates) != 2 || stats.TopPredicates[0].Column != "mock.age" {
		t.Errorf("top predicates = %+v", stats.TopPredicates)
	}
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "people.csv"), []byte("name,age\nAda,36\nLin,22\nGrace,45\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Connectors = []config.ConnectorConfig{
		{Name: "fixtures", Type: "mock", ObjectType: "mock", Params: map[string]string{"connect_delay_ms": "0"}},
		{Name: "csv", Type: "file", ObjectType: "files", Params: map[string]string{"base_path": dir}},
	}

	e, err := FromConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer e.Shutdown(context.Background())

	if got := e.ListAvailableTypes(); !equalStrings(got, []string{"files", "mock"}) {
		t.Errorf("types = %v", got)
	}

	res, err := e.Query(context.Background(), "SELECT name FROM source('files.people') WHERE age > 30 ORDER BY name")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := names(t, res.QueryResult, "name"); !equalStrings(got, []string{"Ada", "Grace"}) {
		t.Errorf("names = %v", got)
	}
}

func TestFromConfig_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Connectors = []config.ConnectorConfig{{Type: "oracle", ObjectType: "ora"}}
	_, err := FromConfig(context.Background(), cfg)
	if nerrors.GetCode(err) != nerrors.CodeInvalidConfig {
		t.Errorf("unknown type err = %v", err)
	}

	cfg.Connectors = []config.ConnectorConfig{{Type: "file", ObjectType: "files"}}
	_, err = FromConfig(context.Background(), cfg)
	if !errors.Is(err, nerrors.ErrConnectionFailed) {
		t.Errorf("file without base_path err = %v", err)
	}
}

func TestWithFactory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Connectors = []config.ConnectorConfig{{Type: "fixtures", ObjectType: "fx"}}

	built := 0
	e, err := FromConfig(context.Background(), cfg, WithFactory("fixtures", func(*slog.Logger) connector.Connector {
		built++
		return mock.New(mock.WithConnectDelay(0))
	}))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer e.Shutdown(context.Background())

	if built != 1 {
		t.Errorf("factory called %d times", built)
	}
	if !strings.Contains(strings.Join(e.ConnectorTypes(), ","), "fixtures") {
		t.Errorf("connector types = %v", e.ConnectorTypes())
	}
}
