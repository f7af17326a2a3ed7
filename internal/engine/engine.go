// Package engine wires the parser, planner, dispatcher and executor into
// the single query path every front-end uses.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nirv/nirv/internal/config"
	"github.com/nirv/nirv/internal/connector"
	"github.com/nirv/nirv/internal/dispatcher"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/internal/observability"
	"github.com/nirv/nirv/internal/query/executor"
	"github.com/nirv/nirv/internal/query/parser"
	"github.com/nirv/nirv/internal/query/planner"
	"github.com/nirv/nirv/pkg/types"
)

// Result is a query result tagged with its id and fingerprint.
type Result struct {
	QueryID     string
	Fingerprint string
	*types.QueryResult
}

// SourceInfo describes one registered object type.
type SourceInfo struct {
	ObjectType    string                           `json:"object_type"`
	ConnectorType string                           `json:"connector_type"`
	Connected     bool                             `json:"connected"`
	Capabilities  dispatcher.ConnectorCapabilities `json:"capabilities"`
}

// Stats is a snapshot of the engine's query statistics.
type Stats struct {
	Sources       []observability.SourceStats `json:"sources"`
	TopPredicates []observability.ColumnStats `json:"top_predicates"`
}

// Engine runs SQL against registered connectors. It is safe for
// concurrent use.
type Engine struct {
	parser     *parser.Parser
	planner    *planner.Planner
	dispatcher *dispatcher.Dispatcher
	executor   *executor.Executor
	notifier   *dispatcher.Notifier
	stats      *observability.QueryStats
	ids        *types.QueryIDGenerator
	factories  map[string]Factory
	timeout    time.Duration
	planRules  []planner.Rule
	logger     *slog.Logger

	sub      *dispatcher.Subscriber
	watchWg  sync.WaitGroup
	shutOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger passed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFactory registers or replaces the constructor for a connector type.
func WithFactory(connectorType string, f Factory) Option {
	return func(e *Engine) {
		e.factories[connectorType] = f
	}
}

// WithPlanRule adds a planner rewrite rule.
func WithPlanRule(rule planner.Rule) Option {
	return func(e *Engine) {
		e.planRules = append(e.planRules, rule)
	}
}

// New creates an engine with no registered connectors. A nil cfg uses
// config.DefaultConfig.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	e := &Engine{
		notifier:  dispatcher.NewNotifier(16),
		stats:     observability.NewQueryStats(cfg.Query.StatsWindow),
		ids:       types.NewQueryIDGenerator(),
		factories: DefaultFactories(),
		timeout:   cfg.Query.Timeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}

	costs := cfg.Query.Costs
	if costs == (planner.CostModel{}) {
		costs = planner.DefaultCostModel()
	}

	e.parser = parser.New()
	plannerOpts := []planner.Option{planner.WithCosts(costs), planner.WithLogger(e.logger)}
	for _, rule := range e.planRules {
		plannerOpts = append(plannerOpts, planner.WithRule(rule))
	}
	e.planner = planner.New(plannerOpts...)
	e.dispatcher = dispatcher.New(dispatcher.WithLogger(e.logger), dispatcher.WithNotifier(e.notifier))
	e.executor = executor.New(e.dispatcher, executor.WithLogger(e.logger))

	e.sub = e.notifier.Subscribe()
	e.watchWg.Add(1)
	go e.watchRegistry()

	return e
}

// FromConfig creates an engine and connects and registers every
// connector listed in cfg. On failure the connectors registered so far
// are disconnected.
func FromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := New(cfg, opts...)
	for _, cc := range cfg.Connectors {
		c, err := e.build(cc.Type)
		if err != nil {
			e.Shutdown(ctx)
			return nil, err
		}
		if err := e.RegisterConnector(ctx, cc.ObjectType, c, cc.InitConfig()); err != nil {
			e.Shutdown(ctx)
			return nil, err
		}
		e.logger.Info("connector ready",
			"name", cc.Name,
			"type", cc.Type,
			"object_type", cc.ObjectType)
	}
	return e, nil
}

func (e *Engine) build(connectorType string) (connector.Connector, error) {
	f, ok := e.factories[connectorType]
	if !ok {
		return nil, nerrors.NewConfigError(
			fmt.Sprintf("unknown connector type '%s' (available: %s)",
				connectorType, strings.Join(e.ConnectorTypes(), ", ")), nil)
	}
	return f(e.logger), nil
}

// ConnectorTypes returns the connector types FromConfig can build, sorted.
func (e *Engine) ConnectorTypes() []string {
	names := make([]string, 0, len(e.factories))
	for name := range e.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query parses, routes, plans and executes sql within the configured
// query timeout.
func (e *Engine) Query(ctx context.Context, sql string) (*Result, error) {
	start := time.Now()
	id, err := e.ids.Next()
	if err != nil {
		return nil, nerrors.NewInternalError("failed to generate query id", err)
	}
	res := &Result{QueryID: id.String(), Fingerprint: observability.Fingerprint(sql)}
	logger := e.logger.With("query_id", res.QueryID, "fingerprint", res.Fingerprint)

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	q, plan, err := e.prepare(ctx, sql)
	if err != nil {
		logger.Warn("query rejected", "error", err)
		return nil, err
	}

	objectType := q.Sources[0].ObjectType
	for _, p := range q.Predicates {
		e.stats.RecordPredicate(objectType+"."+p.Column, p.Operator.String())
	}

	result, err := e.executor.ExecutePlan(ctx, plan)
	elapsed := time.Since(start)
	if err != nil {
		e.stats.RecordQuery(objectType, 0, elapsed, err)
		logger.Warn("query failed",
			"object_type", objectType,
			"duration", elapsed,
			"error", err)
		return nil, err
	}

	e.stats.RecordQuery(objectType, result.RowCount(), elapsed, nil)
	logger.Info("query complete",
		"object_type", objectType,
		"rows", result.RowCount(),
		"duration", elapsed)

	res.QueryResult = result
	return res, nil
}

// Explain returns the plan sql would run, without executing it.
func (e *Engine) Explain(ctx context.Context, sql string) (string, error) {
	_, plan, err := e.prepare(ctx, sql)
	if err != nil {
		return "", err
	}
	return plan.Explain(), nil
}

// prepare runs the validation half of the query path. Routing happens
// before planning so an unregistered type is reported ahead of a
// multi-source rejection.
func (e *Engine) prepare(ctx context.Context, sql string) (*types.Query, *planner.ExecutionPlan, error) {
	q, err := e.parser.Parse(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.dispatcher.RouteQuery(ctx, q); err != nil {
		return nil, nil, err
	}
	plan, err := e.planner.Plan(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	return q, plan, nil
}

// ExecuteRaw runs connector-bound envelopes and returns the connector's
// output as is. Ordering, limit and projection are not applied.
func (e *Engine) ExecuteRaw(ctx context.Context, envelopes []types.ConnectorQuery) (*types.QueryResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.dispatcher.ExecuteDistributedQuery(ctx, envelopes)
}

// RegisterConnector connects c with cfg and maps objectType to it. A
// connector that fails to register is disconnected again.
func (e *Engine) RegisterConnector(ctx context.Context, objectType string, c connector.Connector, cfg connector.InitConfig) error {
	if e.dispatcher.IsTypeRegistered(objectType) {
		return nerrors.NewDispatchError(nerrors.CodeRegistrationFailed,
			fmt.Sprintf("Data object type '%s' is already registered", objectType))
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutOrDefault())
	defer cancel()
	if err := c.Connect(connectCtx, cfg); err != nil {
		return err
	}

	if err := e.dispatcher.RegisterConnector(objectType, c); err != nil {
		if derr := c.Disconnect(ctx); derr != nil {
			e.logger.Warn("disconnect after failed registration", "object_type", objectType, "error", derr)
		}
		return err
	}
	return nil
}

// UnregisterConnector removes objectType and disconnects its connector.
func (e *Engine) UnregisterConnector(ctx context.Context, objectType string) error {
	c, err := e.dispatcher.UnregisterConnector(objectType)
	if err != nil {
		return err
	}
	return c.Disconnect(ctx)
}

// ListAvailableTypes returns the registered object types, sorted.
func (e *Engine) ListAvailableTypes() []string {
	return e.dispatcher.ListAvailableTypes()
}

// DescribeSources reports every registered object type.
func (e *Engine) DescribeSources() []SourceInfo {
	objectTypes := e.dispatcher.ListAvailableTypes()
	out := make([]SourceInfo, 0, len(objectTypes))
	for _, t := range objectTypes {
		c, err := e.dispatcher.Resolve(t)
		if err != nil {
			continue
		}
		caps, _ := e.dispatcher.Capabilities(t)
		out = append(out, SourceInfo{
			ObjectType:    t,
			ConnectorType: c.Type().String(),
			Connected:     c.IsConnected(),
			Capabilities:  caps,
		})
	}
	return out
}

// Schema describes the object addressed as "type.identifier". A bare
// identifier uses the default object type.
func (e *Engine) Schema(ctx context.Context, source string) (*types.Schema, error) {
	objectType, identifier := types.DefaultObjectType, source
	if i := strings.Index(source, "."); i >= 0 {
		objectType, identifier = source[:i], source[i+1:]
	}
	if objectType == "" || identifier == "" {
		return nil, nerrors.NewParseError(nerrors.CodeInvalidSourceFormat,
			fmt.Sprintf("Invalid source '%s', expected 'type.identifier'", source))
	}

	c, err := e.dispatcher.Resolve(objectType)
	if err != nil {
		return nil, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return c.GetSchema(ctx, identifier)
}

// Stats prunes idle entries and returns the current statistics.
func (e *Engine) Stats() Stats {
	e.stats.Prune()
	return Stats{
		Sources:       e.stats.Sources(),
		TopPredicates: e.stats.GetTopPredicates(10),
	}
}

// Shutdown disconnects every registered connector. It returns the first
// disconnect error; later connectors are still disconnected.
func (e *Engine) Shutdown(ctx context.Context) error {
	var firstErr error
	e.shutOnce.Do(func() {
		for _, objectType := range e.dispatcher.ListAvailableTypes() {
			if err := e.UnregisterConnector(ctx, objectType); err != nil {
				e.logger.Warn("disconnect failed", "object_type", objectType, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		e.notifier.Unsubscribe(e.sub.ID)
		e.watchWg.Wait()
	})
	return firstErr
}

// watchRegistry drops statistics for object types that go away.
func (e *Engine) watchRegistry() {
	defer e.watchWg.Done()
	for ev := range e.sub.Ch {
		e.logger.Debug("registry changed",
			"event", ev.Type.String(),
			"object_type", ev.ObjectType,
			"connector", ev.ConnectorName)
		if ev.Type == dispatcher.ConnectorUnregistered {
			e.stats.Forget(ev.ObjectType)
		}
	}
}
