// Package planner turns a parsed query into an execution plan: a scan of
// the single addressed source, wrapped by sort, limit and projection.
package planner

import (
	"context"
	"io"
	"log/slog"

	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// CostModel holds the advisory cost weights. No alternative plans are
// generated; the estimate is reported alongside the plan.
type CostModel struct {
	BaseScanCost        float64 `json:"base_scan_cost" yaml:"base_scan_cost"`
	PredicateMultiplier float64 `json:"predicate_multiplier" yaml:"predicate_multiplier"`
	SortCost            float64 `json:"sort_cost" yaml:"sort_cost"`
	LimitCost           float64 `json:"limit_cost" yaml:"limit_cost"`
}

// DefaultCostModel returns the default cost weights.
func DefaultCostModel() CostModel {
	return CostModel{
		BaseScanCost:        1.0,
		PredicateMultiplier: 0.1,
		SortCost:            0.5,
		LimitCost:           0.1,
	}
}

// Planner generates execution plans from parsed queries.
type Planner struct {
	costs  CostModel
	rules  []Rule
	logger *slog.Logger
}

// Rule rewrites a finished plan. Rules run in registration order.
type Rule func(*ExecutionPlan) *ExecutionPlan

// Option configures a Planner.
type Option func(*Planner)

// WithCosts overrides the default cost model.
func WithCosts(costs CostModel) Option {
	return func(p *Planner) {
		p.costs = costs
	}
}

// WithRule appends a rewrite rule applied by OptimizePlan.
func WithRule(rule Rule) Option {
	return func(p *Planner) {
		p.rules = append(p.rules, rule)
	}
}

// WithLogger sets the logger used for plan debugging.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// New creates a new query planner.
func New(opts ...Option) *Planner {
	p := &Planner{
		costs:  DefaultCostModel(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Costs returns the cost model in use.
func (p *Planner) Costs() CostModel {
	return p.costs
}

// Plan builds the plan bottom-up: scan, then sort, then limit, then
// projection. Sort always sits below limit.
func (p *Planner) Plan(ctx context.Context, q *types.Query) (*ExecutionPlan, error) {
	if q == nil {
		return nil, nerrors.NewInternalError("planner: nil query", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch n := len(q.Sources); {
	case n == 0:
		return nil, nerrors.NewPlanningError(nerrors.CodeNoSources, "No data sources found in query")
	case n > 1:
		return nil, nerrors.NewCrossSourceError(n)
	}
	source := q.Sources[0]

	projections := q.Projections
	if len(projections) == 0 {
		projections = []types.Column{{Name: "*", Source: source.Alias}}
	}

	var root Node = &TableScanNode{
		Source:      source,
		Projections: projections,
		Predicates:  q.Predicates,
	}
	if q.Ordering != nil && len(q.Ordering.Columns) > 0 {
		root = &SortNode{Ordering: *q.Ordering, Input: root}
	}
	if q.Limit != nil {
		root = &LimitNode{Count: *q.Limit, Input: root}
	}
	if needsProjection(q.Projections, source) {
		root = &ProjectionNode{Columns: q.Projections, Input: root}
	}

	plan := p.OptimizePlan(&ExecutionPlan{
		Root:          root,
		EstimatedCost: p.EstimateCost(q),
	})

	p.logger.Debug("query planned",
		"source", source.String(),
		"nodes", len(plan.Nodes()),
		"estimated_cost", plan.EstimatedCost)

	return plan, nil
}

// EstimateCost computes the advisory cost of executing q.
func (p *Planner) EstimateCost(q *types.Query) float64 {
	cost := p.costs.BaseScanCost
	cost += float64(len(q.Predicates)) * p.costs.PredicateMultiplier
	if q.Ordering != nil && len(q.Ordering.Columns) > 0 {
		cost += p.costs.SortCost
	}
	if q.Limit != nil {
		cost += p.costs.LimitCost
	}
	return cost
}

// OptimizePlan is the rewrite hook Plan applies to every plan. With no
// rules registered it returns the plan unchanged.
func (p *Planner) OptimizePlan(plan *ExecutionPlan) *ExecutionPlan {
	for _, rule := range p.rules {
		plan = rule(plan)
	}
	return plan
}

// needsProjection reports whether cols is anything other than a single
// wildcard that is unqualified or qualified by the scanned source. A
// wildcard naming another source is kept so the executor rejects it.
func needsProjection(cols []types.Column, source types.DataSource) bool {
	if len(cols) == 0 {
		return false
	}
	if len(cols) == 1 && cols[0].IsWildcard() && cols[0].Alias == "" {
		c := cols[0]
		return c.Source != "" && c.Source != source.Alias && c.Source != source.Identifier
	}
	return true
}
