// Package executor walks an execution plan. The scan is delegated to the
// connector serving the source; sort, limit and projection run in memory.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/internal/query/planner"
	"github.com/nirv/nirv/pkg/types"
)

// Resolver maps a data object type to the connector serving it. The
// dispatcher implements it over its type registry.
type Resolver interface {
	Resolve(objectType string) (connector.Connector, error)
}

// Executor executes plans against connectors found through a Resolver.
// It holds no per-query state and is safe for concurrent use.
type Executor struct {
	resolver Resolver
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New creates an executor that resolves connectors through r.
func New(r Resolver, opts ...Option) *Executor {
	e := &Executor{
		resolver: r,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutePlan runs plan and returns its result with the total wall-clock
// time. Column metadata is inferred from the first row when the
// connector reported none.
func (e *Executor) ExecutePlan(ctx context.Context, plan *planner.ExecutionPlan) (*types.QueryResult, error) {
	start := time.Now()

	if plan.IsEmpty() {
		result := types.NewQueryResult()
		result.ExecutionTime = time.Since(start)
		return result, nil
	}

	result, err := e.executeNode(ctx, plan.Root)
	if err != nil {
		return nil, err
	}

	if len(result.Columns) == 0 && len(result.Rows) > 0 {
		result.Columns = connector.InferColumns(nil, result.Rows[0])
	}
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func (e *Executor) executeNode(ctx context.Context, node planner.Node) (*types.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	switch n := node.(type) {
	case *planner.TableScanNode:
		return e.executeScan(ctx, n)

	case *planner.SortNode:
		result, err := e.executeNode(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		if err := sortRows(result, n.Ordering); err != nil {
			return nil, err
		}
		return result, nil

	case *planner.LimitNode:
		result, err := e.executeNode(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		if uint64(len(result.Rows)) > n.Count {
			result.Rows = result.Rows[:n.Count]
		}
		return result, nil

	case *planner.ProjectionNode:
		result, err := e.executeNode(ctx, n.Input)
		if err != nil {
			return nil, err
		}
		var source types.DataSource
		if scan := planner.Leaf(n); scan != nil {
			source = scan.Source
		}
		return project(result, n.Columns, source)

	default:
		return nil, nerrors.NewInternalError(fmt.Sprintf("executor: unknown plan node %T", node), nil)
	}
}

func (e *Executor) executeScan(ctx context.Context, scan *planner.TableScanNode) (*types.QueryResult, error) {
	conn, err := e.resolver.Resolve(scan.Source.ObjectType)
	if err != nil {
		return nil, nerrors.Wrap(nerrors.ErrCategoryExecution, nerrors.CodeConnectorNotFound,
			fmt.Sprintf("No connector found for data object type '%s'", scan.Source.ObjectType), err)
	}

	q := types.NewQuery(types.OperationSelect)
	q.Sources = []types.DataSource{scan.Source}
	q.Projections = scan.Projections
	q.Predicates = scan.Predicates

	started := time.Now()
	result, err := conn.ExecuteQuery(ctx, types.NewConnectorQuery(conn.Type(), q))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && nerrors.GetCategory(err) == "" {
			return nil, cancelled(ctxErr)
		}
		return nil, err
	}

	e.logger.Debug("scan complete",
		"source", scan.Source.String(),
		"connector", conn.Type().String(),
		"rows", result.RowCount(),
		"duration", time.Since(started))

	return result, nil
}

// cancelled reports an expired deadline as a connector timeout; an
// explicit cancellation passes through as the context error.
func cancelled(err error) error {
	if err == context.DeadlineExceeded {
		return nerrors.NewConnectorError(nerrors.CodeTimeout, "Query deadline exceeded", err)
	}
	return err
}
