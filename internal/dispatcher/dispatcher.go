// Package dispatcher maps data object types onto registered connectors and
// enforces that a query addresses exactly one source.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
	"github.com/nirv/nirv/pkg/types"
)

// Dispatcher owns the connector and type registries. Registration is
// serialized; routing and resolution only take read locks.
type Dispatcher struct {
	mu         sync.Mutex // serializes register/unregister across both registries
	connectors *ConnectorRegistry
	types      *TypeRegistry
	notifier   *Notifier
	logger     *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithNotifier publishes registry changes to n.
func WithNotifier(n *Notifier) Option {
	return func(d *Dispatcher) {
		d.notifier = n
	}
}

// New creates a dispatcher with empty registries.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		connectors: NewConnectorRegistry(),
		types:      NewTypeRegistry(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterConnector stores c under a synthesized internal name and maps
// objectType to it. It fails if objectType is already mapped, leaving
// the existing registration in place.
func (d *Dispatcher) RegisterConnector(objectType string, c connector.Connector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.types.ConnectorFor(objectType); exists {
		return nerrors.NewDispatchError(nerrors.CodeRegistrationFailed,
			fmt.Sprintf("Data object type '%s' is already registered", objectType))
	}

	name := fmt.Sprintf("%s_%d", objectType, d.connectors.Len())
	if err := d.connectors.Register(name, c); err != nil {
		return err
	}
	if err := d.types.Register(objectType, name, ReduceCapabilities(c.Capabilities())); err != nil {
		d.connectors.Unregister(name)
		return err
	}

	d.logger.Info("connector registered",
		"object_type", objectType,
		"connector", name,
		"connector_type", c.Type().String())
	d.publish(ConnectorRegistered, objectType, name, c.Type())
	return nil
}

// UnregisterConnector removes objectType and returns its connector. The
// caller is responsible for disconnecting it.
func (d *Dispatcher) UnregisterConnector(objectType string) (connector.Connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name, ok := d.types.Unregister(objectType)
	if !ok {
		return nil, d.unregisteredError(objectType)
	}
	c, ok := d.connectors.Unregister(name)
	if !ok {
		return nil, nerrors.NewDispatchError(nerrors.CodeNoSuitableConnector,
			fmt.Sprintf("No connector stored for data object type '%s'", objectType))
	}

	d.logger.Info("connector unregistered", "object_type", objectType, "connector", name)
	d.publish(ConnectorUnregistered, objectType, name, c.Type())
	return c, nil
}

// RouteQuery validates q against the registries and binds it to the
// connector serving its single source.
func (d *Dispatcher) RouteQuery(ctx context.Context, q *types.Query) ([]types.ConnectorQuery, error) {
	if len(q.Sources) == 0 {
		return nil, nerrors.NewDispatchError(nerrors.CodeRoutingFailed, "No data sources found in query")
	}
	for _, src := range q.Sources {
		if _, ok := d.types.ConnectorFor(src.ObjectType); !ok {
			return nil, d.unregisteredError(src.ObjectType)
		}
	}
	if len(q.Sources) > 1 {
		return nil, nerrors.NewCrossSourceError(len(q.Sources))
	}

	c, err := d.Resolve(q.Sources[0].ObjectType)
	if err != nil {
		return nil, err
	}
	return []types.ConnectorQuery{types.NewConnectorQuery(c.Type(), q)}, nil
}

// ExecuteDistributedQuery runs a single connector-bound envelope and
// returns the connector's result unmodified: ordering, limit and
// projection are not applied here.
func (d *Dispatcher) ExecuteDistributedQuery(ctx context.Context, envelopes []types.ConnectorQuery) (*types.QueryResult, error) {
	switch len(envelopes) {
	case 0:
		return types.NewQueryResult(), nil
	case 1:
	default:
		return nil, nerrors.NewCrossSourceError(len(envelopes))
	}

	env := envelopes[0]
	if env.Query == nil || len(env.Query.Sources) == 0 {
		return nil, nerrors.NewDispatchError(nerrors.CodeRoutingFailed, "No data sources found in query")
	}
	c, err := d.Resolve(env.Query.Sources[0].ObjectType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.ExecuteQuery(ctx, env)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("envelope executed",
		"source", env.Query.Sources[0].String(),
		"rows", result.RowCount(),
		"duration", time.Since(start))
	return result, nil
}

// Resolve returns the connector serving objectType.
func (d *Dispatcher) Resolve(objectType string) (connector.Connector, error) {
	name, ok := d.types.ConnectorFor(objectType)
	if !ok {
		return nil, d.unregisteredError(objectType)
	}
	c, ok := d.connectors.Get(name)
	if !ok {
		return nil, nerrors.NewDispatchError(nerrors.CodeNoSuitableConnector,
			fmt.Sprintf("No connector stored for data object type '%s'", objectType))
	}
	return c, nil
}

// ListAvailableTypes returns the registered object types, sorted.
func (d *Dispatcher) ListAvailableTypes() []string {
	return d.types.Types()
}

// IsTypeRegistered reports whether objectType is mapped.
func (d *Dispatcher) IsTypeRegistered(objectType string) bool {
	_, ok := d.types.ConnectorFor(objectType)
	return ok
}

// Capabilities returns the reduced capability view for objectType.
func (d *Dispatcher) Capabilities(objectType string) (ConnectorCapabilities, error) {
	name, ok := d.types.ConnectorFor(objectType)
	if !ok {
		return ConnectorCapabilities{}, d.unregisteredError(objectType)
	}
	caps, _ := d.types.CapabilitiesOf(name)
	return caps, nil
}

// Connectors returns every registered connector keyed by object type.
func (d *Dispatcher) Connectors() map[string]connector.Connector {
	out := make(map[string]connector.Connector)
	for _, t := range d.types.Types() {
		if c, err := d.Resolve(t); err == nil {
			out[t] = c
		}
	}
	return out
}

func (d *Dispatcher) unregisteredError(objectType string) error {
	return nerrors.NewDispatchError(nerrors.CodeUnregisteredObjectType,
		fmt.Sprintf("Data object type '%s' is not registered. Available types: [%s]",
			objectType, strings.Join(d.types.Types(), ", ")))
}

func (d *Dispatcher) publish(t EventType, objectType, name string, ct types.ConnectorType) {
	if d.notifier == nil {
		return
	}
	d.notifier.Publish(Event{
		Type:          t,
		ObjectType:    objectType,
		ConnectorName: name,
		ConnectorType: ct,
		Timestamp:     time.Now(),
	})
}
