package dispatcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nirv/nirv/internal/connector"
	nerrors "github.com/nirv/nirv/internal/errors"
)

// ConnectorRegistry owns connectors by internal name.
type ConnectorRegistry struct {
	mu         sync.RWMutex
	connectors map[string]connector.Connector
}

// NewConnectorRegistry creates an empty registry.
func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{connectors: make(map[string]connector.Connector)}
}

// Register stores c under name. It fails if the name is taken.
func (r *ConnectorRegistry) Register(name string, c connector.Connector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[name]; exists {
		return nerrors.NewDispatchError(nerrors.CodeRegistrationFailed,
			fmt.Sprintf("Connector '%s' is already registered", name))
	}
	r.connectors[name] = c
	return nil
}

// Get returns the connector registered under name.
func (r *ConnectorRegistry) Get(name string) (connector.Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

// Unregister removes and returns the connector registered under name.
func (r *ConnectorRegistry) Unregister(name string) (connector.Connector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connectors[name]
	if ok {
		delete(r.connectors, name)
	}
	return c, ok
}

// List returns the registered names in sorted order.
func (r *ConnectorRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.connectors))
	for name := range r.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether name is registered.
func (r *ConnectorRegistry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connectors[name]
	return ok
}

// Len returns the number of registered connectors.
func (r *ConnectorRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connectors)
}

// ConnectorCapabilities is the reduced capability view kept by the type
// registry. It has no transaction flag.
type ConnectorCapabilities struct {
	SupportsJoins        bool    `json:"supports_joins"`
	SupportsAggregations bool    `json:"supports_aggregations"`
	SupportsSubqueries   bool    `json:"supports_subqueries"`
	MaxConcurrentQueries *uint32 `json:"max_concurrent_queries,omitempty"`
}

// ReduceCapabilities derives the type registry view of caps.
func ReduceCapabilities(caps connector.Capabilities) ConnectorCapabilities {
	return ConnectorCapabilities{
		SupportsJoins:        caps.SupportsJoins,
		SupportsAggregations: caps.SupportsAggregations,
		SupportsSubqueries:   caps.SupportsSubqueries,
		MaxConcurrentQueries: caps.MaxConcurrentQueries,
	}
}

// TypeRegistry maps data object types to internal connector names and
// keeps the capabilities of each connector.
type TypeRegistry struct {
	mu           sync.RWMutex
	types        map[string]string
	capabilities map[string]ConnectorCapabilities
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types:        make(map[string]string),
		capabilities: make(map[string]ConnectorCapabilities),
	}
}

// Register links objectType to connectorName. It fails if the type is
// already mapped.
func (r *TypeRegistry) Register(objectType, connectorName string, caps ConnectorCapabilities) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[objectType]; exists {
		return nerrors.NewDispatchError(nerrors.CodeRegistrationFailed,
			fmt.Sprintf("Data object type '%s' is already registered", objectType))
	}
	r.types[objectType] = connectorName
	r.capabilities[connectorName] = caps
	return nil
}

// ConnectorFor returns the connector name serving objectType.
func (r *TypeRegistry) ConnectorFor(objectType string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.types[objectType]
	return name, ok
}

// CapabilitiesOf returns the capabilities recorded for a connector name.
func (r *TypeRegistry) CapabilitiesOf(connectorName string) (ConnectorCapabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.capabilities[connectorName]
	return caps, ok
}

// Unregister removes the mapping for objectType and returns the connector
// name it pointed to.
func (r *TypeRegistry) Unregister(objectType string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.types[objectType]
	if !ok {
		return "", false
	}
	delete(r.types, objectType)
	delete(r.capabilities, name)
	return name, true
}

// Types returns the registered object types in sorted order.
func (r *TypeRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
