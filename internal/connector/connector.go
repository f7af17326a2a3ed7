// Package connector defines the contract every backend implements and the
// helpers shared by the built-in connectors.
package connector

import (
	"context"
	"strconv"
	"time"

	"github.com/nirv/nirv/pkg/types"
)

const (
	// DefaultTimeout applies when InitConfig carries no timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxConnections applies when InitConfig carries no pool size.
	DefaultMaxConnections uint32 = 10
)

// Connector is a backend able to serve one data object type.
//
// Implementations must be safe for concurrent use: several in-flight
// queries may call ExecuteQuery and GetSchema at the same time.
type Connector interface {
	// Connect establishes the backend connection. Parameter validation
	// happens here, not in InitConfig.
	Connect(ctx context.Context, cfg InitConfig) error

	// ExecuteQuery runs a connector-bound query.
	ExecuteQuery(ctx context.Context, q types.ConnectorQuery) (*types.QueryResult, error)

	// GetSchema describes one backend object.
	GetSchema(ctx context.Context, name string) (*types.Schema, error)

	// Disconnect releases backend resources.
	Disconnect(ctx context.Context) error

	Type() types.ConnectorType
	SupportsTransactions() bool
	IsConnected() bool
	Capabilities() Capabilities
}

// Capabilities is what a connector advertises about itself.
type Capabilities struct {
	SupportsJoins               bool    `json:"supports_joins"`
	SupportsAggregations        bool    `json:"supports_aggregations"`
	SupportsSubqueries          bool    `json:"supports_subqueries"`
	SupportsTransactions        bool    `json:"supports_transactions"`
	SupportsSchemaIntrospection bool    `json:"supports_schema_introspection"`
	MaxConcurrentQueries        *uint32 `json:"max_concurrent_queries,omitempty"`
}

// DefaultCapabilities advertises schema introspection and a single
// concurrent query.
func DefaultCapabilities() Capabilities {
	one := uint32(1)
	return Capabilities{
		SupportsSchemaIntrospection: true,
		MaxConcurrentQueries:        &one,
	}
}

// InitConfig is the parameter bag handed to Connect. The With* methods
// return modified copies so a base config can be shared.
type InitConfig struct {
	Params         map[string]string `json:"params"`
	Timeout        *time.Duration    `json:"timeout,omitempty"`
	MaxConnections *uint32           `json:"max_connections,omitempty"`
}

// NewInitConfig returns an empty config.
func NewInitConfig() InitConfig {
	return InitConfig{Params: map[string]string{}}
}

// WithParam sets one connection parameter.
func (c InitConfig) WithParam(key, value string) InitConfig {
	params := make(map[string]string, len(c.Params)+1)
	for k, v := range c.Params {
		params[k] = v
	}
	params[key] = value
	c.Params = params
	return c
}

// WithTimeout sets the connect/query timeout.
func (c InitConfig) WithTimeout(d time.Duration) InitConfig {
	c.Timeout = &d
	return c
}

// WithMaxConnections sets the connection pool bound.
func (c InitConfig) WithMaxConnections(n uint32) InitConfig {
	c.MaxConnections = &n
	return c
}

// Param returns a parameter and whether it was set to a non-empty value.
func (c InitConfig) Param(key string) (string, bool) {
	v, ok := c.Params[key]
	return v, ok && v != ""
}

// ParamOr returns a parameter, or def when it is unset or empty.
func (c InitConfig) ParamOr(key, def string) string {
	if v, ok := c.Param(key); ok {
		return v
	}
	return def
}

// IntParam parses an integer parameter. ok is false when the parameter
// is unset; err is set when it is present but malformed.
func (c InitConfig) IntParam(key string) (n int, ok bool, err error) {
	v, ok := c.Param(key)
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	return n, true, err
}

// TimeoutOrDefault returns the configured timeout or DefaultTimeout.
func (c InitConfig) TimeoutOrDefault() time.Duration {
	if c.Timeout != nil {
		return *c.Timeout
	}
	return DefaultTimeout
}

// MaxConnectionsOrDefault returns the configured pool size or
// DefaultMaxConnections.
func (c InitConfig) MaxConnectionsOrDefault() uint32 {
	if c.MaxConnections != nil {
		return *c.MaxConnections
	}
	return DefaultMaxConnections
}
