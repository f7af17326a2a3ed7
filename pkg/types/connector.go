package types

import "strings"

// ConnectorType tags the backend family of a connector.
type ConnectorType string

const (
	ConnectorMock       ConnectorType = "mock"
	ConnectorPostgreSQL ConnectorType = "postgres"
	ConnectorMySQL      ConnectorType = "mysql"
	ConnectorSQLite     ConnectorType = "sqlite"
	ConnectorFile       ConnectorType = "file"
	ConnectorREST       ConnectorType = "rest"
	ConnectorLLM        ConnectorType = "llm"
)

const customPrefix = "custom:"

// CustomConnectorType tags a connector family not known to the engine.
func CustomConnectorType(name string) ConnectorType {
	return ConnectorType(customPrefix + name)
}

// IsCustom reports whether the tag was built by CustomConnectorType.
func (c ConnectorType) IsCustom() bool {
	return strings.HasPrefix(string(c), customPrefix)
}

func (c ConnectorType) String() string { return string(c) }

// ConnectorQuery is a query bound to a specific connector.
type ConnectorQuery struct {
	ConnectorType    ConnectorType     `json:"connector_type"`
	Query            *Query            `json:"query"`
	ConnectionParams map[string]string `json:"connection_params,omitempty"`
}

// NewConnectorQuery binds q to a connector type with no extra parameters.
func NewConnectorQuery(ct ConnectorType, q *Query) ConnectorQuery {
	return ConnectorQuery{ConnectorType: ct, Query: q, ConnectionParams: map[string]string{}}
}
