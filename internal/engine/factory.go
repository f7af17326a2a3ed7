package engine

import (
	"log/slog"

	"github.com/nirv/nirv/internal/connector"
	"github.com/nirv/nirv/internal/connector/file"
	"github.com/nirv/nirv/internal/connector/mock"
	"github.com/nirv/nirv/internal/connector/rest"
	"github.com/nirv/nirv/internal/connector/sqldb"
)

// Factory builds a disconnected connector.
type Factory func(logger *slog.Logger) connector.Connector

// DefaultFactories returns the built-in connector constructors keyed by
// the type name used in configuration.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		"mock": func(*slog.Logger) connector.Connector {
			return mock.New()
		},
		"file": func(logger *slog.Logger) connector.Connector {
			return file.New(file.WithLogger(logger))
		},
		"postgres": func(logger *slog.Logger) connector.Connector {
			return sqldb.NewPostgres(sqldb.WithLogger(logger))
		},
		"sqlite": func(logger *slog.Logger) connector.Connector {
			return sqldb.NewSQLite(sqldb.WithLogger(logger))
		},
		"rest": func(logger *slog.Logger) connector.Connector {
			return rest.New(rest.WithLogger(logger))
		},
	}
}
