// Package app runs the NIRV HTTP and gRPC servers over one engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpcapi "github.com/nirv/nirv/internal/api/grpc"
	httpapi "github.com/nirv/nirv/internal/api/http"
	"github.com/nirv/nirv/internal/config"
	"github.com/nirv/nirv/internal/engine"
	"github.com/nirv/nirv/internal/server"
)

// App serves an engine over HTTP and, when enabled, gRPC.
type App struct {
	cfg      *config.Config
	engine   *engine.Engine
	logger   *slog.Logger
	shutdown *server.ShutdownManager

	httpServer *http.Server
	grpcServer *grpc.Server

	httpAddr net.Addr
	grpcAddr net.Addr
	ready    chan struct{}
}

// New creates an App. The app owns eng and shuts it down when Run returns.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &App{
		cfg:    cfg,
		engine: eng,
		logger: logger,
		shutdown: server.NewShutdownManager(server.ShutdownConfig{
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Logger:          logger,
		}),
		ready: make(chan struct{}),
	}
}

// Run serves until ctx is cancelled or a server fails, then shuts
// everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.cfg.Server.HTTPAddr)
	if err != nil {
		a.engine.Shutdown(ctx)
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpAddr = httpLis.Addr()

	var grpcLis net.Listener
	if a.cfg.Server.GRPCEnabled {
		grpcLis, err = net.Listen("tcp", a.cfg.Server.GRPCAddr)
		if err != nil {
			httpLis.Close()
			a.engine.Shutdown(ctx)
			return fmt.Errorf("failed to listen on gRPC address: %w", err)
		}
		a.grpcAddr = grpcLis.Addr()
	}

	a.setupServers()
	close(a.ready)

	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		a.logger.Info("HTTP server listening", "addr", a.httpAddr.String())
		if err := a.httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		eg.Go(func() error {
			a.logger.Info("gRPC server listening", "addr", a.grpcAddr.String())
			if err := a.grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egctx.Done()
		reason := "context cancelled"
		if ctx.Err() == nil {
			reason = "server failed"
		}
		return a.shutdown.Shutdown(context.Background(), reason)
	})

	return eg.Wait()
}

func (a *App) setupServers() {
	// Closers run in reverse: stop accepting requests first, then release
	// the connectors.
	a.shutdown.RegisterCloser("engine", server.CloserFunc(func() error {
		return a.engine.Shutdown(context.Background())
	}))

	a.httpServer = &http.Server{
		Handler: httpapi.NewRouter(a.engine,
			httpapi.WithLogger(a.logger),
			httpapi.WithMiddleware(server.ShutdownMiddleware(a.shutdown))),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	if a.cfg.Server.GRPCEnabled {
		a.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)))
		grpcapi.RegisterQueryServiceServer(a.grpcServer,
			grpcapi.NewQueryServer(a.engine, grpcapi.WithLogger(a.logger)))
		a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
			a.grpcServer.GracefulStop()
			return nil
		}))
	}

	a.shutdown.RegisterCloser("http", server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	}))
}

// Ready is closed once the listeners are bound.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// HTTPAddr returns the bound HTTP address. Valid after Ready.
func (a *App) HTTPAddr() string {
	if a.httpAddr == nil {
		return ""
	}
	return a.httpAddr.String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcAddr == nil {
		return ""
	}
	return a.grpcAddr.String()
}
