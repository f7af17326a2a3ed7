package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nirv/nirv/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and gRPC query APIs",
		Long: `Register the configured connectors and serve queries over HTTP and,
when enabled, gRPC until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			cmdCtx, _, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}

			// The app owns the engine and releases the connectors on exit.
			return app.New(cmdCtx.Cfg, cmdCtx.Engine, cmdCtx.Logger).Run(ctx)
		},
	}
}
