package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/tessera/internal/health"
	"github.com/dyluth/tessera/internal/printer"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a health endpoint for both tiers",
		Long: `Run an HTTP server exposing GET /healthz.

The endpoint pings the durable ledger and, when it runs on Redis, the fast
tier store. It answers 200 when every check passes and 503 otherwise.

Example:
  tessera serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: printed(func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer e.Close()

			checks := map[string]health.Pinger{"ledger": e.ledger}
			if e.fastClient != nil {
				checks["fast_tier"] = e.fastClient
			}

			srv := health.NewServer(addr, checks, e.logger)
			bound, err := srv.Start()
			if err != nil {
				return printer.Error("failed to start health server", err.Error(),
					[]string{"Pick a free address with --addr"})
			}
			printer.Success("Serving health checks on http://%s/healthz\n", bound)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			defer signal.Stop(sigCh)

			select {
			case sig := <-sigCh:
				printer.Info("Received signal %v, shutting down gracefully...\n", sig)
			case <-cmd.Context().Done():
			}

			ctx, cancel := shutdownContext()
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				e.logger.Warn("health server shutdown failed", "error", err)
			}

			printer.Info("Health server stopped\n")
			return nil
		}),
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

// shutdownTimeout bounds graceful shutdown of long-running commands.
const shutdownTimeout = 5 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
