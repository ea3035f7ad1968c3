package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/galcoord/internal/api"
	"github.com/star/galcoord/internal/check"
	"github.com/star/galcoord/internal/health"
	"github.com/star/galcoord/internal/trajectory"
)

const shutdownTimeout = 5 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the conversion API over HTTP",
		Long: `Serve the conversion API. /readyz reports ready once the startup
consistency suite has passed (or immediately when check.on_startup is off).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			logger := rootOpts.logger
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("effective config",
				"component", "serve",
				"addr", cfg.HTTP.Addr,
				"auth_enabled", cfg.Auth.Enabled,
				"trust_proxy", cfg.HTTP.TrustProxy,
				"max_points", cfg.HTTP.MaxPoints,
				"max_batches_per_ip", cfg.HTTP.MaxBatchesPerIP,
				"workers", cfg.Workers,
				"prolsph_alpha", cfg.ProlSph.Alpha,
				"prolsph_gamma", cfg.ProlSph.Gamma,
				"check_on_startup", cfg.Check.OnStartup,
			)

			ready := &health.Readiness{}
			pool := trajectory.NewPool(cfg.Workers, logger)
			srv := api.NewServer(api.Options{
				Addr:            cfg.HTTP.Addr,
				Auth:            cfg.Auth,
				TrustProxy:      cfg.HTTP.TrustProxy,
				MaxPoints:       cfg.HTTP.MaxPoints,
				MaxBatchesPerIP: cfg.HTTP.MaxBatchesPerIP,
				Shape:           cfg.Shape(),
				Tolerance:       cfg.Check.Tolerance,
				Workers:         cfg.Workers,
			}, logger, pool, ready)

			if cfg.Check.OnStartup {
				ready.Set(false, "startup self-check running")
				go func() {
					rep := check.Run(ctx, check.DefaultSuite(cfg.Shape(), cfg.Check.Tolerance), cfg.Workers, logger)
					if rep.OK() {
						ready.Set(true, "")
						return
					}
					logger.Error("startup self-check failed, staying not ready",
						"component", "serve",
						"run_id", rep.RunID,
						"failed", rep.Failed,
					)
					ready.Set(false, "startup self-check failed")
				}()
			} else {
				ready.Set(true, "")
			}

			errc := make(chan error, 1)
			go func() {
				logger.Info("starting server", "component", "serve", "addr", cfg.HTTP.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			select {
			case err := <-errc:
				logger.Error("server listen error", "component", "serve", "error", err)
				return WrapExitError(ExitFailure, "listen", err)
			case <-ctx.Done():
			}
			logger.Info("shutting down server...", "component", "serve")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", "component", "serve", "error", err)
				return WrapExitError(ExitFailure, "shutdown", err)
			}
			logger.Info("server stopped", "component", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides http.addr")
	return cmd
}
