package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkoziy/numbers/syncer/internal/api"
)

const (
	serverRequestTimeout = 10 * time.Second
	serverIdleTimeout    = 60 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the job runners",
		Long: `Start the HTTP API. Sync jobs triggered over HTTP run in the background on a
bounded pool of runners. Jobs left unfinished by a previous process are marked failed
on startup. SIGINT or SIGTERM stops accepting jobs and waits up to sync.shutdown_grace
for running ones.`,
		RunE: runServe,
	}
	cmd.Flags().String("address", "", "Address to listen on (overrides server.listen_addr)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := loadComponents(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	address := c.cfg.Server.ListenAddr
	if v, _ := cmd.Flags().GetString("address"); v != "" {
		address = v
	}

	orch := c.newOrchestrator()
	if _, err := orch.Recover(ctx); err != nil {
		return err
	}
	orch.Start()

	router := api.NewRouter(orch, c.db,
		api.WithLogger(c.logger.With(zap.String("component", "api"))),
		api.WithMetricsHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})),
		api.WithTriggerRate(c.cfg.Server.TriggerRatePerMinute),
		api.WithRequestTimeout(serverRequestTimeout),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  c.cfg.Server.ReadTimeout,
		WriteTimeout: c.cfg.Server.WriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		c.logger.Info("server listening", zap.String("address", address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		c.logger.Info("shutting down", zap.String("signal", sig.String()))
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Sync.ShutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("running jobs were interrupted", zap.Error(err))
	}

	c.logger.Info("shutdown complete")
	return runErr
}
