package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farmstand/farmstand/internal/api"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run setup on start and serve the setup API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	a.log.Info().Str("version", version).Str("backend", a.backend.Name()).Msg("farmstand starting")

	a.connectMQTT()

	if a.cfg.MigrateOnStart {
		// A failed run is logged, not fatal: the setup panel can retry
		// through the API once an administrator has applied the SQL.
		if err := a.runner.Run(ctx).Err(); err != nil {
			a.log.Warn().Msg(err.Error())
		}
	}

	// HTTP Server
	httpLog := a.log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:    a.cfg,
		Backend:   a.backend,
		Runner:    a.runner,
		Avatars:   a.avatars,
		MQTT:      a.mqtt,
		Version:   version,
		StartTime: startTime,
		Log:       httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http server shutdown error")
	}

	a.log.Info().Msg("farmstand stopped")
	return serveErr
}
