package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/forgeassets/pkg/log"
	"github.com/cuemby/forgeassets/pkg/metrics"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keep the engine running, serve /metrics, and log published events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		engine, err := newEngine(cmd)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		defer engine.Close()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		srv := &http.Server{Addr: addr, Handler: mux}

		logger := log.WithComponent("serve")
		go func() {
			logger.Info().Str("addr", addr).Msg("metrics server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()

		sub := engine.Events.Subscribe()
		defer engine.Events.Unsubscribe(sub)
		go func() {
			for evt := range sub {
				logger.Info().Str("type", string(evt.Type)).Str("batch", evt.BatchID).Str("message", evt.Message).Msg("event")
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":9090", "Address to serve /metrics and /healthz on")
}
