package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/chart"
	apphttp "bilancio/internal/http"
	"bilancio/internal/log"
	"bilancio/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the widget HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(log.Config{Level: cfg.SlogLevel(), Component: log.ComponentApp, Output: os.Stdout})
	log.SetDefault(logger)

	renderer, err := chart.NewRenderer(chart.Size{Width: cfg.ChartWidth, Height: cfg.ChartHeight}, cfg.ChartCacheTTL, cfg.ChartCacheEntries)
	if err != nil {
		return fmt.Errorf("chart renderer: %w", err)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(metrics.DefaultConfig())
	}

	srv, err := apphttp.NewServer(cfg.Addr(), apphttp.Options{
		Logger:             logger,
		Metrics:            m,
		Renderer:           renderer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		return err
	}
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting bilancio server",
			log.FieldOperation, log.OpStartup,
			"addr", srv.Addr,
			"metrics", cfg.MetricsEnabled,
			"rate_limit_per_minute", cfg.RateLimitPerMinute)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
