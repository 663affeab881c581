// Command devserver runs the development realtime backend: token issuance,
// the authenticated websocket endpoint and room broadcasts.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/tabsync/internal/devserver"
	"github.com/dmitrymomot/tabsync/pkg/config"
	"github.com/dmitrymomot/tabsync/pkg/httpserver"
	"github.com/dmitrymomot/tabsync/pkg/logger"
)

type appConfig struct {
	Logger    logger.Config
	HTTP      httpserver.Config
	Devserver devserver.Config
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(logger.FromConfig(cfg.Logger))
	logger.SetAsDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("devserver failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := devserver.New(cfg.Devserver, devserver.WithLogger(log))
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", srv.Routes())

	// Hijacked websocket connections outlive http.Server.Shutdown.
	server := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithStopHook(func() { _ = srv.Close() }),
	)
	return server.Run(ctx, r)
}
