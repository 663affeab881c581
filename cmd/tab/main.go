// Command tab runs one tab: it holds a session in the shared store, keeps
// the realtime connection in step with it and logs what happens. Run
// several against the same redis to watch sessions propagate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/tabsync/pkg/config"
	"github.com/dmitrymomot/tabsync/pkg/httpserver"
	"github.com/dmitrymomot/tabsync/pkg/livesync"
	"github.com/dmitrymomot/tabsync/pkg/logger"
	"github.com/dmitrymomot/tabsync/pkg/realtime"
	"github.com/dmitrymomot/tabsync/pkg/redis"
	"github.com/dmitrymomot/tabsync/pkg/storage"
	"github.com/dmitrymomot/tabsync/pkg/tabsync"
)

type tabConfig struct {
	// Storage selects the shared store: memory, bolt or redis.
	Storage  string `env:"TAB_STORAGE" envDefault:"redis"`
	BoltPath string `env:"TAB_BOLT_PATH" envDefault:"./data/tabsync.db"`
	// Token is assigned on start when the tab has no session to continue.
	Token        string   `env:"TAB_TOKEN"`
	Rooms        []string `env:"TAB_ROOMS" envSeparator:"," envDefault:"dashboard"`
	MetricsAddr  string   `env:"TAB_METRICS_ADDR"`
	LogoutOnExit bool     `env:"TAB_LOGOUT_ON_EXIT" envDefault:"true"`
}

type appConfig struct {
	Logger   logger.Config
	Redis    redis.Config
	Store    storage.RedisConfig
	Livesync livesync.Config
	Tab      tabConfig
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.FromConfig(cfg.Logger),
		// Storage writes carry the writing tab on their context.
		logger.WithContextExtractors(func(ctx context.Context) (slog.Attr, bool) {
			id := storage.OriginFromContext(ctx)
			return slog.String("origin", id), id != ""
		}),
	)
	logger.SetAsDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("tab failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shared, checks, err := openShared(ctx, cfg)
	if err != nil {
		return err
	}
	defer shared.Close()

	reg := prometheus.NewRegistry()
	client := livesync.New(shared, storage.NewMemoryLocal(), realtime.WebSocketDialer{},
		livesync.WithConfig(cfg.Livesync),
		livesync.WithMetrics(realtime.NewMetrics(reg, "tabsync")),
		livesync.WithLogger(log),
	)
	defer client.Close()

	watch(ctx, client, log)

	startup, err := client.Start(ctx)
	if err != nil {
		return err
	}
	if startup == tabsync.StartupNewTab && cfg.Tab.Token != "" {
		if _, err := client.AssignToken(ctx, cfg.Tab.Token); err != nil {
			return fmt.Errorf("assign token: %w", err)
		}
	}
	if client.Snapshot().IsNewTab {
		log.Warn("no session to continue; set TAB_TOKEN to log in")
	}

	for _, name := range cfg.Tab.Rooms {
		if err := client.SubscribeToRoom(ctx, realtime.Room(name)); err != nil {
			return fmt.Errorf("room %q: %w", name, err)
		}
	}

	if cfg.Tab.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		r.Get("/readyz", httpserver.HealthCheckHandler(log, checks...))
		srv := httpserver.New(httpserver.WithAddr(cfg.Tab.MetricsAddr), httpserver.WithLogger(log))
		go func() {
			if err := srv.Run(ctx, r); err != nil {
				log.Error("metrics server failed", logger.Error(err))
			}
		}()
	}

	<-ctx.Done()

	if cfg.Tab.LogoutOnExit {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Logout(logoutCtx); err != nil {
			log.Warn("logout failed", logger.Error(err))
		}
		// Give the signal its debounce before the writer clears it on close.
		time.Sleep(cfg.Livesync.Tabsync.SignalDebounce)
	}
	return nil
}

func openShared(ctx context.Context, cfg appConfig) (storage.Shared, []httpserver.Check, error) {
	switch cfg.Tab.Storage {
	case "memory":
		return storage.NewMemoryShared(), nil, nil
	case "bolt":
		s, err := storage.OpenBolt(cfg.Tab.BoltPath)
		return s, nil, err
	case "redis":
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewRedisShared(rdb, cfg.Store), []httpserver.Check{redis.Healthcheck(rdb)}, nil
	default:
		return nil, nil, errors.New("unknown TAB_STORAGE " + cfg.Tab.Storage)
	}
}

// watch logs session transitions, connection changes and domain events.
func watch(ctx context.Context, client *livesync.Client, log *slog.Logger) {
	events := client.Coordinator().Events(ctx)
	go func() {
		for msg := range events.Receive(ctx) {
			e := msg.Data
			log.Info("session event",
				logger.Event(string(e.Kind)),
				slog.Bool("remote", e.Remote),
				slog.String("source_tab", e.SourceTab),
			)
		}
	}()

	for _, name := range []realtime.EventName{
		realtime.EventConnect,
		realtime.EventDisconnect,
		realtime.EventBookingUpdate,
		realtime.EventNotificationNew,
		realtime.EventNotificationUpdate,
		realtime.EventAnalyticsUpdate,
	} {
		client.Subscribe(name, func(e realtime.Event) {
			log.Info("realtime event", logger.Event(string(e.EventName())), slog.Any("data", e))
		})
	}
}
