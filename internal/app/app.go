package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/thesammykins/onlydrives-alert-bot/internal/admin"
	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/config"
	"github.com/thesammykins/onlydrives-alert-bot/internal/delivery"
	"github.com/thesammykins/onlydrives-alert-bot/internal/logging"
	"github.com/thesammykins/onlydrives-alert-bot/internal/metrics"
	"github.com/thesammykins/onlydrives-alert-bot/internal/scheduler"
	"github.com/thesammykins/onlydrives-alert-bot/internal/service"
	"github.com/thesammykins/onlydrives-alert-bot/internal/settings"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
// Logger is the root logger handed to components; each tags its own name.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	log zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger, log: logging.Component(logger, "app")}
}

func (a *App) defaults() settings.Defaults {
	m := a.Config.Monitoring
	return settings.Defaults{
		AlertChannelID: a.Config.Notify.AlertChannelID,
		Thresholds: alerting.Thresholds{
			Drop:  decimal.NewFromFloat(m.DropThreshold),
			Spike: decimal.NewFromFloat(m.SpikeThreshold),
		},
		PollInterval: a.Config.Scheduler.Interval,
		Cooldown:     m.Cooldown,
	}
}

func (a *App) newCatalog() *catalog.Client {
	c := a.Config.Catalog
	return catalog.NewClient(catalog.ClientOptions{
		BaseURL:         c.BaseURL,
		Timeout:         c.Timeout,
		UserAgent:       c.UserAgent,
		HistoryCacheMB:  c.HistoryCacheMB,
		HistoryCacheTTL: c.HistoryCacheTTL,
	}, a.Logger)
}

func (a *App) newTransport() (delivery.Transport, error) {
	n := a.Config.Notify
	switch n.Transport {
	case "discord":
		return delivery.NewDiscordTransport(delivery.DiscordOptions{
			Token:             n.Discord.Token,
			APIBase:           n.Discord.APIBase,
			Timeout:           n.SendTimeout,
			RequestsPerSecond: n.Discord.RequestsPerSecond,
		}, a.Logger), nil
	case "telegram":
		return delivery.NewTelegramTransport(n.Telegram.BotToken, n.Telegram.APIBase, n.SendTimeout, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown notify.transport %q", n.Transport)
	}
}

func (a *App) newSinks() []delivery.Sink {
	s := a.Config.Stream
	if !s.Enabled {
		return nil
	}
	a.log.Info().Strs("brokers", s.Brokers).Str("topic", s.Topic).Msg("mirroring delivered alerts to kafka")
	return []delivery.Sink{delivery.NewKafkaSink(s.Brokers, s.Topic, s.WriteTimeout)}
}

// newRouter builds the delivery router. Synthetic and dry-run deliveries pass
// no sinks.
func (a *App) newRouter(transport delivery.Transport, store storage.StateStore, rec metrics.Recorder, sinks []delivery.Sink) *delivery.Router {
	return delivery.NewRouter(transport, alerting.NewCooldownGate(store), store, delivery.RouterOptions{
		Concurrency: a.Config.Notify.FanoutConcurrency,
		SendTimeout: a.Config.Notify.SendTimeout,
		Sinks:       sinks,
		Metrics:     rec,
	}, a.Logger)
}

func (a *App) serviceOptions(rec metrics.Recorder) service.Options {
	s := a.Config.Scheduler
	return service.Options{
		Schedule: scheduler.Options{
			Interval:     s.Interval,
			AlignToStart: s.AlignToBucket,
			StartupDelay: s.StartupDelay,
			RunOnStart:   s.RunOnStart,
		},
		Defaults: a.defaults(),
		LockKey:  s.AdvisoryLockKey,
		Metrics:  rec,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// requireStore opens the database or fails with a message naming the command.
func (a *App) requireStore(ctx context.Context, what string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, fmt.Errorf("database.dsn not configured; cannot %s", what)
	}
	return store, closeStore, nil
}

// Run executes the long-running monitoring service and, when configured,
// the administrative HTTP server.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.RequireMonitoring(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "run")
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	a.log.Debug().Strs("migrations", applied).Msg("schema up to date")

	transport, err := a.newTransport()
	if err != nil {
		return err
	}

	var rec metrics.Recorder = metrics.Noop{}
	var metricsHandler http.Handler
	if a.Config.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec = metrics.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	router := a.newRouter(transport, store, rec, a.newSinks())
	defer func() {
		if err := router.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing sinks failed")
		}
	}()

	svc := service.New(a.newCatalog(), store, router, a.serviceOptions(rec), a.Logger)

	g, gctx := errgroup.WithContext(ctx)

	if listen := a.Config.Admin.Listen; listen != "" {
		adminSvc := admin.NewService(store, a.defaults(), svc)
		srv := &http.Server{
			Addr: listen,
			Handler: admin.NewRouter(adminSvc, admin.RouterOptions{
				CORSOrigins: a.Config.Admin.CORSOrigins,
				Metrics:     metricsHandler,
				Health:      store,
			}, a.Logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			a.log.Info().Str("listen", listen).Msg("admin server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		a.log.Info().
			Str("transport", a.Config.Notify.Transport).
			Dur("interval", a.Config.Scheduler.Interval).
			Msg("starting monitoring service")
		err := svc.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("service terminated with error")
			return err
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info().Msg("monitoring service stopped")
	return nil
}
