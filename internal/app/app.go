// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/api"
	"github.com/gradewatch/gradewatch/internal/clock/system"
	"github.com/gradewatch/gradewatch/internal/config"
	"github.com/gradewatch/gradewatch/internal/detect"
	"github.com/gradewatch/gradewatch/internal/logging"
	"github.com/gradewatch/gradewatch/internal/metrics"
	"github.com/gradewatch/gradewatch/internal/monitor"
	"github.com/gradewatch/gradewatch/internal/notify"
	"github.com/gradewatch/gradewatch/internal/notify/sinks"
	"github.com/gradewatch/gradewatch/internal/orchestrator"
	"github.com/gradewatch/gradewatch/internal/portal"
	"github.com/gradewatch/gradewatch/internal/session"
	"github.com/gradewatch/gradewatch/internal/storage/memory"
	"github.com/gradewatch/gradewatch/internal/storage/postgres"
)

// App holds the shared, long-lived services: logger, stores, the polling
// orchestrator, and the HTTP control server. It is initialized once at
// startup and fails fast when a critical service cannot be built.
type App struct {
	cfg        config.Config
	configPath string
	logger     *zap.Logger
	snapshots  monitor.SnapshotStore
	alerts     monitor.AlertStore
	orch       *orchestrator.Orchestrator
	server     *api.Server

	closers []func()
}

// New builds the full service graph from the config file at configPath.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, configPath: configPath, logger: logger}
	clock := system.Clock{}

	if err := a.initStores(ctx, clock); err != nil {
		return nil, err
	}

	portalClient, err := portal.NewClient(portal.Config{
		BaseURL:   cfg.Portal.BaseURL,
		LoginPath: cfg.Portal.LoginPath,
		UserAgent: cfg.Portal.UserAgent,
		Timeout:   cfg.Portal.Timeout(),
	}, logger.Named("portal"))
	if err != nil {
		return nil, fmt.Errorf("init portal client: %w", err)
	}
	resolver, err := portal.NewResolver(logger.Named("resolver"))
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}
	fetcher, err := session.NewManager(
		portalClient, portalClient, portal.NewParser(), resolver, clock, logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("init session manager: %w", err)
	}

	detector, err := detect.NewDetector(a.snapshots, logger.Named("detect"))
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}

	sink, err := a.buildSink(ctx)
	if err != nil {
		return nil, err
	}
	dispatcher := notify.NewDispatcher(sink, logger.Named("notify"))

	a.orch, err = orchestrator.New(
		fetcher, detector, dispatcher, a.snapshots, a.alerts, clock,
		a.iterationConfig, logger.Named("orchestrator"))
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	a.server = api.NewServer(a.orch, a.alerts, a.snapshots, logger.Named("api"))
	return a, nil
}

// initStores builds the snapshot and alert stores per db.provider.
func (a *App) initStores(ctx context.Context, clock monitor.Clock) error {
	switch a.cfg.DB.Provider {
	case "postgres":
		a.logger.Info("connecting to PostgreSQL")
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:      a.cfg.DB.DSN,
			MaxConns: a.cfg.DB.MaxConns,
			MinConns: a.cfg.DB.MinConns,
		})
		if err != nil {
			return fmt.Errorf("init postgres pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.snapshots = postgres.NewSnapshotStore(pool)
		a.alerts = postgres.NewAlertStore(pool, clock)
	case "memory":
		a.logger.Info("using in-memory stores, state will not survive a restart")
		a.snapshots = memory.NewSnapshotStore()
		a.alerts = memory.NewAlertStore(clock)
	default:
		return fmt.Errorf("unknown db provider: %s", a.cfg.DB.Provider)
	}
	return nil
}

// buildSink assembles the notification fan-out. The log sink is always
// present; Telegram and Pub/Sub join when configured.
func (a *App) buildSink(ctx context.Context) (monitor.NotificationSink, error) {
	out := []monitor.NotificationSink{sinks.NewLogSink(a.logger.Named("sink"))}

	if a.cfg.Telegram.Enabled {
		tg, err := sinks.NewTelegramSink(a.cfg.Telegram.Token, a.cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("init telegram sink: %w", err)
		}
		a.logger.Info("telegram notifications enabled")
		out = append(out, tg)
	}

	if a.cfg.PubSub.Enabled {
		ps, err := sinks.NewPubSubSink(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
		if err != nil {
			return nil, fmt.Errorf("init pubsub sink: %w", err)
		}
		a.logger.Info("pubsub notifications enabled",
			zap.String("topic", a.cfg.PubSub.TopicName))
		a.closers = append(a.closers, ps.Close)
		out = append(out, ps)
	}

	return sinks.NewMulti(out...), nil
}

// iterationConfig re-reads the config file so account and loop setting edits
// take effect at the next iteration without a restart.
func (a *App) iterationConfig() (orchestrator.IterationConfig, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return orchestrator.IterationConfig{}, err
	}
	return orchestrator.IterationConfig{
		Accounts:       cfg.Accounts,
		Interval:       cfg.Monitor.Interval(),
		MaxConcurrency: cfg.Monitor.MaxConcurrency,
		TaskTimeout:    cfg.Monitor.TaskTimeout(),
		SessionTimeout: cfg.Monitor.SessionTimeout(),
		AutoResolve:    cfg.Monitor.AutoResolve,
	}, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the startup configuration snapshot.
func (a *App) Config() config.Config {
	return a.cfg
}

// Orchestrator returns the polling orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// Alerts returns the alert store.
func (a *App) Alerts() monitor.AlertStore {
	return a.alerts
}

// HTTPServer builds the control-surface http.Server.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close releases held resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
