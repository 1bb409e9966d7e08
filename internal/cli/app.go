package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/tsw"
	"github.com/aretw0/tsw/internal/config"
	"github.com/aretw0/tsw/pkg/adapters/redis"
	"github.com/aretw0/tsw/pkg/adapters/sqlite"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/hub"
	"github.com/aretw0/tsw/pkg/instances"
	"github.com/aretw0/tsw/pkg/observability"
	"github.com/aretw0/tsw/pkg/persistence/middleware"
	"github.com/aretw0/tsw/pkg/ports"
)

// flushTimeout bounds how long Close waits for queued notifications.
const flushTimeout = 5 * time.Second

// App holds the components shared by every command: the database, the
// instance manager with its middleware chain and the optional Redis wiring.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *observability.Metrics
	Hooks      domain.LifecycleHooks
	Store      *sqlite.Store
	Instances  ports.InstanceStore
	Manager    *instances.Manager
	Controller *tsw.Controller

	// Origin identifies this process on the Redis channels.
	Origin   string
	Redis    *backend.Client
	Notifier *redis.Notifier
}

// Open wires the application for cfg. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := sqlite.Open(ctx, cfg.DatabasePath(), sqlite.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Store:    store,
		Origin:   uuid.NewString(),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = observability.NewMetrics(app.Registry)
	app.Hooks = observability.Combine(app.Metrics.Hooks(), observability.LogHooks(logger))

	if cfg.Redis.Addr != "" {
		app.Redis = redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		app.Notifier = redis.NewNotifier(app.Redis, app.Origin,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithDropHook(app.Metrics.NotifierDropped),
			redis.WithLogger(logger),
		)
	}

	mws, err := app.middlewares()
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Instances = middleware.Chain(store, mws...)

	h := hub.New[string, *domain.Instance](
		hub.WithLogger(logger),
		hub.WithDropHook(app.Metrics.HubDropped),
	)
	opts := []instances.Option{
		instances.WithHub(h),
		instances.WithHooks(app.Hooks),
		instances.WithLogger(logger),
	}
	if app.Redis != nil {
		opts = append(opts, instances.WithLocker(redis.NewLocker(app.Redis, cfg.Redis.Prefix), cfg.Redis.LockTTL))
	}
	app.Manager = instances.NewManager(app.Instances, opts...)
	app.Controller = tsw.NewController(app.Manager, store, tsw.WithLogger(logger))
	return app, nil
}

// middlewares returns the store chain, outermost first: redaction sees
// events before they are published, encryption is closest to the database.
func (a *App) middlewares() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(a.Config.Redact.Patterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(a.Config.Redact.Patterns)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern: %w", err)
		}
		mws = append(mws, pii)
	}
	if a.Notifier != nil {
		mws = append(mws, middleware.NewNotifyMiddleware(a.Notifier))
	}
	if a.Config.Secrets.Key != "" {
		active, fallback, err := a.Config.Secrets.Keys()
		if err != nil {
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return mws, nil
}

// Close flushes pending notifications and releases the connections.
func (a *App) Close() error {
	if a.Notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		a.Notifier.Flush(ctx)
		cancel()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis client", "err", err)
		}
	}
	return a.Store.Close()
}
