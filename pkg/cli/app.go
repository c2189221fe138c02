package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/factgraph/pkg/cache"
	"github.com/ekaya-inc/factgraph/pkg/config"
	"github.com/ekaya-inc/factgraph/pkg/converters"
	"github.com/ekaya-inc/factgraph/pkg/database"
	"github.com/ekaya-inc/factgraph/pkg/lock"
	"github.com/ekaya-inc/factgraph/pkg/logging"
	"github.com/ekaya-inc/factgraph/pkg/replication"
	"github.com/ekaya-inc/factgraph/pkg/repositories"
	"github.com/ekaya-inc/factgraph/pkg/resolvers"
	"github.com/ekaya-inc/factgraph/pkg/search"
	"github.com/ekaya-inc/factgraph/pkg/services"
)

// App holds the wired storage stack shared by the commands.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *database.DB
	Facts     repositories.FactRepository
	Objects   repositories.ObjectRepository
	Origins   repositories.OriginRepository
	Converter *converters.FactRecordConverter
	Index     *search.PebbleIndex
	Store     services.ObjectFactStore

	redis   *redis.Client
	nats    *nats.Conn
	metrics *http.Server
}

// loadConfig reads config.yaml with environment overrides, or the environment only.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.EnvOnly {
		return config.LoadFromEnv(opts.Version)
	}
	return config.Load(opts.Version)
}

// openDatabase loads the configuration, builds the logger and connects to PostgreSQL.
// The returned App only has Config, Logger and DB set.
func openDatabase(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(cfg.Env, level)
	if err != nil {
		return nil, err
	}

	connStr := cfg.Database.ConnectionString()
	logger.Debug("Connecting to database", zap.String("url", logging.SanitizeConnectionString(connStr)))
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, errors.New(logging.SanitizeError(err))
	}

	return &App{Config: cfg, Logger: logger, DB: db}, nil
}

// openApp wires repositories, caches, search index, replication and locks into an ObjectFactStore.
func openApp(ctx context.Context, opts *RootOptions) (_ *App, err error) {
	app, err := openDatabase(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	cfg := app.Config
	logger := app.Logger

	app.openRepositories()

	app.redis, err = database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, errors.New(logging.SanitizeError(err))
	}
	var factLayer, objectLayer cache.IDLayer
	if app.redis != nil {
		factLayer = cache.NewRedisLayer(app.redis, "factgraph:fact", cfg.Redis.TTL)
		objectLayer = cache.NewRedisLayer(app.redis, "factgraph:object", cfg.Redis.TTL)
	}

	resolverOpts := resolvers.Options{
		FactByID:          sizing(cfg.Cache.FactByID),
		FactByHash:        sizing(cfg.Cache.FactByHash),
		ObjectByID:        sizing(cfg.Cache.ObjectByID),
		ObjectByTypeValue: sizing(cfg.Cache.ObjectByTypeValue),
	}
	objectCache, err := resolvers.NewObjectResolver(app.Objects, resolverOpts, objectLayer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object resolver: %w", err)
	}
	app.Converter = converters.NewFactRecordConverter(objectCache, app.Facts, logger)
	factCache, err := resolvers.NewFactResolver(app.Facts, app.Converter, resolverOpts, factLayer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fact resolver: %w", err)
	}

	app.Index, err = search.OpenPebbleIndex(cfg.Search.DataDir, logger)
	if err != nil {
		return nil, err
	}

	var notifier replication.Notifier = replication.NoopNotifier{}
	if cfg.NATS.URL != "" {
		app.nats, err = nats.Connect(cfg.NATS.ResolvedURL(), nats.Name("factgraph"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", logging.SanitizeConnectionString(cfg.NATS.URL), err)
		}
		notifier, err = replication.NewJetStreamNotifier(ctx, app.nats, cfg.NATS.Stream, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
	}

	app.Store = services.NewObjectFactStore(&services.ObjectFactStoreDeps{
		Facts:       app.Facts,
		Objects:     app.Objects,
		FactCache:   factCache,
		ObjectCache: objectCache,
		Converter:   app.Converter,
		Index:       app.Index,
		Notifier:    notifier,
		Locks:       lock.NewPostgresProvider(app.DB.Pool, lock.Config{WaitTimeout: cfg.Lock.WaitTimeout, Lease: cfg.Lock.Lease}, logger),
		Retry:       &cfg.Retry,
		Logger:      logger,
	})

	if cfg.MetricsAddr != "" {
		app.serveMetrics(cfg.MetricsAddr)
	}
	return app, nil
}

// openRepositories sets Facts, Objects and Origins on an App returned by openDatabase.
func (a *App) openRepositories() {
	typeCache := repositories.TypeCacheConfig{TTL: a.Config.Cache.TypeCacheTTL, MaxSize: a.Config.Cache.TypeCacheMaxSize}
	a.Facts = repositories.NewFactRepository(a.DB.Pool, typeCache, a.Logger)
	a.Objects = repositories.NewObjectRepository(a.DB.Pool, typeCache, a.Logger)
	a.Origins = repositories.NewOriginRepository(a.DB.Pool, typeCache, a.Logger)
}

func sizing(c config.CacheSpec) resolvers.CacheSizing {
	return resolvers.CacheSizing{MaxSize: c.MaxSize, TTL: c.TTL}
}

func (a *App) serveMetrics(addr string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(cache.Collectors()...)
	registry.MustRegister(services.Collectors()...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.Logger.Info("Serving metrics", zap.String("addr", addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}

// Close releases every connection App holds. It is safe on a partially opened App.
func (a *App) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.nats != nil {
		_ = a.nats.Drain()
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			a.Logger.Error("Failed to close search index", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	_ = a.Logger.Sync()
}
