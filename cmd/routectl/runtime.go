package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/payroute/internal/app/dynamic"
	"github.com/coachpo/payroute/internal/app/router"
	"github.com/coachpo/payroute/internal/domain/routing"
	"github.com/coachpo/payroute/internal/domain/routingstore"
	"github.com/coachpo/payroute/internal/infra/config"
	"github.com/coachpo/payroute/internal/infra/dynamicrouting"
	"github.com/coachpo/payroute/internal/infra/eventsink"
	"github.com/coachpo/payroute/internal/infra/persistence"
	"github.com/coachpo/payroute/internal/infra/persistence/memory"
	"github.com/coachpo/payroute/internal/infra/persistence/migrations"
	pgstore "github.com/coachpo/payroute/internal/infra/persistence/postgres"
	"github.com/coachpo/payroute/internal/infra/telemetry"
)

const shutdownTimeout = 10 * time.Second

// appRuntime owns every long-lived component a command needs.
type appRuntime struct {
	cfg      config.AppConfig
	logger   *log.Logger
	store    routingstore.Store
	engine   *router.Engine
	pool     *pgxpool.Pool
	sink     routing.EventSink
	reporter *dynamic.Reporter
	metrics  *telemetry.Provider
}

func loadConfig(ctx context.Context, opts *globalOptions, logger *log.Logger) (config.AppConfig, error) {
	cfg, err := config.LoadOrDefault(ctx, opts.configPath)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	logger.Printf("configuration initialised: env=%s input_schema=%s dynamic=%t sink=%s",
		cfg.Environment, cfg.Routing.InputSchema, cfg.DynamicRouting.Enabled, cfg.EventSink.Kind)
	return cfg, nil
}

// openRuntime wires the engine. A non-empty fixtures path serves routing configuration from
// the fixture file instead of PostgreSQL.
func openRuntime(ctx context.Context, opts *globalOptions, fixtures string) (*appRuntime, error) {
	logger := newLogger(opts)
	cfg, err := loadConfig(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	rt := &appRuntime{cfg: cfg, logger: logger}

	metrics, err := telemetry.NewProvider(ctx, cfg.TelemetrySettings())
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	rt.metrics = metrics

	if err := rt.openStore(ctx, fixtures); err != nil {
		rt.close()
		return nil, err
	}

	sink, err := eventsink.New(cfg.EventSink.SinkConfig(), logger)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("initialise event sink: %w", err)
	}
	rt.sink = sink

	engineCfg := cfg.EngineSettings()
	engineCfg.Store = rt.store
	engineCfg.Events = sink
	engineCfg.Logger = logger
	if cfg.DynamicRouting.Enabled {
		reporter, err := dynamic.NewReporter(cfg.DynamicRouting.ReporterSettings(), logger)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("initialise dynamic reporter: %w", err)
		}
		rt.reporter = reporter
		engineCfg.Dynamic = dynamic.NewRouter(dynamic.Config{
			Client:           dynamicrouting.NewHTTPClient(cfg.DynamicRouting.BaseURL, cfg.DynamicRouting.HTTPTimeout),
			Reporter:         reporter,
			Events:           sink,
			Logger:           logger,
			Timeout:          cfg.DynamicRouting.Timeout,
			ContractInitRate: cfg.DynamicRouting.ContractInitRate,
		})
		logger.Printf("dynamic routing enabled: base_url=%s", cfg.DynamicRouting.BaseURL)
	}

	engine, err := router.NewEngine(engineCfg)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("initialise routing engine: %w", err)
	}
	rt.engine = engine
	return rt, nil
}

func (rt *appRuntime) openStore(ctx context.Context, fixtures string) error {
	if path := strings.TrimSpace(fixtures); path != "" {
		file, err := os.Open(path) // #nosec G304 -- path is operator controlled.
		if err != nil {
			return fmt.Errorf("open fixtures: %w", err)
		}
		defer file.Close()
		store, err := memory.Load(file)
		if err != nil {
			return fmt.Errorf("load fixtures %s: %w", path, err)
		}
		rt.store = store
		rt.logger.Printf("routing configuration loaded from fixtures: path=%s", path)
		return nil
	}

	pool, err := rt.openDatabase(ctx)
	if err != nil {
		return err
	}
	rt.store = pgstore.New(pool).Routing
	return nil
}

func (rt *appRuntime) openDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	db := rt.cfg.Database
	if db.RunMigrations {
		if err := migrations.Apply(ctx, db.DSN, db.MigrationsPath, rt.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	pool, err := persistence.Connect(ctx, db.PoolConfig())
	if err != nil {
		return nil, err
	}
	pgstore.ObservePoolMetrics(pool, "primary")
	rt.pool = pool
	return pool, nil
}

// close drains the reporter and releases every resource. Components shut down concurrently
// under one deadline.
func (rt *appRuntime) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(name string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
		mu.Unlock()
	}

	var wg conc.WaitGroup
	if rt.reporter != nil {
		wg.Go(func() { record("dynamic reporter", rt.reporter.Shutdown(ctx)) })
	}
	if closer, ok := rt.sink.(interface{ Close() error }); ok {
		wg.Go(func() { record("event sink", closer.Close()) })
	}
	if rt.metrics != nil {
		wg.Go(func() { record("telemetry", rt.metrics.Shutdown(ctx)) })
	}
	wg.Wait()

	if rt.pool != nil {
		rt.pool.Close()
	}
	err := errors.Join(errs...)
	if err != nil {
		rt.logger.Printf("shutdown completed with errors: %v", err)
	}
	return err
}
