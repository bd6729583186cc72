// Package app is the composition root: it turns a config.Config into a
// running register core.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zjrosen/register/internal/cachemanager"
	"github.com/zjrosen/register/internal/config"
	"github.com/zjrosen/register/internal/flags"
	"github.com/zjrosen/register/internal/infrastructure/gormstore"
	"github.com/zjrosen/register/internal/infrastructure/memory"
	"github.com/zjrosen/register/internal/infrastructure/sqlite"
	"github.com/zjrosen/register/internal/ledger/application"
	"github.com/zjrosen/register/internal/ledger/domain"
	"github.com/zjrosen/register/internal/ledger/events"
	"github.com/zjrosen/register/internal/log"
	"github.com/zjrosen/register/internal/metrics"
	"github.com/zjrosen/register/internal/tracing"
)

// existenceCacheUseCase labels the register existence cache in metrics and logs.
const existenceCacheUseCase = "register-exists"

// App holds the four managers and the infrastructure they share.
type App struct {
	Registers    *application.RegisterManager
	Transactions *application.TransactionManager
	Dockets      *application.DocketManager
	Queries      *application.QueryManager

	// Bus delivers every domain event published by the managers.
	Bus *events.Bus
	// Registry holds the core's collectors and the Go runtime collectors.
	Registry *prometheus.Registry
	// Repository is the backend selected by storage.driver.
	Repository domain.Repository
	Flags      *flags.Registry

	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	tracer        *tracing.Provider
	stopListeners context.CancelFunc
	waitListeners []func()
	closeStore    func() error
}

// New builds an App from cfg. On error everything opened so far is released.
func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Flags: flags.New(cfg.Flags)}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Repository, a.closeStore, err = openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	a.tracer, err = tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry, cfg.Metrics.Namespace)
	a.metrics = m
	a.metricsServer, err = metrics.StartServer(cfg.Metrics.Address, a.Registry)
	if err != nil {
		return nil, err
	}

	a.Bus = events.NewBus(cfg.Events.BufferSize)
	cache := cachemanager.NewInMemoryCacheManager[string, bool](existenceCacheUseCase,
		cfg.Cache.RegisterTTL, cfg.Cache.CleanupInterval,
		cachemanager.WithLookupObserver(m.CacheLookup))

	opts := []application.Option{
		application.WithMetrics(m),
		application.WithTracer(a.tracer.Tracer()),
		application.WithFlags(a.Flags),
		application.WithExistenceCache(cache, cfg.Cache.RegisterTTL),
		application.WithSharedLocks(application.NewRegisterLocks()),
	}
	a.Registers = application.NewRegisterManager(a.Repository, a.Bus, opts...)
	a.Transactions = application.NewTransactionManager(a.Repository, a.Bus, opts...)
	a.Dockets = application.NewDocketManager(a.Repository, a.Bus, opts...)
	a.Queries = application.NewQueryManager(a.Repository, opts...)

	a.startAuditLog()

	log.Info(log.CatConfig, "register core ready",
		"driver", cfg.Storage.Driver, "tracing", a.tracer.Enabled(), "metrics", a.metricsServer.Addr())
	return a, nil
}

// MetricsAddr returns the metrics listener address, empty when not serving.
func (a *App) MetricsAddr() string {
	return a.metricsServer.Addr()
}

// openStore opens the backend named by s.Driver. The returned func closes it.
func openStore(s config.StorageConfig) (domain.Repository, func() error, error) {
	switch s.Driver {
	case config.DriverMemory:
		return memory.NewStore(), func() error { return nil }, nil
	case config.DriverMySQL:
		store, err := gormstore.Connect(gormstore.Config{
			Host:       s.MySQL.Host,
			Port:       s.MySQL.Port,
			Username:   s.MySQL.Username,
			Password:   s.MySQL.Password,
			Database:   s.MySQL.Database,
			LogQueries: s.MySQL.LogQueries,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		db, err := sqlite.NewDB(s.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return db.Repository(), db.Close, nil
	}
}

// startAuditLog subscribes to the seal and delete events and writes them to
// the category log.
func (a *App) startAuditLog() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopListeners = cancel
	a.waitListeners = append(a.waitListeners,
		events.Listen(ctx, a.Bus, func(e domain.DocketConfirmed) {
			log.Info(log.CatEvents, "docket confirmed",
				"register", e.RegisterID, "docket", e.DocketID, "hash", e.Hash, "txs", len(e.TransactionIDs))
		}),
		events.Listen(ctx, a.Bus, func(e domain.RegisterDeleted) {
			log.Info(log.CatEvents, "register deleted", "register", e.RegisterID, "tenant", e.TenantID)
		}),
	)
}

// Close stops listeners and servers and closes the store. Safe to call on a
// partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics server: %w", err))
	}
	if a.stopListeners != nil {
		a.stopListeners()
	}
	if a.Bus != nil {
		a.Bus.Close()
	}
	for _, wait := range a.waitListeners {
		wait()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}
	return errors.Join(errs...)
}
