// Package app wires the access authorization subsystem's components
// together and runs them, replacing the teacher's hidden-global singletons
// (database handle, event bus, pruner) with an explicit container
// constructed at startup and passed into each component, per spec.md §9.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/skatamatic/blulok-cloud/internal/audience"
	"github.com/skatamatic/blulok-cloud/internal/cascade"
	"github.com/skatamatic/blulok-cloud/internal/config"
	"github.com/skatamatic/blulok-cloud/internal/denylist"
	"github.com/skatamatic/blulok-cloud/internal/fallback"
	"github.com/skatamatic/blulok-cloud/internal/httpapi"
	"github.com/skatamatic/blulok-cloud/internal/httpserver"
	"github.com/skatamatic/blulok-cloud/internal/platform"
	"github.com/skatamatic/blulok-cloud/internal/pruner"
	"github.com/skatamatic/blulok-cloud/internal/routepass"
	"github.com/skatamatic/blulok-cloud/internal/schedule"
	"github.com/skatamatic/blulok-cloud/internal/signing"
	"github.com/skatamatic/blulok-cloud/internal/store"
	"github.com/skatamatic/blulok-cloud/internal/telemetry"
	"github.com/skatamatic/blulok-cloud/internal/timesync"
	"github.com/skatamatic/blulok-cloud/internal/unicast"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, wires the access authorization subsystem, and starts the
// mode the caller selected: "api" (Route Pass / fallback HTTP surface) or
// "worker" (cascade listener + pruner).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting blulok-cloud",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	signer, err := signing.New(cfg.OperatorPrivateKeyB64, cfg.OperatorPublicKeyB64)
	if err != nil {
		return fmt.Errorf("loading operator signing key: %w", err)
	}

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	deps := buildDeps(db, signer, cfg)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, deps)
	case "worker":
		return runWorker(ctx, logger, rdb, cfg, deps)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// deps holds every component the access authorization subsystem is built
// from, constructed once and shared between the api and worker modes'
// handlers/loops — the "explicit container" spec.md §9 calls for in place
// of the teacher's hidden-global singletons.
type deps struct {
	devices   *store.DeviceStore
	access    *store.AccessStore
	issuances *store.RoutePassStore
	denyStore *denylist.Store
	optimizer *denylist.Optimizer
	builder   *denylist.Builder
	orch      *routepass.Orchestrator
	fallback  *fallback.Verifier
	pruner    *pruner.Pruner
	timesync  *timesync.Builder
}

func buildDeps(db *pgxpool.Pool, signer *signing.Service, cfg *config.Config) *deps {
	devices := store.NewDeviceStore(db)
	access := store.NewAccessStore(db)
	schedules := store.NewScheduleStore(db)
	issuances := store.NewRoutePassStore(db)
	denyStore := denylist.NewStore(db)
	optimizer := denylist.NewOptimizer(issuances)
	builder := denylist.New(signer)

	audienceResolver := audience.New(access)
	scheduleResolver := schedule.New(schedules, access, devices, slog.Default())

	ttl := cfg.RoutePassTTL()
	orch := routepass.New(signer, audienceResolver, scheduleResolver, devices, issuances, ttl, slog.Default())
	fb := fallback.New(devices, orch, cfg.FallbackIATSkew())

	p := pruner.New(denyStore, cfg.PruneInterval(), slog.Default())
	ts := timesync.New(signer)

	return &deps{
		devices:   devices,
		access:    access,
		issuances: issuances,
		denyStore: denyStore,
		optimizer: optimizer,
		builder:   builder,
		orch:      orch,
		fallback:  fb,
		pruner:    p,
		timesync:  ts,
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	d *deps,
) error {
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)

	issueHandler := httpapi.NewIssueHandler(logger, d.orch, d.fallback)
	srv.APIRouter.Mount("/", issueHandler.Routes())

	adminHandler := httpapi.NewAdminHandler(logger, d.denyStore, d.issuances, d.pruner)
	srv.APIRouter.Mount("/admin", adminHandler.Routes())

	timeSyncHandler := httpapi.NewTimeSyncHandler(logger, d.timesync)
	srv.Router.Mount("/lock", timeSyncHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker runs the cascade subscriber (C10) and the pruner (C11), both
// independent of the request-handling path. Shutdown drains the cascade
// queue (Subscriber.Run closes the Listener on ctx.Done) before the pruner
// loop returns, per spec.md §9's "shutdown draining the cascade queue
// before stopping the pruner".
func runWorker(ctx context.Context, logger *slog.Logger, rdb *redis.Client, cfg *config.Config, d *deps) error {
	logger.Info("worker started")

	sink := unicast.NewRedisSink(rdb, cfg.FacilityChannelPrefix)
	listener := cascade.New(d.access, d.devices, d.denyStore, d.optimizer, d.builder, sink, cfg.RoutePassTTL(), logger)
	subscriber := cascade.NewSubscriber(rdb, cfg.CascadeChannel, listener, logger)

	pruneCtx, stopPruner := context.WithCancel(context.Background())
	defer stopPruner()
	pruneDone := make(chan struct{})
	go func() {
		defer close(pruneDone)
		d.pruner.Run(pruneCtx)
	}()

	timeSyncDone := make(chan struct{})
	go func() {
		defer close(timeSyncDone)
		d.timesync.Run(ctx, d.access, sink, cfg.TimeSyncInterval(), logger)
	}()

	err := subscriber.Run(ctx)
	stopPruner()
	<-pruneDone
	<-timeSyncDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cascade subscriber: %w", err)
	}
	return nil
}
