// Command transform turns raw API snapshots into the structured engagement
// tables.
//
// By default it performs one run and exits non-zero if any entity failed.
// With -interval it runs on a ticker, and with -trigger it runs whenever a
// snapshots-loaded event arrives on Kafka; both long-running modes serve
// health checks and the status API.
//
// Usage:
//
//	go run ./cmd/transform [-config configs/transform.yaml] [-entities contacts,campaigns]
//	go run ./cmd/transform -interval 15m
//	go run ./cmd/transform -trigger
//	go run ./cmd/transform -dry-run
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/flatten"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/publish"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/quality"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/snapshot"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/store/memory"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/store/pgstore"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/engagement-transform/pkg/resilience"
)

const (
	sinkFailureThreshold = 3
	sinkCooldown         = 2 * time.Minute
)

func main() {
	configPath := flag.String("config", "configs/transform.yaml", "path to config file")
	interval := flag.Duration("interval", 0, "run repeatedly at this interval (overrides transform.interval)")
	trigger := flag.Bool("trigger", false, "run on snapshots-loaded events from Kafka")
	dryRun := flag.Bool("dry-run", false, "read real snapshots but publish into memory and print the summary")
	entityList := flag.String("entities", "", "comma-separated entities to run (default: all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *interval > 0 {
		cfg.Transform.Interval = *interval
	}
	if *entityList != "" {
		cfg.Transform.Entities = strings.Split(*entityList, ",")
	}
	entities, err := parseEntities(cfg.Transform.Entities)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting transform",
		"entities", entities,
		"workers", cfg.Transform.Workers,
		"interval", cfg.Transform.Interval,
		"trigger", *trigger,
		"dry_run", *dryRun,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Postgres.AutoMigrate && !*dryRun {
		if err := pgstore.Migrate(cfg.Postgres); err != nil {
			slog.Error("failed to migrate structured store", "error", err)
			os.Exit(1)
		}
	}

	var store publish.Store = pgstore.New(db)
	if *dryRun {
		store = memory.New()
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdown := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdown(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(db.Ping, false))

	opts := []pipeline.Option{pipeline.WithMetrics(m)}
	var reports *quality.ReportStore
	if cfg.Quality.Enabled {
		opts = append(opts, pipeline.WithGate(quality.NewGate(store)))
		if cfg.Quality.PersistRuns && !*dryRun {
			reports = quality.NewReportStore(db)
			opts = append(opts, pipeline.WithReportSaver(reports))
		}
	}

	if cfg.Redis.Enabled && !*dryRun {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		checker.Register("redis", health.Ping(rdb.Ping, true))
		opts = append(opts, pipeline.WithLocker(pipeline.NewRedisLocker(rdb, cfg.Redis.LockKey, cfg.Redis.LockTTL)))
		if cfg.Redis.CacheKeyPattern != "" {
			inv := notify.NewCacheInvalidator(rdb, cfg.Redis.CacheKeyPattern, m)
			opts = append(opts, pipeline.WithNotifiers(
				notify.Guard(inv, resilience.NewBreaker("redis-cache", sinkFailureThreshold, sinkCooldown)),
			))
		}
	}

	if cfg.Kafka.Enabled && !*dryRun {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		events := notify.NewEventNotifier(producer, cfg.Kafka.Topics.TransformCompleted, cfg.Kafka.Topics.QualityReports, m)
		opts = append(opts, pipeline.WithNotifiers(
			notify.Guard(events, resilience.NewBreaker("kafka-events", sinkFailureThreshold, sinkCooldown)),
		))
	}

	runner := pipeline.New(pipeline.Config{
		Flatten: flatten.Options{
			DefaultTenant:  cfg.Transform.DefaultTenant,
			DefaultAccount: cfg.Transform.DefaultAccount,
		},
		Tables: pipeline.Tables{
			Contacts:  cfg.Transform.RawTables.Contacts,
			PushStats: cfg.Transform.RawTables.PushStats,
			Campaigns: cfg.Transform.RawTables.Campaigns,
		},
		Entities:     entities,
		Workers:      cfg.Transform.Workers,
		LoadAttempts: cfg.Transform.LoadAttempts,
		Tracing:      cfg.Tracing.Enabled,
	}, snapshot.NewPostgresSource(db), store, opts...)

	switch {
	case *trigger:
		if !cfg.Kafka.Enabled {
			slog.Error("trigger mode requires kafka.enabled")
			os.Exit(2)
		}
		stopServer := serve(cfg, checker, pipeline.NewHandler(runner, reportLister(reports)), m)
		defer stopServer()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotsLoaded,
			pipeline.TriggerHandler(runner, cfg.Transform.RunTimeout))
		slog.Info("waiting for triggers", "topic", cfg.Kafka.Topics.SnapshotsLoaded, "group", cfg.Kafka.ConsumerGroup)
		if err := consumer.Run(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}

	case cfg.Transform.Interval > 0:
		stopServer := serve(cfg, checker, pipeline.NewHandler(runner, reportLister(reports)), m)
		defer stopServer()
		loop(ctx, runner, cfg.Transform.Interval, cfg.Transform.RunTimeout)

	default:
		code := runOnce(ctx, runner, cfg.Transform.RunTimeout, cfg.Quality.Strict, *dryRun)
		if code != 0 {
			os.Exit(code)
		}
	}

	slog.Info("transform stopped")
}

func parseEntities(names []string) ([]model.EntityType, error) {
	var out []model.EntityType
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		e, ok := model.ParseEntity(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownEntity, name)
		}
		out = append(out, e)
	}
	return out, nil
}

// reportLister avoids handing the status API a typed nil.
func reportLister(s *quality.ReportStore) pipeline.ReportLister {
	if s == nil {
		return nil
	}
	return s
}

func withRunTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// runOnce performs a single run and returns the process exit code: 1 when an
// entity failed, 3 when strict and the Quality Gate flagged violations.
func runOnce(ctx context.Context, runner *pipeline.Runner, timeout time.Duration, strict, dryRun bool) int {
	runCtx, cancel := withRunTimeout(ctx, timeout)
	defer cancel()

	summary, err := runner.Run(runCtx)
	if summary != nil && dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			slog.Error("failed to print summary", "error", err)
		}
	}
	switch {
	case errors.Is(err, apperrors.ErrLockHeld):
		slog.Warn("another run holds the lock; nothing done")
		return 0
	case err != nil:
		slog.Error("transform failed", "error", err)
		return 1
	case strict && summary.Quality != nil && !summary.Quality.Passed:
		slog.Error("quality gate failed", "violations", summary.Quality.TotalViolations)
		return 3
	}
	return 0
}

func loop(ctx context.Context, runner *pipeline.Runner, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		runCtx, cancel := withRunTimeout(ctx, timeout)
		if _, err := runner.Run(runCtx); err != nil && !errors.Is(err, apperrors.ErrLockHeld) {
			slog.Error("scheduled run failed", "error", err)
		}
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// serve starts the health and status server and returns its shutdown func.
func serve(cfg *config.Config, checker *health.Checker, status *pipeline.Handler, m *metrics.Metrics) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	status.Register(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.Timeout(cfg.Server.WriteTimeout), middleware.Observe(m)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("status server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server error", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server shutdown error", "error", err)
		}
	}
}
