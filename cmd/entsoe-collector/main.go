// Command entsoe-collector is the long-running ingestion daemon: it loads
// configuration, opens the TimescaleDB-backed store, wires the real-time
// collection, backfill, monitoring, and alert engines behind a scheduler,
// serves the read-only HTTP admin surface, and shuts down gracefully on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/entsoe-ingest/collector/internal/alerting"
	"github.com/entsoe-ingest/collector/internal/backfillengine"
	"github.com/entsoe-ingest/collector/internal/clock"
	"github.com/entsoe-ingest/collector/internal/collector"
	"github.com/entsoe-ingest/collector/internal/domain/alerts"
	"github.com/entsoe-ingest/collector/internal/httpapi"
	"github.com/entsoe-ingest/collector/internal/monitoring"
	"github.com/entsoe-ingest/collector/internal/platform/database"
	"github.com/entsoe-ingest/collector/internal/realtime"
	"github.com/entsoe-ingest/collector/internal/scheduler"
	"github.com/entsoe-ingest/collector/internal/storage/postgres"
	"github.com/entsoe-ingest/collector/internal/storage/postgres/migrations"
	"github.com/entsoe-ingest/collector/internal/transform"
	"github.com/entsoe-ingest/collector/pkg/config"
	"github.com/entsoe-ingest/collector/pkg/logger"
)

// monitoredAreas is the default set of ENTSO-E bidding zone area codes the
// scheduled jobs sweep. There is no dedicated config section for this in
// the recognized option surface, so it is a fixed operational default;
// operators needing a different set currently redeploy with a patched
// binary.
var monitoredAreas = []string{"DE", "FR", "NL", "BE", "AT"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLog := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		appLog.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(ctx, db); err != nil {
			appLog.Fatalf("apply migrations: %v", err)
		}
	}

	store := postgres.New(db)
	clk := clock.RealClock{}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Collector.RequestTimeoutSeconds) * time.Second}
	apiToken := os.Getenv(cfg.Collector.APITokenEnv)
	coll, err := collector.NewHTTPCollector(httpClient, cfg.Collector.BaseURL, apiToken, unwiredDecoder{}, appLog)
	if err != nil {
		appLog.Fatalf("construct collector: %v", err)
	}

	rtEngine := realtime.New(coll, store, store, clk, realtime.RealSleeper{}, appLog)
	bfEngine := backfillengine.New(coll, store, store, store, clk, realtime.RealSleeper{}, backfillengine.Config{
		HistoricalYears:    cfg.Backfill.HistoricalYears,
		ChunkMonths:        cfg.Backfill.ChunkMonths,
		RateLimitDelay:     cfg.Backfill.RateLimitDelay,
		MaxConcurrentAreas: cfg.Backfill.MaxConcurrentAreas,
	}, appLog)
	monEngine := monitoring.New(store, clk, cfg.Monitoring)

	ruleSet, err := resolveAlertRules(cfg)
	if err != nil {
		appLog.Fatalf("load alert rules: %v", err)
	}

	pairs := make([]alerting.MonitoredPair, 0, len(monitoredAreas)*2)
	for _, area := range monitoredAreas {
		pairs = append(pairs, alerting.MonitoredPair{AreaCode: area, DataType: "actual_load"})
		pairs = append(pairs, alerting.MonitoredPair{AreaCode: area, DataType: "day_ahead_prices"})
	}

	// alertEngine is constructed after the scheduler (it reads the
	// scheduler's job failure counts), but the scheduler's health_check
	// job needs to call into it; buildJobs takes a pointer to this
	// variable and dereferences it lazily, once jobs actually run.
	var alertEngine *alerting.Engine
	jobs := buildJobs(cfg, rtEngine, bfEngine, &alertEngine)
	sched := scheduler.New(db, cfg.Scheduler, clk, appLog, jobs)
	alertEngine = alerting.New(store, monEngine, sched, alerting.NewLogSink(appLog), clk, ruleSet, pairs)

	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			appLog.Fatalf("start scheduler: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	admin := httpapi.New(bfEngine, alertEngine, readinessAdapter{started: cfg.Scheduler.Enabled}, registry, appLog)
	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + itoa(cfg.Server.Port),
		Handler:           admin.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		appLog.Infof("admin HTTP surface listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Errorf("admin server error: %v", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpapi.ShutdownTimeout)
	defer cancel()
	if err := httpapi.Shutdown(context.Background(), server); err != nil {
		appLog.Errorf("admin server shutdown error: %v", err)
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Stop(shutdownCtx); err != nil {
			appLog.Errorf("scheduler shutdown error: %v", err)
		}
	}
	appLog.Info("shutdown complete")
}

// resolveAlertRules loads rules from the configured YAML file, or falls
// back to the engine's built-in defaults when no path is set.
func resolveAlertRules(cfg *config.Config) ([]alerts.Rule, error) {
	defaultCooldown := time.Duration(cfg.Alerts.DefaultCooldownMinutes) * time.Minute
	if cfg.Alerts.RulesPath == "" {
		return alerting.DefaultRules(defaultCooldown), nil
	}
	return alerting.LoadRulesFromFile(cfg.Alerts.RulesPath, defaultCooldown)
}

type readinessAdapter struct {
	started bool
}

// Ready reports the process ready once the scheduler's own Start (which
// performs the database preflight) has completed successfully.
func (r readinessAdapter) Ready() bool {
	return r.started
}

// unwiredDecoder is the DocumentDecoder passed to the HTTP collector. The
// concrete ENTSO-E XML wire grammar is an external collaborator per the
// spec's Non-goals; this decoder always reports no data until an operator
// builds and wires a real one.
type unwiredDecoder struct{}

func (unwiredDecoder) Decode(body []byte, params collector.DocumentParams) (transform.Document, error) {
	return transform.Document{}, collector.ErrNoData
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
