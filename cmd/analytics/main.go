// Command analytics starts the standalone diagnostic analytics service.
//
// It consumes diagnostic events from Kafka, persists each one to Postgres,
// aggregates them in memory (reports by mode and triage level, fallback
// rate, average confidence, top diseases) and snapshots the aggregate
// periodically. GET /api/v1/analytics serves the live aggregate.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/postgres"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 8002, "HTTP port for the analytics API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", *port, "topic", cfg.Kafka.Topics.DiagnosticEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	aggregator := analytics.NewAggregator(nil)

	var recent http.HandlerFunc
	var sinks []func(ctx context.Context, event analytics.DiagnosticEvent) error
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, events are aggregated in memory only", "error", err)
	} else {
		defer db.Close()
		st := store.New(db)
		if err := st.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure analytics schema", "error", err)
			os.Exit(1)
		}
		if snap, err := st.LatestSnapshot(ctx); err != nil {
			slog.Warn("reading last snapshot failed", "error", err)
		} else if snap != nil {
			slog.Info("last snapshot", "total_events", snap.TotalEvents, "reports", snap.Reports)
		}
		sinks = append(sinks, st.InsertEvent)
		recent = st.RecentHandler()
		st.StartPeriodicSave(ctx, aggregator, snapshotInterval)
		checker.Register(health.Postgres, db.Ping)
		slog.Info("event persistence enabled", "database", cfg.Postgres.Database)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DiagnosticEvents, analytics.HandleEvent(aggregator, sinks...))
	aggregator.Attach(consumer)

	go func() {
		if err := aggregator.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	checker.Register(health.Kafka, consumer.Ping)

	analyticsHandler := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	if recent != nil {
		mux.HandleFunc("GET /api/v1/analytics/events", recent)
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	processed, skipped := consumer.Counts()
	slog.Info("analytics service stopped", "events_processed", processed, "events_skipped", skipped)
}
