// Command diagnosis starts the symptom diagnosis service.
//
// It loads the symptom/disease vocabulary, wires the remote classifier
// (behind an in-process LRU and an optional Redis tier), the text generator
// (behind a circuit breaker) and the diagnosis engine, then serves the JSON
// HTTP API, the internal RPC port and Prometheus metrics. Diagnostic events
// go to Kafka when enabled and are always aggregated in-process for
// GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/diagnosis [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/engine"
	gwhandler "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/rpc"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/synthesizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/textgen"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting diagnosis service",
		"port", cfg.Server.Port,
		"rpc_port", cfg.Server.RPCPort,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vocab, err := vocabulary.Load(cfg.Vocabulary.Path)
	if err != nil {
		slog.Error("failed to load vocabulary", "path", cfg.Vocabulary.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("vocabulary loaded", "symptoms", vocab.Len(), "diseases", vocab.NumClasses(), "fingerprint", vocab.Fingerprint())

	m := metrics.New(nil)

	var redisClient *pkgredis.Client
	var remote classifier.RemoteStore
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, prediction cache is in-process only", "error", err)
		} else {
			defer redisClient.Close()
			remote = redisClient
			slog.Info("shared prediction cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	model := classifier.NewHTTPService(cfg.Classifier.URL, cfg.Classifier.Timeout, cfg.Classifier.RetryAttempts)
	cached := classifier.NewCachedService(model, cfg.Classifier.CacheSize, cfg.Classifier.CacheTTL, vocab.Fingerprint(), remote, m)
	predictor := classifier.NewAdapter(cached, vocab.Diseases(), cfg.Engine.TopN, cfg.Classifier.Timeout, m)

	gen, err := textgen.New(ctx, cfg.TextGen)
	if err != nil {
		slog.Warn("text generator unavailable, using deterministic fallbacks", "provider", cfg.TextGen.Provider, "error", err)
		gen = textgen.Disabled{}
	}
	breaker := resilience.NewCircuitBreaker("textgen", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.TextGen.BreakerThreshold,
		ResetTimeout:     cfg.TextGen.BreakerReset,
		OnStateChange: func(name string, state resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
		},
		IsFailure: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})
	synth := synthesizer.New(gen, synthesizer.Config{
		Timeout: cfg.TextGen.Timeout,
		Breaker: breaker,
		Catalog: vocab,
		Metrics: m,
	})
	slog.Info("text generator ready", "generator", gen.Name())

	aggregator := analytics.NewAggregator(nil)
	var recorder analytics.Recorder = aggregator
	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DiagnosticEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, m)
		collector.Start(ctx)
		defer collector.Close()
		recorder = analytics.Tee(collector, aggregator)
		slog.Info("diagnostic events publishing", "topic", cfg.Kafka.Topics.DiagnosticEvents)
	}

	eng := engine.New(vocab, predictor, synth, engine.Options{
		Threshold: &cfg.Engine.ConfidenceThreshold,
		TopN:      cfg.Engine.TopN,
		Recorder:  recorder,
		Metrics:   m,
	})
	slog.Info("engine ready", "confidence_threshold", eng.Threshold(), "top_n", cfg.Engine.TopN)

	checker := health.NewChecker()
	checker.Register(health.Vocabulary, health.Loaded(vocab.Len))
	checker.Register(health.Classifier, model.Ping)
	checker.Register(health.TextGen, health.Breaker(breaker))
	if redisClient != nil {
		checker.Register(health.Redis, redisClient.Ping)
	}
	if collector != nil {
		checker.Register(health.Kafka, health.Dropped(collector.Dropped))
	}

	limiter := ratelimit.New(0)
	defer limiter.Close()

	handler := router.New(gwhandler.New(eng), analytics.NewHandler(aggregator), checker, limiter, m, router.Options{
		AllowOrigins:   cfg.Gateway.AllowOrigins,
		RateLimit:      cfg.Gateway.RateLimit,
		TrustedProxies: cfg.Gateway.TrustedProxies,
		MaxBodyBytes:   cfg.Gateway.MaxBodyBytes,
		RequestTimeout: cfg.Server.WriteTimeout,
		Cache:          cached,
	})

	rpcServer := grpc.NewServer()
	rpc.Register(rpcServer, eng)
	go func() {
		if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.Server.RPCPort)); err != nil {
			slog.Error("rpc server error", "error", err)
		}
	}()

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, "diagnosis")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
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
		rpcServer.Stop()
		if shutdownMetrics != nil {
			shutdownMetrics(shutdownCtx)
		}
	}()

	slog.Info("diagnosis service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("diagnosis service stopped")
}
