// Package router wires the diagnosis API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
	gwhandler "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/middleware"
)

// Options configures the edge middleware.
type Options struct {
	AllowOrigins []string
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit int
	// TrustedProxies are the peers whose X-Forwarded-For is believed.
	TrustedProxies []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	// Cache, when set, exposes POST /api/v1/cache/invalidate.
	Cache gwhandler.Invalidator
}

// New builds the HTTP handler.
//
// Route table:
//
//	POST   /api/v1/diagnose    → first pass (report or first question)
//	POST   /api/v1/ask         → one narrowing step
//	POST   /api/v1/finalize    → direct report for given candidates
//	GET    /api/v1/symptoms    → canonical symptom vocabulary
//	GET    /api/v1/analytics   → aggregated diagnostic stats
//	POST   /api/v1/cache/invalidate → drop cached model predictions
//	GET    /health/live        → liveness
//	GET    /health/ready       → readiness
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → RateLimit → LimitBody → Timeout → Metrics → mux
//
// stats, checker, limiter and m may be nil.
func New(h *gwhandler.Handler, stats *analytics.Handler, checker *health.Checker, limiter *ratelimit.Limiter, m *metrics.Metrics, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/diagnose", h.Diagnose)
	mux.HandleFunc("POST /api/v1/ask", h.Ask)
	mux.HandleFunc("POST /api/v1/finalize", h.Finalize)
	mux.HandleFunc("GET /api/v1/symptoms", h.Symptoms)
	if opts.Cache != nil {
		mux.HandleFunc("POST /api/v1/cache/invalidate", h.InvalidateCache(opts.Cache))
	}
	if stats != nil {
		mux.HandleFunc("GET /api/v1/analytics", stats.Stats)
	}
	if checker != nil {
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	}

	var chain http.Handler = mux
	if m != nil {
		chain = pkgmw.Metrics(m)(chain)
	}
	if opts.RequestTimeout > 0 {
		chain = pkgmw.Timeout(opts.RequestTimeout)(chain)
	}
	chain = pkgmw.LimitBody(opts.MaxBodyBytes)(chain)
	if limiter != nil {
		chain = gwmw.RateLimit(limiter, opts.RateLimit, gwmw.NewClientResolver(opts.TrustedProxies))(chain)
	}
	chain = gwmw.CORS(gwmw.DefaultCORSConfig(opts.AllowOrigins))(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
