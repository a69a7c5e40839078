// Package health reports whether the diagnosis service can answer requests.
//
// Every check belongs to a Component, and the component decides what a
// failure means. The vocabulary and the classifier are required: without
// them no diagnosis can be made, so a failure marks the service down and
// readiness fails. The text generator, Redis, PostgreSQL and Kafka are
// optional: reports fall back to fixed text, predictions skip the shared
// cache and events stay in memory, so a failure only degrades the service.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Component names a dependency of the diagnosis or analytics service.
type Component string

const (
	Vocabulary Component = "vocabulary"
	Classifier Component = "classifier"
	TextGen    Component = "textgen"
	Redis      Component = "redis"
	Postgres   Component = "postgres"
	Kafka      Component = "kafka"
)

// Required reports whether a failure of c takes the service down.
func (c Component) Required() bool {
	return c == Vocabulary || c == Classifier
}

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check tests one component. A nil error means it is up.
type Check func(ctx context.Context) error

type ComponentHealth struct {
	Status   Status `json:"status"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// Report is the outcome of one readiness run.
type Report struct {
	Status     Status                        `json:"status"`
	Components map[Component]ComponentHealth `json:"components"`
	Timestamp  string                        `json:"timestamp"`
}

// Ready reports whether the service should take traffic. A degraded service
// still diagnoses.
func (r Report) Ready() bool {
	return r.Status != StatusDown
}

// Failing lists the components that are not up, sorted by name.
func (r Report) Failing() []Component {
	var out []Component
	for name, comp := range r.Components {
		if comp.Status != StatusUp {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Checker runs the registered checks concurrently, each under its own
// timeout, and logs when a component changes status.
type Checker struct {
	mu      sync.Mutex
	checks  map[Component]Check
	last    map[Component]Status
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker returns a Checker whose checks each get two seconds.
func NewChecker() *Checker {
	return &Checker{
		checks:  make(map[Component]Check),
		last:    make(map[Component]Status),
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "health"),
	}
}

// Register sets the check for c, replacing any earlier one.
func (c *Checker) Register(comp Component, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[comp] = check
}

// Run checks every component. The overall status is down if any required
// component failed, degraded if only optional ones did, up otherwise.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	checks := make(map[Component]Check, len(c.checks))
	for comp, check := range c.checks {
		checks[comp] = check
	}
	c.mu.Unlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[Component]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var wg sync.WaitGroup
	var mu sync.Mutex
	for comp, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.runCheck(ctx, comp, check)
			mu.Lock()
			report.Components[comp] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for comp, result := range report.Components {
		switch result.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
		c.noteTransition(comp, result)
	}
	return report
}

func (c *Checker) runCheck(ctx context.Context, comp Component, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := check(ctx)
	result := ComponentHealth{
		Status:   StatusUp,
		Required: comp.Required(),
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Message = err.Error()
		result.Status = StatusDegraded
		if comp.Required() {
			result.Status = StatusDown
		}
	}
	return result
}

func (c *Checker) noteTransition(comp Component, result ComponentHealth) {
	c.mu.Lock()
	prev, seen := c.last[comp]
	c.last[comp] = result.Status
	c.mu.Unlock()
	if !seen || prev == result.Status {
		return
	}
	if result.Status == StatusUp {
		c.logger.Info("component recovered", "name", comp, "was", prev)
		return
	}
	c.logger.Warn("component unhealthy", "name", comp, "status", result.Status, "error", result.Message)
}

// LiveHandler answers liveness requests. The process is alive as long as it
// can serve HTTP.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness requests with the full report; 503 when a
// required component is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Ready() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
