package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/kafka"
)

type DiagnosisStats struct {
	TotalEvents      int64            `json:"total_events"`
	Reports          int64            `json:"reports"`
	NarrowingStarted int64            `json:"narrowing_started"`
	NoMatch          int64            `json:"no_match"`
	ByMode           map[string]int64 `json:"by_mode"`
	ByTriage         map[string]int64 `json:"by_triage"`
	Fallbacks        int64            `json:"fallbacks"`
	FallbackRate     float64          `json:"fallback_rate"`
	AvgConfidence    float64          `json:"avg_confidence"`
	TopDiseases      []DiseaseCount   `json:"top_diseases"`
	EventsPerMinute  float64          `json:"events_per_minute"`
}

type DiseaseCount struct {
	Disease string `json:"disease"`
	Count   int64  `json:"count"`
}

// Aggregator keeps running totals over diagnostic events. It is a Recorder,
// so the diagnosis service can aggregate in-process when no broker is
// configured.
type Aggregator struct {
	mu            sync.RWMutex
	total         int64
	reports       int64
	narrowing     int64
	noMatch       int64
	fallbacks     int64
	confidenceSum float64
	byMode        map[string]int64
	byTriage      map[string]int64
	diseaseCounts map[string]int64
	startTime     time.Time

	consumer *kafka.Consumer[DiagnosticEvent]
	logger   *slog.Logger
}

// NewAggregator returns an empty aggregator. consumer may be nil when events
// arrive through Record.
func NewAggregator(consumer *kafka.Consumer[DiagnosticEvent]) *Aggregator {
	return &Aggregator{
		byMode:        make(map[string]int64),
		byTriage:      make(map[string]int64),
		diseaseCounts: make(map[string]int64),
		startTime:     time.Now(),
		consumer:      consumer,
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// Attach sets the consumer Start reads from. The consumer's handler is
// normally HandleEvent(a), so it can only be built once a exists.
func (a *Aggregator) Attach(consumer *kafka.Consumer[DiagnosticEvent]) {
	a.consumer = consumer
}

// Start runs the attached consumer until ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) error {
	if a.consumer == nil {
		return errors.New("analytics aggregator has no consumer")
	}
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// HandleEvent passes each consumed event to every sink, then to the
// aggregator. A failing sink is logged and does not stop aggregation.
func HandleEvent(agg *Aggregator, sinks ...func(ctx context.Context, event DiagnosticEvent) error) kafka.Handler[DiagnosticEvent] {
	return func(ctx context.Context, key string, event DiagnosticEvent) error {
		var failed error
		for _, sink := range sinks {
			if err := sink(ctx, event); err != nil {
				agg.logger.Error("event sink failed", "id", key, "error", err)
				failed = errors.Join(failed, err)
			}
		}
		agg.Record(ctx, event)
		return failed
	}
}

// Record implements Recorder.
func (a *Aggregator) Record(_ context.Context, event DiagnosticEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	switch event.Type {
	case EventReport:
		a.reports++
		a.confidenceSum += event.Confidence
		if event.Mode != "" {
			a.byMode[event.Mode]++
		}
		if event.TriageLevel != "" {
			a.byTriage[string(event.TriageLevel)]++
		}
		if event.Disease != "" {
			a.diseaseCounts[event.Disease]++
		}
		if event.Fallback {
			a.fallbacks++
		}
	case EventNarrowingStarted:
		a.narrowing++
	case EventNoMatch:
		a.noMatch++
	}
}

func (a *Aggregator) Stats() DiagnosisStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := DiagnosisStats{
		TotalEvents:      a.total,
		Reports:          a.reports,
		NarrowingStarted: a.narrowing,
		NoMatch:          a.noMatch,
		ByMode:           copyCounts(a.byMode),
		ByTriage:         copyCounts(a.byTriage),
		Fallbacks:        a.fallbacks,
		TopDiseases:      topN(a.diseaseCounts, 10),
	}
	if a.reports > 0 {
		stats.FallbackRate = float64(a.fallbacks) / float64(a.reports)
		stats.AvgConfidence = a.confidenceSum / float64(a.reports)
	}
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.EventsPerMinute = float64(stats.TotalEvents) / elapsed
	}
	return stats
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func topN(counts map[string]int64, n int) []DiseaseCount {
	result := make([]DiseaseCount, 0, len(counts))
	for disease, count := range counts {
		result = append(result, DiseaseCount{Disease: disease, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Disease < result[j].Disease
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
