// Package classifier wraps the external probabilistic disease model. The
// Adapter turns a per-class probability array into a ranked, truncated list
// of candidates; the model itself is reached through a Service.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/resilience"
)

// Service returns one probability per class for a feature vector.
type Service interface {
	PredictProba(ctx context.Context, vec vectorizer.FeatureVector) ([]float64, error)
}

// Prediction is the ranked model output. Confidence is the top candidate's
// probability on the 0-100 scale.
type Prediction struct {
	Candidates []proto.Candidate
	Confidence float64
}

// Adapter ranks model output against a fixed label set.
type Adapter struct {
	svc     Service
	labels  []string
	topN    int
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAdapter returns an Adapter over labels (ordered by class index). topN
// below 1 means 3. m may be nil.
func NewAdapter(svc Service, labels []string, topN int, timeout time.Duration, m *metrics.Metrics) *Adapter {
	if topN < 1 {
		topN = 3
	}
	return &Adapter{
		svc:     svc,
		labels:  labels,
		topN:    topN,
		timeout: timeout,
		metrics: m,
		logger:  slog.Default().With("component", "classifier"),
	}
}

// Predict calls the model and ranks the result. Every failure, including a
// probability array of the wrong length, is a collaborator failure; there is
// no fallback for missing probabilities.
func (a *Adapter) Predict(ctx context.Context, vec vectorizer.FeatureVector) (Prediction, error) {
	start := time.Now()
	probs, err := resilience.Call(ctx, a.timeout, "classifier.predict_proba", func(ctx context.Context) ([]float64, error) {
		return a.svc.PredictProba(ctx, vec)
	})
	if a.metrics != nil {
		a.metrics.ClassifierLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		a.logger.Error("classifier call failed", "error", err, "active", len(vec.Active()))
		return Prediction{}, apperrors.CollaboratorFailure("classifier", err)
	}
	if len(probs) == 0 || len(probs) != len(a.labels) {
		return Prediction{}, apperrors.CollaboratorFailure("classifier",
			fmt.Errorf("returned %d probabilities for %d classes", len(probs), len(a.labels)))
	}
	for i, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Prediction{}, apperrors.CollaboratorFailure("classifier",
				fmt.Errorf("probability for class %d is not finite", i))
		}
	}
	cands := Rank(probs, a.labels, a.topN)
	return Prediction{Candidates: cands, Confidence: cands[0].Probability}, nil
}

// Rank orders classes by probability, highest first, breaking ties by the
// lower class index, and keeps the first n. Probabilities are clamped to
// [0,1] and reported on the 0-100 scale.
func Rank(probs []float64, labels []string, n int) []proto.Candidate {
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return probs[order[a]] > probs[order[b]]
	})
	if n > len(order) {
		n = len(order)
	}
	out := make([]proto.Candidate, n)
	for r := 0; r < n; r++ {
		idx := order[r]
		out[r] = proto.Candidate{Name: labels[idx], Probability: clamp(probs[idx]*100, 0, 100)}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
