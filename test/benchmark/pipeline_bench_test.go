package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/synthesizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vocabulary"
)

var symptomSets = map[string][]string{
	"exact":   {"itching", "skin_rash", "nodal_skin_eruptions"},
	"spaced":  {"High Fever", "  chills ", "sweating"},
	"partial": {"pain in chest", "fast heart", "breath"},
	"noise":   {"xyzzy", "", "   ", "plugh"},
}

func loadVocab(b *testing.B) *vocabulary.Vocabulary {
	b.Helper()
	v, err := vocabulary.Load("../../configs/mappings.yaml")
	if err != nil {
		b.Fatal(err)
	}
	return v
}

// BenchmarkNormalize measures symptom matching for inputs of varying
// quality.
func BenchmarkNormalize(b *testing.B) {
	n := normalizer.New(loadVocab(b), nil)
	ctx := context.Background()
	for name, raw := range symptomSets {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = n.Normalize(ctx, raw)
			}
		})
	}
}

func BenchmarkNormalizeParallel(b *testing.B) {
	n := normalizer.New(loadVocab(b), nil)
	raw := symptomSets["spaced"]
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		ctx := context.Background()
		for pb.Next() {
			_ = n.Normalize(ctx, raw)
		}
	})
}

func BenchmarkVectorize(b *testing.B) {
	v := loadVocab(b)
	vec := vectorizer.New(v)
	keys := v.Keys()
	for _, k := range []int{1, 5, 17} {
		b.Run(fmt.Sprintf("keys_%d", k), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := vec.Vectorize(keys[:k]); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRank(b *testing.B) {
	v := loadVocab(b)
	labels := v.Diseases()
	probs := make([]float64, len(labels))
	for i := range probs {
		probs[i] = float64((i*7919)%len(labels)) / float64(len(labels))
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = classifier.Rank(probs, labels, 3)
	}
}

type constModel struct{ probs []float64 }

func (c constModel) PredictProba(context.Context, vectorizer.FeatureVector) ([]float64, error) {
	return c.probs, nil
}

// BenchmarkCachedPredict measures the in-process prediction cache hit path.
func BenchmarkCachedPredict(b *testing.B) {
	v := loadVocab(b)
	probs := make([]float64, v.NumClasses())
	probs[0] = 1
	cached := classifier.NewCachedService(constModel{probs: probs}, 1024, time.Minute, v.Fingerprint(), nil, nil)
	vec, err := vectorizer.New(v).Vectorize(v.Keys()[:3])
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cached.PredictProba(ctx, vec); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCleanQuestion(b *testing.B) {
	raw := "```\n\"Question 2 of 3: Do your fevers come and go\n in regular cycles?\"\n```"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = synthesizer.CleanQuestion(raw)
	}
}
