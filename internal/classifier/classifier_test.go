package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

type fakeService struct {
	probs []float64
	err   error
	calls atomic.Int64
	delay time.Duration
}

func (f *fakeService) PredictProba(ctx context.Context, vec vectorizer.FeatureVector) ([]float64, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.probs, f.err
}

var labels = []string{"Allergy", "Fungal Infection", "Drug Reaction", "Acne"}

func TestRankBreaksTiesByClassIndex(t *testing.T) {
	got := Rank([]float64{0.2, 0.3, 0.3, 0.2}, labels, 3)
	want := []proto.Candidate{
		{Name: "Fungal Infection", Probability: 30},
		{Name: "Drug Reaction", Probability: 30},
		{Name: "Allergy", Probability: 20},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Rank = %+v", got)
	}
}

func TestRankClampsAndTruncates(t *testing.T) {
	got := Rank([]float64{1.2, -0.1}, labels[:2], 5)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].Probability != 100 || got[1].Probability != 0 {
		t.Fatalf("not clamped: %+v", got)
	}
}

func TestAdapterPredict(t *testing.T) {
	svc := &fakeService{probs: []float64{0.05, 0.92, 0.02, 0.01}}
	a := NewAdapter(svc, labels, 3, time.Second, metrics.NewUnregistered())
	pred, err := a.Predict(context.Background(), vectorizer.FeatureVector{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if pred.Confidence != 92 || pred.Candidates[0].Name != "Fungal Infection" || len(pred.Candidates) != 3 {
		t.Fatalf("unexpected prediction %+v", pred)
	}
	for i := 1; i < len(pred.Candidates); i++ {
		if pred.Candidates[i].Probability > pred.Candidates[i-1].Probability {
			t.Fatalf("candidates not descending: %+v", pred.Candidates)
		}
	}
}

func TestAdapterFailures(t *testing.T) {
	tests := []struct {
		name string
		svc  Service
	}{
		{"service error", &fakeService{err: errors.New("connection refused")}},
		{"wrong length", &fakeService{probs: []float64{0.5, 0.5}}},
		{"empty", &fakeService{probs: nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(tt.svc, labels, 3, time.Second, nil)
			_, err := a.Predict(context.Background(), vectorizer.FeatureVector{1})
			if !errors.Is(err, apperrors.ErrCollaboratorFailure) {
				t.Fatalf("expected collaborator failure, got %v", err)
			}
		})
	}
}

func TestAdapterTimeout(t *testing.T) {
	svc := &fakeService{probs: []float64{1, 0, 0, 0}, delay: 200 * time.Millisecond}
	a := NewAdapter(svc, labels, 3, 20*time.Millisecond, nil)
	_, err := a.Predict(context.Background(), vectorizer.FeatureVector{1})
	if !errors.Is(err, apperrors.ErrCollaboratorFailure) || !strings.Contains(err.Error(), "deadline exceeded") {
		t.Fatalf("expected collaborator failure from deadline, got %v", err)
	}
}

func TestHTTPServiceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict_proba" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		var in predictReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(predictResp{Probabilities: []float64{float64(len(in.Vector)), 0}})
	}))
	defer srv.Close()

	s := NewHTTPService(srv.URL+"/", time.Second, 3)
	probs, err := s.PredictProba(context.Background(), vectorizer.FeatureVector{0, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || probs[0] != 3 {
		t.Fatalf("calls=%d probs=%v", calls.Load(), probs)
	}
}

func TestHTTPServiceDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad vector", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewHTTPService(srv.URL, time.Second, 3).PredictProba(context.Background(), vectorizer.FeatureVector{1})
	if err == nil || calls.Load() != 1 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	return b, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.([]byte)
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestCachedServiceTiers(t *testing.T) {
	inner := &fakeService{probs: []float64{0.1, 0.9}}
	remote := &memStore{data: map[string][]byte{}}
	c := NewCachedService(inner, 16, time.Minute, "v1", remote, metrics.NewUnregistered())
	vec := vectorizer.FeatureVector{1, 0, 1}

	for i := 0; i < 3; i++ {
		probs, err := c.PredictProba(context.Background(), vec)
		if err != nil || !reflect.DeepEqual(probs, []float64{0.1, 0.9}) {
			t.Fatalf("probs=%v err=%v", probs, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("model called %d times", inner.calls.Load())
	}
	if len(remote.data) != 1 {
		t.Fatalf("expected remote write, got %d entries", len(remote.data))
	}

	// A fresh process with an empty memory tier reads through to the remote.
	c2 := NewCachedService(inner, 16, time.Minute, "v1", remote, nil)
	if _, err := c2.PredictProba(context.Background(), vec); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 1 {
		t.Fatal("remote hit should not call the model")
	}

	// A different namespace never sees the old entry.
	c3 := NewCachedService(inner, 16, time.Minute, "v2", remote, nil)
	if _, err := c3.PredictProba(context.Background(), vec); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Fatal("new namespace should miss")
	}
}

func TestCachedServiceInvalidate(t *testing.T) {
	inner := &fakeService{probs: []float64{1}}
	remote := &memStore{data: map[string][]byte{"proba:other:abc": []byte("[1]")}}
	c := NewCachedService(inner, 16, time.Minute, "v1", remote, nil)
	vec := vectorizer.FeatureVector{1}
	c.PredictProba(context.Background(), vec)

	n, err := c.Invalidate(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, ok := remote.data["proba:other:abc"]; !ok {
		t.Fatal("other namespace flushed")
	}
	c.PredictProba(context.Background(), vec)
	if inner.calls.Load() != 2 {
		t.Fatalf("expected a fresh model call after invalidation, calls=%d", inner.calls.Load())
	}
}

func TestCachedServiceCollapsesConcurrentMisses(t *testing.T) {
	inner := &fakeService{probs: []float64{1}, delay: 50 * time.Millisecond}
	c := NewCachedService(inner, 16, time.Minute, "v1", nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.PredictProba(context.Background(), vectorizer.FeatureVector{1})
		}()
	}
	wg.Wait()
	if inner.calls.Load() != 1 {
		t.Fatalf("expected one model call, got %d", inner.calls.Load())
	}
}

func TestCachedServiceSharedCallSurvivesFirstCallerCancel(t *testing.T) {
	inner := &fakeService{probs: []float64{0.7, 0.3}, delay: 100 * time.Millisecond}
	c := NewCachedService(inner, 16, time.Minute, "v1", nil, nil)
	vec := vectorizer.FeatureVector{1, 1}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.PredictProba(first, vec)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	second := make(chan []float64, 1)
	go func() {
		probs, err := c.PredictProba(context.Background(), vec)
		if err != nil {
			t.Errorf("waiting caller inherited an error: %v", err)
		}
		second <- probs
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller err = %v", err)
	}
	if probs := <-second; !reflect.DeepEqual(probs, []float64{0.7, 0.3}) {
		t.Fatalf("waiting caller probs = %v", probs)
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("model called %d times", inner.calls.Load())
	}
}

func TestCachedServiceDoesNotCacheErrors(t *testing.T) {
	inner := &fakeService{err: errors.New("down")}
	c := NewCachedService(inner, 16, time.Minute, "v1", nil, nil)
	c.PredictProba(context.Background(), vectorizer.FeatureVector{1})
	c.PredictProba(context.Background(), vectorizer.FeatureVector{1})
	if inner.calls.Load() != 2 {
		t.Fatalf("errors should not be cached, calls=%d", inner.calls.Load())
	}
}
