package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
)

const keyPrefix = "proba:"

// RemoteStore is the shared second-tier cache. *redis.Client satisfies it.
type RemoteStore interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// CachedService memoizes a deterministic model. Lookups go to an in-process
// LRU, then the remote store (if any), then the model; concurrent misses for
// the same vector share one model call.
type CachedService struct {
	next      Service
	local     *expirable.LRU[string, []float64]
	remote    RemoteStore
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// NewCachedService wraps next. namespace should identify the model and
// vocabulary (the vocabulary fingerprint) so a redeploy never serves stale
// probabilities. remote and m may be nil.
func NewCachedService(next Service, size int, ttl time.Duration, namespace string, remote RemoteStore, m *metrics.Metrics) *CachedService {
	if size <= 0 {
		size = 1024
	}
	return &CachedService{
		next:      next,
		local:     expirable.NewLRU[string, []float64](size, nil, ttl),
		remote:    remote,
		ttl:       ttl,
		namespace: namespace,
		metrics:   m,
		logger:    slog.Default().With("component", "prediction-cache"),
	}
}

// PredictProba implements Service.
func (c *CachedService) PredictProba(ctx context.Context, vec vectorizer.FeatureVector) ([]float64, error) {
	key := c.buildKey(vec)
	if probs, ok := c.lookup(ctx, key); ok {
		return probs, nil
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.PredictionCacheMisses.Inc()
	}
	ch := c.group.DoChan(key, func() (any, error) {
		if probs, ok := c.local.Get(key); ok {
			return probs, nil
		}
		// The shared call outlives any single caller; it keeps the
		// first caller's deadline but not its cancellation.
		sctx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			sctx, cancel = context.WithDeadline(sctx, deadline)
			defer cancel()
		}
		probs, err := c.next.PredictProba(sctx, vec)
		if err != nil {
			return nil, err
		}
		c.store(sctx, key, probs)
		return probs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]float64)), nil
	}
}

func (c *CachedService) lookup(ctx context.Context, key string) ([]float64, bool) {
	if probs, ok := c.local.Get(key); ok {
		c.hit("memory")
		return clone(probs), true
	}
	if c.remote == nil {
		return nil, false
	}
	data, ok, err := c.remote.GetBytes(ctx, key)
	if err != nil {
		c.logger.Warn("remote cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var probs []float64
	if err := json.Unmarshal(data, &probs); err != nil {
		c.logger.Warn("remote cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	c.local.Add(key, probs)
	c.hit("redis")
	return clone(probs), true
}

func (c *CachedService) store(ctx context.Context, key string, probs []float64) {
	c.local.Add(key, clone(probs))
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(probs)
	if err != nil {
		return
	}
	if err := c.remote.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("remote cache set failed", "key", key, "error", err)
	}
}

func (c *CachedService) hit(tier string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.PredictionCacheHits.WithLabelValues(tier).Inc()
	}
}

// Stats returns cumulative hit and miss counts.
func (c *CachedService) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Invalidate drops every cached prediction for this namespace from both
// tiers and returns the number of remote entries removed.
func (c *CachedService) Invalidate(ctx context.Context) (int64, error) {
	c.local.Purge()
	if c.remote == nil {
		return 0, nil
	}
	n, err := c.remote.FlushByPattern(ctx, keyPrefix+c.namespace+":*")
	if err != nil {
		return n, fmt.Errorf("flushing remote predictions: %w", err)
	}
	c.logger.Info("prediction cache invalidated", "namespace", c.namespace, "remote_deleted", n)
	return n, nil
}

func (c *CachedService) buildKey(vec vectorizer.FeatureVector) string {
	return keyPrefix + c.namespace + ":" + vec.Hash()
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
