package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/resilience"
)

type predictReq struct {
	Vector []float64 `json:"vector"`
}

type predictResp struct {
	Probabilities []float64 `json:"probabilities"`
}

// HTTPService calls a model server exposing POST {base}/predict_proba.
// Transport errors and 5xx responses are retried a bounded number of times;
// 4xx responses and undecodable bodies are not.
type HTTPService struct {
	http    *http.Client
	baseURL string
	retry   resilience.RetryConfig
}

// NewHTTPService returns a client for the model server at baseURL.
// attempts below 1 means a single try.
func NewHTTPService(baseURL string, timeout time.Duration, attempts int) *HTTPService {
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPService{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		retry: resilience.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
		},
	}
}

// PredictProba implements Service.
func (s *HTTPService) PredictProba(ctx context.Context, vec vectorizer.FeatureVector) ([]float64, error) {
	body, err := json.Marshal(predictReq{Vector: vec})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	var out predictResp
	err = resilience.Retry(ctx, "classifier.http", s.retry, func() error {
		return s.post(ctx, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Probabilities, nil
}

func (s *HTTPService) post(ctx context.Context, body []byte, out *predictResp) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/predict_proba", bytes.NewReader(body))
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return resilience.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("model server: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode < 500 {
			return resilience.Permanent(err)
		}
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("decoding model response: %w", err))
	}
	return nil
}

// Ping checks GET {base}/health.
func (s *HTTPService) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health: %s", resp.Status)
	}
	return nil
}
