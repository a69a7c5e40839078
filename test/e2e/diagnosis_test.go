// Package e2e runs against a deployed diagnosis stack: cmd/diagnosis with a
// real model server, and cmd/analytics consuming from Kafka. Tests skip when
// a service is unreachable.
//
// Run with:
//
//	go test -v -timeout=120s ./test/e2e/...
package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

type e2eConfig struct {
	DiagnosisURL string
	AnalyticsURL string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		DiagnosisURL: envOrDefault("E2E_DIAGNOSIS_URL", "http://localhost:8000"),
		AnalyticsURL: envOrDefault("E2E_ANALYTICS_URL", "http://localhost:8002"),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestPlatformHealth verifies both services respond to health checks.
func TestPlatformHealth(t *testing.T) {
	cfg := loadE2EConfig()

	services := []struct {
		name string
		url  string
	}{
		{"diagnosis /health/live", cfg.DiagnosisURL + "/health/live"},
		{"diagnosis /health/ready", cfg.DiagnosisURL + "/health/ready"},
		{"analytics /health/live", cfg.AnalyticsURL + "/health/live"},
	}

	client := &http.Client{Timeout: 5 * time.Second}

	for _, svc := range services {
		t.Run(svc.name, func(t *testing.T) {
			resp, err := client.Get(svc.url)
			if err != nil {
				t.Skipf("service unavailable: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("expected 200, got %d: %s", resp.StatusCode, body)
			}
		})
	}
}

// TestDiagnoseFlow runs one diagnosis and, when the engine asks to narrow,
// answers all three questions.
func TestDiagnoseFlow(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 60 * time.Second}

	if _, err := client.Get(cfg.DiagnosisURL + "/health/live"); err != nil {
		t.Skipf("diagnosis service unavailable: %v", err)
	}

	var first proto.DiagnoseResponse
	post(t, client, cfg.DiagnosisURL+"/api/v1/diagnose", proto.DiagnoseRequest{
		Symptoms: []string{"high fever", "chills", "sweating", "headache"},
	}, &first)
	t.Logf("diagnose: action=%s confidence=%.1f top=%v", first.Action, first.Confidence, first.TopDiseases)

	switch first.Action {
	case proto.ActionDirectReport:
		if first.Report == nil || first.Report.Disease != first.TopDiseases[0].Name {
			t.Fatalf("report disease must be the top candidate: %+v", first.Report)
		}
		return
	case proto.ActionNeedsNarrowing:
	default:
		t.Fatalf("unexpected action %q", first.Action)
	}

	var history []proto.QAPair
	question, number := first.Question, first.QuestionNumber
	for {
		history = append(history, proto.QAPair{Question: question, Answer: "yes"})
		var resp proto.AskResponse
		post(t, client, cfg.DiagnosisURL+"/api/v1/ask", proto.AskRequest{
			Symptoms:       first.MatchedSymptoms,
			TopDiseases:    first.TopDiseases,
			QuestionNumber: number,
			QAHistory:      history,
		}, &resp)
		if resp.Action == proto.ActionDirectReport {
			if len(history) != 3 {
				t.Fatalf("report after %d questions, want 3", len(history))
			}
			if resp.Report.Disease != first.TopDiseases[0].Name {
				t.Fatalf("narrowing changed the disease: %q", resp.Report.Disease)
			}
			t.Logf("report: %+v", resp.Report)
			return
		}
		if len(history) >= 3 {
			t.Fatalf("still narrowing after %d questions", len(history))
		}
		question, number = resp.Question, resp.QuestionNumber
	}
}

// TestAnalyticsStats verifies the analytics service exposes aggregates.
func TestAnalyticsStats(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.AnalyticsURL + "/api/v1/analytics")
	if err != nil {
		t.Skipf("analytics service unavailable: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]any
	json.NewDecoder(resp.Body).Decode(&stats)
	t.Logf("analytics stats: %v", stats)

	for _, field := range []string{"total_events", "reports", "fallback_rate", "top_diseases"} {
		if _, ok := stats[field]; !ok {
			t.Errorf("missing expected field: %s", field)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func post(t *testing.T, client *http.Client, url string, body, out any) {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST %s: %d %s", url, resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
