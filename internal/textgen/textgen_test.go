package textgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/config"
)

func TestGroqGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		var req chatReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "prompt" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		if req.Temperature != 0.5 || req.MaxTokens != 1024 || req.Model != "llama-3.3-70b-versatile" {
			t.Errorf("unexpected tuning %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"specialist\":\"Dermatologist\"}"}}]}`))
	}))
	defer srv.Close()

	g := NewGroq(config.TextGenConfig{
		APIKey: "k", Model: "llama-3.3-70b-versatile", BaseURL: srv.URL,
		Temperature: 0.5, MaxTokens: 1024,
	})
	out, err := g.Generate(context.Background(), "prompt", "system")
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"specialist":"Dermatologist"}` {
		t.Fatalf("out = %q", out)
	}
}

func TestGroqErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`},
		{"empty choices", http.StatusOK, `{"choices":[]}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewGroq(config.TextGenConfig{BaseURL: srv.URL}).Generate(context.Background(), "p", "")
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func newGeminiServer(t *testing.T, body string) (*Gemini, *string) {
	t.Helper()
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		b, _ := json.Marshal(req)
		got = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), config.TextGenConfig{
		APIKey: "test-key", Model: "gemini-2.0-flash", BaseURL: srv.URL,
		Temperature: 0.5, MaxTokens: 1024,
	})
	if err != nil {
		t.Fatal(err)
	}
	return g, &got
}

func TestGeminiGenerate(t *testing.T) {
	g, sent := newGeminiServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"disease\":"},{"text":"\"Malaria\"}"}]}}]}`)
	out, err := g.Generate(context.Background(), "Patient reports chills.", "You are a clinical assistant.")
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"disease":"Malaria"}` {
		t.Fatalf("parts not joined: %q", out)
	}
	if !strings.Contains(*sent, "Patient reports chills.") || !strings.Contains(*sent, "You are a clinical assistant.") {
		t.Fatalf("prompt or system instruction missing from request: %s", *sent)
	}
	if g.Name() != "gemini:gemini-2.0-flash" {
		t.Fatalf("name = %q", g.Name())
	}
}

func TestGeminiEmptyResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates":[]}`},
		{"no parts", `{"candidates":[{"content":{"role":"model","parts":[]}}]}`},
		{"blank text", `{"candidates":[{"content":{"role":"model","parts":[{"text":"  "}]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newGeminiServer(t, tt.body)
			if _, err := g.Generate(context.Background(), "p", ""); !errors.Is(err, ErrUnavailable) {
				t.Fatalf("expected ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestNewGeminiKeepsGeminiModel(t *testing.T) {
	g, err := NewGemini(context.Background(), config.TextGenConfig{APIKey: "k", Model: "llama-3.3-70b-versatile"})
	if err != nil {
		t.Fatal(err)
	}
	if g.model != defaultGeminiModel {
		t.Fatalf("model = %q", g.model)
	}
}

func TestNewDisabled(t *testing.T) {
	g, err := New(context.Background(), config.TextGenConfig{Provider: "none"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), "p", "s"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := New(context.Background(), config.TextGenConfig{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
