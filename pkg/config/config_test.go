package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.ConfidenceThreshold != 70 {
		t.Errorf("expected threshold 70, got %v", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Engine.TopN != 3 {
		t.Errorf("expected topN 3, got %d", cfg.Engine.TopN)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
engine:
  confidenceThreshold: 65
vocabulary:
  path: /data/mappings.yaml
textgen:
  provider: gemini
  model: gemini-2.5-flash
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SD_SERVER_PORT", "8123")
	t.Setenv("GEMINI_API_KEY", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Engine.ConfidenceThreshold != 65 {
		t.Errorf("expected threshold 65, got %v", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Server.Port != 8123 {
		t.Errorf("expected port override 8123, got %d", cfg.Server.Port)
	}
	if cfg.TextGen.APIKey != "secret" {
		t.Errorf("expected gemini api key from env, got %q", cfg.TextGen.APIKey)
	}
	if cfg.Engine.TopN != 3 {
		t.Errorf("expected default topN to survive partial file, got %d", cfg.Engine.TopN)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("SD_ENGINE_THRESHOLD", "140")
	_, err := Load("")
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateProvider(t *testing.T) {
	cfg := defaultConfig()
	cfg.TextGen.Provider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown provider to be rejected")
	}
}

func TestValidateTrustedProxies(t *testing.T) {
	cfg := defaultConfig()
	cfg.Gateway.TrustedProxies = []string{"10.0.0.0/8", "127.0.0.1", " 192.168.1.0/24"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid proxies rejected: %v", err)
	}
	cfg.Gateway.TrustedProxies = []string{"load-balancer"}
	if err := cfg.Validate(); !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
