// Package textgen provides the narrative text generators the report
// synthesizer drives: Groq's OpenAI-compatible chat API, Google Gemini, and a
// disabled generator that always fails so every report uses the fallback.
package textgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/config"
)

// ErrUnavailable is returned by the disabled generator and for empty
// completions.
var ErrUnavailable = errors.New("text generation unavailable")

// Generator produces raw text for a prompt. Output is usually JSON, possibly
// wrapped in a markdown code fence.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
	Name() string
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.TextGenConfig) (Generator, error) {
	switch cfg.Provider {
	case "groq":
		return NewGroq(cfg), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	case "none", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown text generation provider %q", cfg.Provider)
	}
}

// Disabled never generates text.
type Disabled struct{}

func (Disabled) Generate(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) Name() string { return "none" }
