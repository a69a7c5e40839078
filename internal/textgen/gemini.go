package textgen

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini wraps the official genai client.
type Gemini struct {
	cli         *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGemini creates a Gemini generator. An empty API key lets the genai
// client read GOOGLE_API_KEY / GEMINI_API_KEY itself; cfg.BaseURL, when set,
// replaces the Gemini API endpoint.
func NewGemini(ctx context.Context, cfg config.TextGenConfig) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" || strings.HasPrefix(model, "llama") {
		model = defaultGeminiModel
	}
	return &Gemini{
		cli:         cli,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

// Generate passes systemPrompt as the system instruction.
func (g *Gemini) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
	if systemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		gc,
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: %w: no candidates", ErrUnavailable)
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("gemini: %w: empty completion", ErrUnavailable)
	}
	return sb.String(), nil
}
