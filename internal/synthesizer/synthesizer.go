// Package synthesizer turns ranked classifier output into a final report or a
// narrowing question by driving a text generator, then forces the result back
// inside the classifier's answer: the disease is always the top candidate,
// the triage level is always one of the four accepted values, and any
// generator failure degrades to a fixed deterministic report or question.
package synthesizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/resilience"
)

// Confidence labels attached to reports. They describe the path taken, not
// the model's score.
const (
	ConfidenceDirect   = "High"
	ConfidenceNarrowed = "Moderate"
)

// Modes label metrics and logs.
const (
	ModeDirect   = "direct"
	ModeNarrowed = "narrowed"
	ModeQuestion = "question"
)

const (
	fallbackSpecialist = "General Physician"
	maxQuestionRunes   = 300
)

var fallbackQuestions = [...]string{
	1: "Has this condition lasted more than a week?",
	2: "Is the symptom getting progressively worse?",
	3: "Have you experienced this condition before?",
}

// Generator is the text source. textgen.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// DiseaseCatalog lists every disease the classifier can emit. Questions that
// name a catalogued disease outside the candidate set are rejected.
type DiseaseCatalog interface {
	Diseases() []string
}

// ReportInput is the context for a direct-mode report.
type ReportInput struct {
	Symptoms     []string
	Candidates   []proto.Candidate
	History      string
	Medications  string
	Conversation string
}

// Config tunes a Synthesizer.
type Config struct {
	Timeout time.Duration
	Breaker *resilience.CircuitBreaker
	Catalog DiseaseCatalog
	Metrics *metrics.Metrics
}

// Synthesizer produces reports and narrowing questions. It never returns an
// error: every failure path yields a usable fallback.
type Synthesizer struct {
	gen     Generator
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	catalog DiseaseCatalog
	metrics *metrics.Metrics
}

// New returns a Synthesizer over gen. A zero timeout means 30s.
func New(gen Generator, cfg Config) *Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Synthesizer{
		gen:     gen,
		timeout: cfg.Timeout,
		breaker: cfg.Breaker,
		catalog: cfg.Catalog,
		metrics: cfg.Metrics,
	}
}

// DirectReport writes the report for a confident prediction. fellBack
// reports whether the deterministic fallback was used.
func (s *Synthesizer) DirectReport(ctx context.Context, in ReportInput) (report proto.Report, fellBack bool) {
	if len(in.Candidates) == 0 {
		return proto.Report{}, true
	}
	top := in.Candidates[0].Name
	fb := directFallback(top)

	prompt, system := directPrompt(in)
	raw, err := s.generate(ctx, ModeDirect, prompt, system)
	if err == nil {
		report, err = parseReport(raw)
	}
	if err != nil {
		s.fallback(ctx, ModeDirect, err)
		return fb, true
	}
	return enforce(report, fb, ConfidenceDirect, nil), false
}

// NarrowedReport writes the report after the third answered question. The
// diagnosis stays the top candidate; the rest become RuledOut.
func (s *Synthesizer) NarrowedReport(ctx context.Context, symptoms []string, top []proto.Candidate, history []proto.QAPair) (report proto.Report, fellBack bool) {
	if len(top) == 0 {
		return proto.Report{}, true
	}
	ruledOut := make([]string, 0, len(top)-1)
	for _, c := range top[1:] {
		ruledOut = append(ruledOut, c.Name)
	}
	fb := narrowedFallback(top[0].Name)
	fb.RuledOut = ruledOut

	prompt, system := narrowedPrompt(symptoms, top, history)
	raw, err := s.generate(ctx, ModeNarrowed, prompt, system)
	if err == nil {
		report, err = parseReport(raw)
	}
	if err != nil {
		s.fallback(ctx, ModeNarrowed, err)
		return fb, true
	}
	return enforce(report, fb, ConfidenceNarrowed, ruledOut), false
}

// Question returns narrowing question number (1-3) for the candidates.
func (s *Synthesizer) Question(ctx context.Context, symptoms []string, top []proto.Candidate, history []proto.QAPair, number int) (question string, fellBack bool) {
	if number < 1 || number >= len(fallbackQuestions) {
		number = len(fallbackQuestions) - 1
	}
	fb := fallbackQuestions[number]

	prompt, system := questionPrompt(symptoms, top, history, number)
	raw, err := s.generate(ctx, ModeQuestion, prompt, system)
	if err != nil {
		s.fallback(ctx, ModeQuestion, err)
		return fb, true
	}
	q := CleanQuestion(raw)
	switch {
	case q == "":
		err = fmt.Errorf("empty question")
	case len([]rune(q)) > maxQuestionRunes:
		err = fmt.Errorf("question too long (%d runes)", len([]rune(q)))
	default:
		if name, ok := s.outsider(q, top); ok {
			err = fmt.Errorf("question names %q outside the candidate set", name)
		}
	}
	if err != nil {
		s.fallback(ctx, ModeQuestion, err)
		return fb, true
	}
	return q, false
}

// FallbackQuestion returns the fixed question for round number.
func FallbackQuestion(number int) string {
	if number < 1 || number >= len(fallbackQuestions) {
		return ""
	}
	return fallbackQuestions[number]
}

func (s *Synthesizer) generate(ctx context.Context, purpose, prompt, system string) (string, error) {
	if s.gen == nil {
		return "", fmt.Errorf("no text generator configured")
	}
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.TextGenLatency.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
		}
	}()

	call := func(ctx context.Context) (string, error) {
		return resilience.Call(ctx, s.timeout, "textgen."+purpose, func(ctx context.Context) (string, error) {
			return s.gen.Generate(ctx, prompt, system)
		})
	}
	if s.breaker == nil {
		return call(ctx)
	}
	var out string
	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		out, err = call(ctx)
		return err
	})
	return out, err
}

func (s *Synthesizer) fallback(ctx context.Context, mode string, err error) {
	if s.metrics != nil {
		s.metrics.SynthesizerFallbacks.WithLabelValues(mode).Inc()
	}
	logger.FromContext(ctx).Warn("text generation failed, using fallback",
		slog.String("component", "synthesizer"),
		slog.String("mode", mode),
		slog.String("error", err.Error()),
	)
}

// outsider reports the first catalogued disease named in q that is not one
// of the candidates.
func (s *Synthesizer) outsider(q string, top []proto.Candidate) (string, bool) {
	if s.catalog == nil {
		return "", false
	}
	allowed := make(map[string]bool, len(top))
	names := make([]string, 0, len(top))
	for _, c := range top {
		ln := strings.ToLower(c.Name)
		allowed[ln] = true
		names = append(names, ln)
	}
	// Blank out candidate names first so a shorter catalog label inside
	// one ("hepatitis" in "hepatitis b") is not read as an outsider.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	lq := strings.ToLower(q)
	for _, n := range names {
		if n != "" {
			lq = strings.ReplaceAll(lq, n, strings.Repeat(" ", len(n)))
		}
	}
	for _, d := range s.catalog.Diseases() {
		ld := strings.ToLower(d)
		if allowed[ld] {
			continue
		}
		if containsWord(lq, ld) {
			return d, true
		}
	}
	return "", false
}

// containsWord reports whether needle occurs in s bounded by non-letters.
func containsWord(s, needle string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], needle)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(needle)
		if !letterBefore(s, i) && !letterAfter(s, end) {
			return true
		}
		from = i + 1
	}
}

func letterBefore(s string, i int) bool {
	r, size := utf8.DecodeLastRuneInString(s[:i])
	return size > 0 && unicode.IsLetter(r)
}

func letterAfter(s string, i int) bool {
	r, size := utf8.DecodeRuneInString(s[i:])
	return size > 0 && unicode.IsLetter(r)
}

// ---------- Parsing ----------

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```\\s*$")

// StripCodeFence removes a surrounding markdown code fence (``` or ```json)
// and whitespace. Unfenced input is returned trimmed.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractObject returns the outermost {...} span of s, tolerating prose the
// generator wraps around the JSON.
func extractObject(s string) string {
	i := strings.IndexByte(s, '{')
	j := strings.LastIndexByte(s, '}')
	if i < 0 || j <= i {
		return s
	}
	return s[i : j+1]
}

// text accepts a JSON string or an array of strings.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(b, &parts); err == nil {
		*t = text(strings.Join(parts, " "))
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	return fmt.Errorf("expected string, got %s", b)
}

type rawReport struct {
	Disease     text `json:"disease"`
	Confidence  text `json:"confidence"`
	Specialist  text `json:"specialist"`
	Reasoning   text `json:"reasoning"`
	Advice      text `json:"advice"`
	TriageLevel text `json:"triage_level"`
}

func parseReport(raw string) (proto.Report, error) {
	var r rawReport
	body := extractObject(StripCodeFence(raw))
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return proto.Report{}, fmt.Errorf("parsing generated report: %w", err)
	}
	return proto.Report{
		Disease:     strings.TrimSpace(string(r.Disease)),
		Confidence:  strings.TrimSpace(string(r.Confidence)),
		Specialist:  strings.TrimSpace(string(r.Specialist)),
		Reasoning:   strings.TrimSpace(string(r.Reasoning)),
		Advice:      strings.TrimSpace(string(r.Advice)),
		TriageLevel: proto.TriageLevel(strings.TrimSpace(string(r.TriageLevel))),
	}, nil
}

// enforce applies the report post-conditions. Generated disease and
// confidence values are discarded.
func enforce(r, fb proto.Report, confidence string, ruledOut []string) proto.Report {
	r.Disease = fb.Disease
	r.Confidence = confidence
	r.TriageLevel = NormalizeTriage(string(r.TriageLevel))
	if r.Specialist == "" {
		r.Specialist = fb.Specialist
	}
	if r.Reasoning == "" {
		r.Reasoning = fb.Reasoning
	}
	if r.Advice == "" {
		r.Advice = fb.Advice
	}
	r.RuledOut = ruledOut
	return r
}

// NormalizeTriage maps free text onto an accepted triage level. Anything
// unrecognised is minimal.
func NormalizeTriage(s string) proto.TriageLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, lvl := range proto.TriageLevels {
		if s == string(lvl) {
			return lvl
		}
	}
	return proto.TriageMinimal
}

const quotes = "\"'“”` "

var questionPrefix = regexp.MustCompile(`(?i)^(?:question\s*\d*\s*(?:of\s*\d+)?\s*[:.)\-]|q\d+\s*[:.)\-]|\d+\s*[.)])\s*`)

// CleanQuestion trims generated question text to a single bare line.
func CleanQuestion(s string) string {
	s = StripCodeFence(s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, quotes)
	s = questionPrefix.ReplaceAllString(s, "")
	return strings.Trim(s, quotes)
}

func directFallback(disease string) proto.Report {
	return proto.Report{
		Disease:     disease,
		Confidence:  ConfidenceDirect,
		Specialist:  fallbackSpecialist,
		Reasoning:   fmt.Sprintf("Based on the model's prediction for %s. Please consult a healthcare professional.", disease),
		Advice:      "Schedule an appointment with a doctor for proper evaluation.",
		TriageLevel: proto.TriageMinimal,
	}
}

func narrowedFallback(disease string) proto.Report {
	return proto.Report{
		Disease:     disease,
		Confidence:  ConfidenceNarrowed,
		Specialist:  fallbackSpecialist,
		Reasoning:   fmt.Sprintf("Symptoms align with %s. Consult a doctor for confirmation.", disease),
		Advice:      "Schedule an appointment for evaluation.",
		TriageLevel: proto.TriageMinimal,
	}
}
