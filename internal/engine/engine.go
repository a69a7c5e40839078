// Package engine orchestrates a diagnosis: normalize symptoms, vectorize,
// classify, gate on confidence, then either synthesize a report or drive up
// to three narrowing questions. The engine holds no per-session state; the
// caller echoes the narrowing state back on every ask.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/classifier"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gate"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/narrowing"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/synthesizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vectorizer"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/tracing"
)

// Predictor ranks candidates for a feature vector. *classifier.Adapter
// satisfies it.
type Predictor interface {
	Predict(ctx context.Context, vec vectorizer.FeatureVector) (classifier.Prediction, error)
}

// Synthesizer writes reports and narrowing questions. It never fails; the
// boolean reports whether a deterministic fallback was used.
// *synthesizer.Synthesizer satisfies it.
type Synthesizer interface {
	DirectReport(ctx context.Context, in synthesizer.ReportInput) (proto.Report, bool)
	NarrowedReport(ctx context.Context, symptoms []string, top []proto.Candidate, history []proto.QAPair) (proto.Report, bool)
	Question(ctx context.Context, symptoms []string, top []proto.Candidate, history []proto.QAPair, number int) (string, bool)
}

// Options tunes an Engine. Zero values are usable.
type Options struct {
	// Threshold is the gate cutoff on the 0-100 scale. Nil means
	// gate.DefaultThreshold; an explicit zero sends everything to a direct
	// report.
	Threshold *float64
	// TopN is the number of candidates the classifier adapter returns and
	// every ask call must echo back. Zero means 3; it is capped at the
	// number of classes.
	TopN int
	// Recorder receives diagnostic events. It must not block.
	Recorder analytics.Recorder
	Metrics  *metrics.Metrics
}

type Engine struct {
	vocab      *vocabulary.Vocabulary
	normalizer *normalizer.Normalizer
	vectorizer *vectorizer.Vectorizer
	predictor  Predictor
	synth      Synthesizer
	threshold  float64
	candidates int
	recorder   analytics.Recorder
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New builds an Engine over a loaded vocabulary. The normalization index is
// built here, once.
func New(v *vocabulary.Vocabulary, p Predictor, s Synthesizer, opts Options) *Engine {
	threshold := gate.DefaultThreshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	candidates := opts.TopN
	if candidates < 1 {
		candidates = 3
	}
	if n := v.NumClasses(); candidates > n {
		candidates = n
	}
	e := &Engine{
		vocab:      v,
		normalizer: normalizer.New(v, opts.Metrics),
		vectorizer: vectorizer.New(v),
		predictor:  p,
		synth:      s,
		threshold:  threshold,
		candidates: candidates,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		logger:     slog.Default().With("component", "engine"),
	}
	e.logger.Debug("normalization index built", "variants", e.normalizer.Size(), "width", e.vectorizer.Width())
	return e
}

// Threshold returns the configured gate cutoff.
func (e *Engine) Threshold() float64 { return e.threshold }

// Diagnose runs the first pass. A request whose symptoms all fail to
// normalize returns no_symptoms_matched without calling the classifier.
// Only a classifier failure is returned as an error.
func (e *Engine) Diagnose(ctx context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error) {
	ctx, span, finish := e.startSpan(ctx, "engine.diagnose")
	defer finish()
	log := logger.FromContext(ctx).With("component", "engine")

	_, nspan := tracing.StartChildSpan(ctx, "normalize")
	norm := e.normalizer.Normalize(ctx, req.Symptoms)
	nspan.SetAttr("matched", len(norm.Keys))
	nspan.SetAttr("unmatched", len(norm.Unmatched))
	nspan.End()

	if norm.Empty() {
		log.Info("no symptoms matched", "raw", len(req.Symptoms))
		e.count("diagnose", proto.ActionNoSymptomsMatched)
		ev := e.event(ctx, analytics.EventNoMatch, req.Symptoms)
		e.record(ctx, ev)
		return proto.DiagnoseResponse{
			Action:          proto.ActionNoSymptomsMatched,
			TopDiseases:     []proto.Candidate{},
			MatchedSymptoms: []string{},
		}, nil
	}

	vec, err := e.vectorizer.Vectorize(norm.Keys)
	if err != nil {
		return proto.DiagnoseResponse{}, apperrors.Newf(apperrors.ErrInternal, http.StatusInternalServerError, "vectorizing symptoms: %v", err)
	}

	cctx, cspan := tracing.StartChildSpan(ctx, "classify")
	pred, err := e.predictor.Predict(cctx, vec)
	cspan.End()
	if err != nil {
		e.count("diagnose", "error")
		return proto.DiagnoseResponse{}, err
	}
	span.SetAttr("confidence", pred.Confidence)

	decision := gate.Decide(pred.Confidence, e.threshold)
	if e.metrics != nil {
		e.metrics.GateDecisionsTotal.WithLabelValues(decision.String()).Inc()
	}
	resp := proto.DiagnoseResponse{
		Confidence:      pred.Confidence,
		TopDiseases:     pred.Candidates,
		MatchedSymptoms: norm.Keys,
	}
	log.Info("classified",
		"matched", len(norm.Keys),
		"top", pred.Candidates[0].Name,
		"confidence", pred.Confidence,
		"decision", decision.String(),
	)

	sctx, sspan := tracing.StartChildSpan(ctx, "synthesize")
	defer sspan.End()
	switch decision {
	case gate.DirectReport:
		report, fellBack := e.synth.DirectReport(sctx, synthesizer.ReportInput{
			Symptoms:    req.Symptoms,
			Candidates:  pred.Candidates,
			History:     req.History,
			Medications: req.Medications,
		})
		resp.Action = proto.ActionDirectReport
		resp.Report = &report
		e.recordReport(ctx, analytics.ModeDirect, req.Symptoms, pred.Confidence, report, fellBack)
	default:
		q, _ := e.synth.Question(sctx, req.Symptoms, pred.Candidates, nil, 1)
		resp.Action = proto.ActionNeedsNarrowing
		resp.Question = q
		resp.QuestionNumber = 1
		ev := e.event(ctx, analytics.EventNarrowingStarted, req.Symptoms)
		ev.Disease = pred.Candidates[0].Name
		ev.Confidence = pred.Confidence
		e.record(ctx, ev)
	}
	sspan.SetAttr("action", string(resp.Action))
	e.count("diagnose", resp.Action)
	return resp, nil
}

// Ask advances a narrowing session by one answered question. After the third
// answer it returns the final report; the disease is always the first
// candidate the caller echoed back.
func (e *Engine) Ask(ctx context.Context, req proto.AskRequest) (proto.AskResponse, error) {
	ctx, span, finish := e.startSpan(ctx, "engine.ask")
	defer finish()

	sess, err := narrowing.FromRequest(req, e.candidates)
	if err != nil {
		if e.metrics != nil {
			e.metrics.ContractViolations.Inc()
		}
		e.count("ask", "error")
		logger.FromContext(ctx).Warn("narrowing contract violation",
			"component", "engine",
			"question_number", req.QuestionNumber,
			"history", len(req.QAHistory),
			"error", apperrors.Message(err),
		)
		return proto.AskResponse{}, err
	}
	if e.metrics != nil {
		e.metrics.NarrowingStepsTotal.WithLabelValues(strconv.Itoa(sess.Answered)).Inc()
	}
	span.SetAttr("state", sess.State().String())

	if sess.State() == narrowing.Finalized {
		report, fellBack := e.synth.NarrowedReport(ctx, sess.Symptoms, sess.TopDiseases, sess.History)
		e.recordReport(ctx, analytics.ModeNarrowed, sess.Symptoms, sess.TopDiseases[0].Probability, report, fellBack)
		e.count("ask", proto.ActionDirectReport)
		return proto.AskResponse{Action: proto.ActionDirectReport, Report: &report}, nil
	}

	next := sess.NextQuestion()
	q, _ := e.synth.Question(ctx, sess.Symptoms, sess.TopDiseases, sess.History, next)
	e.count("ask", proto.ActionNeedsNarrowing)
	return proto.AskResponse{
		Action:         proto.ActionNeedsNarrowing,
		Question:       q,
		QuestionNumber: next,
	}, nil
}

// Finalize writes a direct-mode report for caller-supplied candidates.
func (e *Engine) Finalize(ctx context.Context, req proto.FinalizeRequest) (proto.FinalizeResponse, error) {
	ctx, _, finish := e.startSpan(ctx, "engine.finalize")
	defer finish()

	if len(req.TopDiseases) == 0 {
		if e.metrics != nil {
			e.metrics.ContractViolations.Inc()
		}
		return proto.FinalizeResponse{}, apperrors.ContractViolation("top_diseases must not be empty")
	}
	for i, c := range req.TopDiseases {
		if strings.TrimSpace(c.Name) == "" {
			return proto.FinalizeResponse{}, apperrors.ContractViolation("top_diseases[%d] has no name", i)
		}
	}
	report, fellBack := e.synth.DirectReport(ctx, synthesizer.ReportInput{
		Symptoms:     req.Symptoms,
		Candidates:   req.TopDiseases,
		Conversation: req.ConversationHistory,
	})
	e.recordReport(ctx, analytics.ModeFinalize, req.Symptoms, req.TopDiseases[0].Probability, report, fellBack)
	e.count("finalize", proto.ActionDirectReport)
	return proto.FinalizeResponse{Action: proto.ActionDirectReport, Report: &report}, nil
}

// Symptoms lists the canonical vocabulary in alphabetical order.
func (e *Engine) Symptoms() proto.SymptomsResponse {
	keys := e.vocab.Sorted()
	return proto.SymptomsResponse{Count: len(keys), Symptoms: keys}
}

// startSpan opens a span for an engine operation. The span tree is logged
// when the operation opened the root span.
func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, *tracing.Span, func()) {
	root := tracing.SpanFromContext(ctx) == nil
	ctx, span := tracing.Start(ctx, name, logger.RequestID(ctx))
	return ctx, span, func() {
		span.End()
		if root {
			span.Log(logger.FromContext(ctx))
		}
	}
}

func (e *Engine) count(operation string, action proto.Action) {
	if e.metrics != nil {
		e.metrics.DiagnosesTotal.WithLabelValues(operation, string(action)).Inc()
	}
}

func (e *Engine) event(ctx context.Context, t analytics.EventType, symptoms []string) analytics.DiagnosticEvent {
	ev := analytics.NewEvent(t)
	ev.Symptoms = symptoms
	ev.RequestID = logger.RequestID(ctx)
	return ev
}

func (e *Engine) recordReport(ctx context.Context, mode string, symptoms []string, confidence float64, r proto.Report, fellBack bool) {
	ev := e.event(ctx, analytics.EventReport, symptoms)
	ev.Mode = mode
	ev.Disease = r.Disease
	ev.Confidence = confidence
	ev.TriageLevel = r.TriageLevel
	ev.Specialist = r.Specialist
	ev.Fallback = fellBack
	e.record(ctx, ev)
}

// record hands the event to the recorder. Recorder panics are logged and
// swallowed.
func (e *Engine) record(ctx context.Context, ev analytics.DiagnosticEvent) {
	if e.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event recorder panicked", "panic", fmt.Sprint(r), "event", ev.ID)
		}
	}()
	e.recorder.Record(ctx, ev)
}
