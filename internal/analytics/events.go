package analytics

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

type EventType string

const (
	EventReport           EventType = "report"
	EventNarrowingStarted EventType = "narrowing_started"
	EventNoMatch          EventType = "no_match"
)

// Mode tells how a report was reached.
const (
	ModeDirect   = "direct"
	ModeNarrowed = "narrowed"
	ModeFinalize = "finalize"
)

// DiagnosticEvent is one engine outcome. Report events carry the report
// fields; Confidence is the classifier's top probability on the 0-100 scale.
type DiagnosticEvent struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	Mode        string            `json:"mode,omitempty"`
	Symptoms    []string          `json:"symptoms"`
	Disease     string            `json:"disease,omitempty"`
	Confidence  float64           `json:"confidence"`
	TriageLevel proto.TriageLevel `json:"triage_level,omitempty"`
	Specialist  string            `json:"specialist,omitempty"`
	Fallback    bool              `json:"fallback,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType) DiagnosticEvent {
	now := time.Now().UTC()
	return DiagnosticEvent{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:      t,
		Timestamp: now,
	}
}

// Recorder accepts events. Implementations must not block the caller.
type Recorder interface {
	Record(ctx context.Context, event DiagnosticEvent)
}

type tee []Recorder

func (t tee) Record(ctx context.Context, event DiagnosticEvent) {
	for _, r := range t {
		r.Record(ctx, event)
	}
}

// Tee fans events out to every non-nil recorder.
func Tee(recorders ...Recorder) Recorder {
	out := make(tee, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
