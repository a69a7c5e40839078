// Package narrowing re-derives a narrowing session from the state the caller
// echoes back on every ask call. Nothing is held between calls: a Session is
// validated, stepped once and discarded.
//
// A session moves AwaitingQ1 -> AwaitingQ2 -> AwaitingQ3 -> Finalized. The
// candidate list is fixed for the whole session and the reported disease is
// always its first entry; answers only shape the narrative.
package narrowing

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

// MaxRounds is the number of questions asked before finalizing.
const MaxRounds = 3

type State int

const (
	AwaitingQ1 State = iota + 1
	AwaitingQ2
	AwaitingQ3
	Finalized
)

func (s State) String() string {
	switch s {
	case AwaitingQ1:
		return "awaiting_q1"
	case AwaitingQ2:
		return "awaiting_q2"
	case AwaitingQ3:
		return "awaiting_q3"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Session is one validated ask step.
type Session struct {
	Symptoms    []string
	TopDiseases []proto.Candidate
	History     []proto.QAPair
	// Answered is the question number whose answer was just supplied.
	Answered int
}

// Start describes a fresh session waiting on question 1.
func Start(symptoms []string, top []proto.Candidate) Session {
	return Session{Symptoms: symptoms, TopDiseases: top}
}

// FromRequest validates an ask request against the number of candidates the
// engine hands out. Any violation is a contract error; nothing is fixed up.
func FromRequest(req proto.AskRequest, candidates int) (Session, error) {
	qn := req.QuestionNumber
	if qn < 1 || qn > MaxRounds {
		return Session{}, apperrors.ContractViolation("question_number must be 1, 2, or 3")
	}
	if len(req.QAHistory) != qn {
		return Session{}, apperrors.ContractViolation("Expected %d Q&A pairs in history, got %d", qn, len(req.QAHistory))
	}
	if len(req.TopDiseases) == 0 {
		return Session{}, apperrors.ContractViolation("top_diseases must not be empty")
	}
	if len(req.TopDiseases) != candidates {
		return Session{}, apperrors.ContractViolation("top_diseases must list exactly %d candidates, got %d", candidates, len(req.TopDiseases))
	}
	for i, c := range req.TopDiseases {
		if strings.TrimSpace(c.Name) == "" {
			return Session{}, apperrors.ContractViolation("top_diseases[%d] has no name", i)
		}
	}
	for i, qa := range req.QAHistory {
		if strings.TrimSpace(qa.Answer) == "" {
			return Session{}, apperrors.ContractViolation("qa_history[%d] has no answer", i)
		}
	}
	return Session{
		Symptoms:    req.Symptoms,
		TopDiseases: req.TopDiseases,
		History:     req.QAHistory,
		Answered:    qn,
	}, nil
}

// State is the state the session is in after the supplied answers.
func (s Session) State() State {
	if s.Answered >= MaxRounds {
		return Finalized
	}
	return State(s.Answered + 1)
}

// NextQuestion is the number of the question to ask next, or 0 once
// finalized.
func (s Session) NextQuestion() int {
	if s.State() == Finalized {
		return 0
	}
	return s.Answered + 1
}

// Disease is the session's fixed answer: the top candidate.
func (s Session) Disease() string {
	return s.TopDiseases[0].Name
}

// RuledOut lists the other candidates in rank order.
func (s Session) RuledOut() []string {
	out := make([]string, 0, len(s.TopDiseases)-1)
	for _, c := range s.TopDiseases[1:] {
		out = append(out, c.Name)
	}
	return out
}
