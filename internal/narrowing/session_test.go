package narrowing

import (
	"errors"
	"reflect"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

var top = []proto.Candidate{
	{Name: "Migraine", Probability: 45},
	{Name: "Hypertension", Probability: 30},
	{Name: "Common Cold", Probability: 10},
}

func history(n int) []proto.QAPair {
	out := make([]proto.QAPair, n)
	for i := range out {
		out[i] = proto.QAPair{Question: "q", Answer: "yes"}
	}
	return out
}

func TestFromRequestAdvancesOneRoundAtATime(t *testing.T) {
	tests := []struct {
		qn    int
		state State
		next  int
	}{
		{1, AwaitingQ2, 2},
		{2, AwaitingQ3, 3},
		{3, Finalized, 0},
	}
	for _, tt := range tests {
		s, err := FromRequest(proto.AskRequest{TopDiseases: top, QuestionNumber: tt.qn, QAHistory: history(tt.qn)}, len(top))
		if err != nil {
			t.Fatalf("qn=%d: %v", tt.qn, err)
		}
		if s.State() != tt.state || s.NextQuestion() != tt.next {
			t.Errorf("qn=%d: state=%s next=%d", tt.qn, s.State(), s.NextQuestion())
		}
		if s.Disease() != "Migraine" {
			t.Errorf("disease changed to %q", s.Disease())
		}
	}
}

func TestStartAwaitsFirstQuestion(t *testing.T) {
	s := Start([]string{"headache"}, top)
	if s.State() != AwaitingQ1 || s.NextQuestion() != 1 {
		t.Fatalf("state=%s next=%d", s.State(), s.NextQuestion())
	}
}

func TestFromRequestContractViolations(t *testing.T) {
	tests := []struct {
		name string
		req  proto.AskRequest
		msg  string
	}{
		{"question zero", proto.AskRequest{TopDiseases: top, QuestionNumber: 0}, "question_number must be 1, 2, or 3"},
		{"question four", proto.AskRequest{TopDiseases: top, QuestionNumber: 4, QAHistory: history(4)}, "question_number must be 1, 2, or 3"},
		{"history too short", proto.AskRequest{TopDiseases: top, QuestionNumber: 2, QAHistory: history(1)}, "Expected 2 Q&A pairs in history, got 1"},
		{"history replayed", proto.AskRequest{TopDiseases: top, QuestionNumber: 1, QAHistory: history(2)}, "Expected 1 Q&A pairs in history, got 2"},
		{"no candidates", proto.AskRequest{QuestionNumber: 1, QAHistory: history(1)}, "top_diseases must not be empty"},
		{"one candidate", proto.AskRequest{TopDiseases: top[:1], QuestionNumber: 3, QAHistory: history(3)}, "top_diseases must list exactly 3 candidates, got 1"},
		{"extra candidates", proto.AskRequest{TopDiseases: append(append([]proto.Candidate{}, top...), proto.Candidate{Name: "Malaria"}, proto.Candidate{Name: "Typhoid"}), QuestionNumber: 3, QAHistory: history(3)}, "top_diseases must list exactly 3 candidates, got 5"},
		{"blank answer", proto.AskRequest{TopDiseases: top, QuestionNumber: 1, QAHistory: []proto.QAPair{{Question: "q", Answer: " "}}}, "qa_history[0] has no answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRequest(tt.req, 3)
			if !errors.Is(err, apperrors.ErrContractViolation) {
				t.Fatalf("expected contract violation, got %v", err)
			}
			if apperrors.Message(err) != tt.msg {
				t.Fatalf("message = %q, want %q", apperrors.Message(err), tt.msg)
			}
		})
	}
}

func TestRuledOutIgnoresAnswers(t *testing.T) {
	for _, answer := range []string{"yes", "no", "not sure"} {
		h := []proto.QAPair{{Question: "a", Answer: answer}, {Question: "b", Answer: answer}, {Question: "c", Answer: answer}}
		s, err := FromRequest(proto.AskRequest{TopDiseases: top, QuestionNumber: 3, QAHistory: h}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(s.RuledOut(), []string{"Hypertension", "Common Cold"}) {
			t.Fatalf("RuledOut = %q", s.RuledOut())
		}
	}
}
