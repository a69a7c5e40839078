// Package proto defines the message types shared by the diagnosis engine,
// its HTTP API, the internal JSON-over-TCP RPC layer (see pkg/grpc) and the
// symptomctl client.
//
// The types are hand-written with JSON struct tags; field names match the
// public HTTP payloads.
package proto

// Action is the terminal branch a diagnose or ask call resolved to.
type Action string

const (
	ActionDirectReport      Action = "direct_report"
	ActionNeedsNarrowing    Action = "needs_narrowing"
	ActionNoSymptomsMatched Action = "no_symptoms_matched"
)

// TriageLevel is the coarse urgency attached to a report.
type TriageLevel string

const (
	TriageImmediate TriageLevel = "immediate"
	TriageDelayed   TriageLevel = "delayed"
	TriageMinimal   TriageLevel = "minimal"
	TriageExpectant TriageLevel = "expectant"
)

// TriageLevels lists the accepted triage values in severity order.
var TriageLevels = []TriageLevel{TriageImmediate, TriageDelayed, TriageMinimal, TriageExpectant}

// ---------- Common ----------

// Candidate is one ranked disease with a probability in [0,100].
type Candidate struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
}

// QAPair is one answered narrowing question.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Report is the final structured diagnosis. Disease always equals the
// classifier's top candidate.
type Report struct {
	Disease     string      `json:"disease"`
	Confidence  string      `json:"confidence"`
	Specialist  string      `json:"specialist"`
	Reasoning   string      `json:"reasoning"`
	Advice      string      `json:"advice"`
	TriageLevel TriageLevel `json:"triage_level"`
	RuledOut    []string    `json:"ruled_out,omitempty"`
}

// ---------- Diagnose ----------

// DiagnoseRequest is the input to DiagnosisService.Diagnose.
type DiagnoseRequest struct {
	Symptoms    []string `json:"symptoms"`
	History     string   `json:"history,omitempty"`
	Medications string   `json:"medications,omitempty"`
}

// DiagnoseResponse is the output of DiagnosisService.Diagnose. Report is set
// for direct_report; Question and QuestionNumber for needs_narrowing.
type DiagnoseResponse struct {
	Action          Action      `json:"action"`
	Confidence      float64     `json:"confidence"`
	TopDiseases     []Candidate `json:"top_diseases"`
	MatchedSymptoms []string    `json:"matched_symptoms"`
	Report          *Report     `json:"report,omitempty"`
	Question        string      `json:"question,omitempty"`
	QuestionNumber  int         `json:"question_number,omitempty"`
}

// ---------- Ask ----------

// AskRequest is one narrowing step. QAHistory must hold exactly
// QuestionNumber answered pairs.
type AskRequest struct {
	Symptoms       []string    `json:"symptoms"`
	TopDiseases    []Candidate `json:"top_diseases"`
	QuestionNumber int         `json:"question_number"`
	QAHistory      []QAPair    `json:"qa_history"`
}

// AskResponse is the output of DiagnosisService.Ask.
type AskResponse struct {
	Action         Action  `json:"action"`
	Question       string  `json:"question,omitempty"`
	QuestionNumber int     `json:"question_number,omitempty"`
	Report         *Report `json:"report,omitempty"`
}

// ---------- Finalize ----------

// FinalizeRequest produces a direct-mode report for caller-supplied
// candidates.
type FinalizeRequest struct {
	Symptoms            []string    `json:"symptoms"`
	TopDiseases         []Candidate `json:"top_diseases"`
	ConversationHistory string      `json:"conversation_history,omitempty"`
}

// FinalizeResponse wraps the report.
type FinalizeResponse struct {
	Action Action  `json:"action"`
	Report *Report `json:"report"`
}

// ---------- Catalogue ----------

// SymptomsResponse lists the canonical symptom vocabulary.
type SymptomsResponse struct {
	Count    int      `json:"count"`
	Symptoms []string `json:"symptoms"`
}

// RPC method names served by cmd/diagnosis.
const (
	MethodDiagnose = "DiagnosisService.Diagnose"
	MethodAsk      = "DiagnosisService.Ask"
	MethodFinalize = "DiagnosisService.Finalize"
	MethodSymptoms = "DiagnosisService.Symptoms"
)
