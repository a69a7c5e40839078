package synthesizer

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

const triageGuide = `TRIAGE LEVELS (choose one based on condition severity):
- "immediate" - Life-threatening, needs emergency care (heart attack, stroke, severe bleeding)
- "delayed" - Serious but stable, can wait hours (fractures, moderate infections)
- "minimal" - Minor condition, outpatient care (common cold, minor pain)
- "expectant" - Chronic/terminal conditions requiring palliative care`

var roundIntent = [...]string{
	1: "Ask about a symptom that is common in one condition but rare in the others.",
	2: "Based on previous answers, ask about a distinguishing feature between remaining candidates.",
	3: "Ask the decisive question to pick the single most likely condition from the candidates.",
}

func rankedList(cands []proto.Candidate) string {
	var sb strings.Builder
	for i, c := range cands {
		fmt.Fprintf(&sb, "%d. %s: %.1f%% confidence\n", i+1, c.Name, c.Probability)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func directPrompt(in ReportInput) (prompt, system string) {
	disease := in.Candidates[0].Name
	system = `You are a professional medical assistant. You MUST use the model's predictions.
You are NOT allowed to suggest any disease outside the provided predictions.
Always respond with valid JSON only.`

	var sb strings.Builder
	sb.WriteString("Generate a diagnosis report for the #1 ranked prediction.\n\n")
	fmt.Fprintf(&sb, "PATIENT SYMPTOMS: %s\n", strings.Join(in.Symptoms, ", "))
	if in.History != "" {
		fmt.Fprintf(&sb, "PATIENT HISTORY: %s\n", in.History)
	}
	if in.Medications != "" {
		fmt.Fprintf(&sb, "CURRENT MEDICATIONS: %s\n", in.Medications)
	}
	if in.Conversation != "" {
		fmt.Fprintf(&sb, "CONVERSATION: %s\n", in.Conversation)
	}
	fmt.Fprintf(&sb, "\nMODEL PREDICTIONS (USE #1 AS THE DIAGNOSIS):\n%s\n\n", rankedList(in.Candidates))
	fmt.Fprintf(&sb, "IMPORTANT: The \"disease\" field MUST be exactly %q.\n\n", disease)
	sb.WriteString(triageGuide)
	fmt.Fprintf(&sb, `

Generate a JSON report:
{
    "disease": %q,
    "confidence": "High",
    "specialist": "Type of specialist",
    "reasoning": "2-3 sentence explanation",
    "advice": "Actionable next steps",
    "triage_level": "immediate/delayed/minimal/expectant"
}

Return ONLY valid JSON.`, disease)
	return sb.String(), system
}

func questionPrompt(symptoms []string, top []proto.Candidate, history []proto.QAPair, number int) (prompt, system string) {
	var names strings.Builder
	for i, c := range top {
		fmt.Fprintf(&names, "%d. %s\n", i+1, c.Name)
	}
	system = fmt.Sprintf(`You are a medical diagnostician. Your ONLY goal is to determine which of these %d conditions is most likely:
%s
You must ask questions that DIFFERENTIATE between ONLY these options.
Do NOT consider or mention any other diseases.`, len(top), names.String())

	qa := "None yet"
	if len(history) > 0 {
		var sb strings.Builder
		for i, p := range history {
			fmt.Fprintf(&sb, "Q%d: %s\nA%d: %s\n", i+1, p.Question, i+1, p.Answer)
		}
		qa = strings.TrimRight(sb.String(), "\n")
	}

	prompt = fmt.Sprintf(`Ask ONE yes/no question to help determine which of the %d predictions is correct.

PATIENT SYMPTOMS: %s

TOP PREDICTIONS (you must narrow down to ONE of these):
%s

PREVIOUS Q&A:
%s

QUESTION %d of 3:
%s

Return ONLY the question text. No numbering, no prefix.`,
		len(top), strings.Join(symptoms, ", "), rankedList(top), qa, number, roundIntent[number])
	return prompt, system
}

func narrowedPrompt(symptoms []string, top []proto.Candidate, history []proto.QAPair) (prompt, system string) {
	disease := top[0].Name
	system = fmt.Sprintf(`You are a medical assistant. The diagnosis is already determined: %s.
Your job is to provide a brief explanation, advice, and triage level. Keep responses SHORT.
Always respond with valid JSON only.`, disease)

	pairs := make([]string, len(history))
	for i, p := range history {
		pairs[i] = fmt.Sprintf("Q: %s A: %s", p.Question, p.Answer)
	}

	prompt = fmt.Sprintf(`The model has determined the diagnosis is **%s**.

Patient symptoms: %s
Q&A context: %s

%s

Generate a SHORT report:
{
    "disease": %q,
    "confidence": "Moderate",
    "specialist": "Specialist type",
    "reasoning": "1-2 sentences explaining match",
    "advice": "1 sentence advice",
    "triage_level": "immediate/delayed/minimal/expectant"
}

Return ONLY valid JSON.`, disease, strings.Join(symptoms, ", "), strings.Join(pairs, "; "), triageGuide, disease)
	return prompt, system
}
