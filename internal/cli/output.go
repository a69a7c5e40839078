package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func printCandidates(w io.Writer, top []proto.Candidate) {
	for i, c := range top {
		fmt.Fprintf(w, "  %d. %s (%.1f%%)\n", i+1, c.Name, c.Probability)
	}
}

func printReport(w io.Writer, r *proto.Report) {
	if r == nil {
		fmt.Fprintln(w, "no report")
		return
	}
	if formatFlag == "json" {
		printJSON(w, r)
		return
	}
	fmt.Fprintf(w, "Disease:     %s\n", r.Disease)
	fmt.Fprintf(w, "Confidence:  %s\n", r.Confidence)
	fmt.Fprintf(w, "Triage:      %s\n", r.TriageLevel)
	fmt.Fprintf(w, "Specialist:  %s\n", r.Specialist)
	fmt.Fprintf(w, "Reasoning:   %s\n", r.Reasoning)
	fmt.Fprintf(w, "Advice:      %s\n", r.Advice)
	if len(r.RuledOut) > 0 {
		fmt.Fprintf(w, "Ruled out:   %s\n", strings.Join(r.RuledOut, ", "))
	}
}
