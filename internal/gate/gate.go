// Package gate decides whether a prediction is confident enough to report
// directly or needs narrowing questions first.
package gate

// DefaultThreshold is the confidence, on the 0-100 scale, at or above which a
// report is produced without narrowing.
const DefaultThreshold = 70.0

type Decision int

const (
	DirectReport Decision = iota
	NeedsNarrowing
)

func (d Decision) String() string {
	switch d {
	case DirectReport:
		return "direct_report"
	case NeedsNarrowing:
		return "needs_narrowing"
	default:
		return "unknown"
	}
}

// Decide is total and stateless: confidence >= threshold reports directly.
func Decide(confidence, threshold float64) Decision {
	if confidence >= threshold {
		return DirectReport
	}
	return NeedsNarrowing
}
