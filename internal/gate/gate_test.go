package gate

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		confidence float64
		threshold  float64
		want       Decision
	}{
		{92, DefaultThreshold, DirectReport},
		{70, DefaultThreshold, DirectReport},
		{69.999, DefaultThreshold, NeedsNarrowing},
		{45, DefaultThreshold, NeedsNarrowing},
		{0, DefaultThreshold, NeedsNarrowing},
		{0, 0, DirectReport},
		{100, 100, DirectReport},
	}
	for _, tt := range tests {
		if got := Decide(tt.confidence, tt.threshold); got != tt.want {
			t.Errorf("Decide(%v, %v) = %s, want %s", tt.confidence, tt.threshold, got, tt.want)
		}
	}
}
