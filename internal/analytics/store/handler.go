package store

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
)

const (
	defaultRecent = 50
	maxRecent     = 500
)

// RecentHandler serves GET /api/v1/analytics/events?limit=N with the newest
// persisted report events.
func (s *Store) RecentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := s.RecentEvents(r.Context(), parseLimit(r.URL.Query().Get("limit")))
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			s.logger.Error("listing recent events failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "listing events failed", "kind": "internal"})
			return
		}
		if events == nil {
			events = []analytics.DiagnosticEvent{}
		}
		json.NewEncoder(w).Encode(map[string]any{"count": len(events), "events": events})
	}
}

func parseLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return defaultRecent
	}
	if n > maxRecent {
		return maxRecent
	}
	return n
}
