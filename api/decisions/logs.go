// Package decisions exposes control tick results over HTTP.
package decisions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/solarcharge/core/control"
	"github.com/kilianp07/solarcharge/core/control/logging"
)

// LastResulter returns the outcome of the latest tick.
type LastResulter interface {
	LastResult() (control.TickResult, bool)
}

// NewLastTickHandler serves the latest tick result via GET /api/decisions.
// It answers 204 until the first tick completed.
func NewLastTickHandler(src LastResulter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := src.LastResult()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, res)
	})
}

// NewLogHandler serves persisted tick records via GET /api/decisions/logs.
// Supported query parameters are start, end (RFC3339) and consumer_id.
func NewLogHandler(store logging.LogStore) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := logging.LogQuery{ConsumerID: r.URL.Query().Get("consumer_id")}
		for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			s := r.URL.Query().Get(name)
			if s == "" {
				continue
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				http.Error(w, "invalid "+name+": "+err.Error(), http.StatusBadRequest)
				return
			}
			*dst = t
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		writeJSON(w, records)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
