package decisions

import (
	"net/http"

	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/pkg/export"
)

// NewSchedulesHandler serves the schedules planned by the latest tick via
// GET /api/schedules. format=csv switches from JSON to CSV and consumer_id
// restricts the output to one consumer.
func NewSchedulesHandler(src LastResulter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := src.LastResult()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var schedules []model.ChargingSchedule
		if id := r.URL.Query().Get("consumer_id"); id != "" {
			schedules = res.Schedules[id]
		} else {
			schedules = export.Flatten(res.Schedules)
		}
		format := r.URL.Query().Get("format")
		switch format {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
		case "", "json":
			w.Header().Set("Content-Type", "application/json")
		default:
			http.Error(w, "unsupported format "+format, http.StatusBadRequest)
			return
		}
		if err := export.Write(w, format, schedules); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
