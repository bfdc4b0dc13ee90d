// Package api assembles the HTTP read API and the /metrics endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/solarcharge/api/consumers"
	"github.com/kilianp07/solarcharge/api/decisions"
	"github.com/kilianp07/solarcharge/core/control/logging"
	"github.com/kilianp07/solarcharge/core/state"
	"github.com/kilianp07/solarcharge/core/targets"
)

// Deps are the sources served by the router. Logs and Gatherer are optional.
type Deps struct {
	Ticks    decisions.LastResulter
	State    *state.Store
	Resolver *targets.Resolver
	Logs     logging.LogStore
	Gatherer prometheus.Gatherer
	// Token protects /api with a bearer token when set.
	Token string
	Now   func() time.Time
}

// NewRouter registers every endpoint.
func NewRouter(d Deps) *mux.Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	r := mux.NewRouter()
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if d.Token != "" {
		api.Use(bearerAuth(d.Token))
	}
	api.Handle("/decisions", decisions.NewLastTickHandler(d.Ticks)).Methods(http.MethodGet)
	api.Handle("/schedules", decisions.NewSchedulesHandler(d.Ticks)).Methods(http.MethodGet)
	if d.Logs != nil {
		api.Handle("/decisions/logs", decisions.NewLogHandler(d.Logs)).Methods(http.MethodGet)
	}
	api.Handle("/consumers", consumers.NewListHandler(d.State, d.Now)).Methods(http.MethodGet)
	api.Handle("/consumers/{id}/mode", consumers.NewModeHandler(d.State)).Methods(http.MethodPut)
	api.Handle("/targets/{consumer}", consumers.NewTargetsHandler(d.State, d.Resolver, d.Now)).Methods(http.MethodGet)
	return r
}

func bearerAuth(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
