// Package consumers exposes consumer state and charging targets over HTTP.
package consumers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/kilianp07/solarcharge/core/model"
	"github.com/kilianp07/solarcharge/core/state"
	"github.com/kilianp07/solarcharge/core/targets"
)

// View is the JSON representation of one consumer.
type View struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	Kind       string           `json:"kind"`
	CircuitID  string           `json:"circuit_id,omitempty"`
	ChargeMode model.ChargeMode `json:"charge_mode"`
	Priority   int              `json:"priority"`

	SoC             model.TimestampedValue[float64] `json:"soc"`
	PluggedIn       model.TimestampedValue[bool]    `json:"plugged_in"`
	AtHome          model.TimestampedValue[bool]    `json:"at_home"`
	Phases          model.TimestampedValue[int]     `json:"phases"`
	ChargingCurrent model.TimestampedValue[float64] `json:"charging_current"`
	ChargingPower   model.TimestampedValue[int]     `json:"charging_power"`
	Charging        model.TimestampedValue[bool]    `json:"charging"`

	LastCommand    model.Decision `json:"last_command"`
	LastAdjustment time.Time      `json:"last_adjustment"`
}

func newView(c model.Consumer) View {
	return View{
		ID:              c.ID,
		Name:            c.Name,
		Kind:            c.Kind.String(),
		CircuitID:       c.CircuitID,
		ChargeMode:      c.ChargeMode,
		Priority:        c.Priority,
		SoC:             c.SoC,
		PluggedIn:       c.PluggedIn,
		AtHome:          c.AtHome,
		Phases:          c.Phases,
		ChargingCurrent: c.ChargingCurrent,
		ChargingPower:   c.ChargingPower,
		Charging:        c.Charging,
		LastCommand:     c.LastCommand,
		LastAdjustment:  c.LastAdjustment,
	}
}

// NewListHandler serves the consumer snapshot via GET /api/consumers in
// priority order.
func NewListHandler(st *state.Store, now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := st.Snapshot(now())
		out := make([]View, len(snap.Consumers))
		for i, c := range snap.Consumers {
			out[i] = newView(c)
		}
		writeJSON(w, out)
	})
}

type modeRequest struct {
	Mode model.ChargeMode `json:"mode"`
}

// NewModeHandler changes the charge mode via PUT /api/consumers/{id}/mode.
// The new mode applies from the next control tick.
func NewModeHandler(st *state.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := st.SetChargeMode(id, req.Mode); err != nil {
			if errors.Is(err, state.ErrUnknownConsumer) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// NewTargetsHandler serves the relevant targets of one consumer via
// GET /api/targets/{consumer}.
func NewTargetsHandler(st *state.Store, res *targets.Resolver, now func() time.Time) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		at := now()
		c, ok := st.Snapshot(at).Consumer(mux.Vars(r)["consumer"])
		if !ok {
			http.Error(w, "unknown consumer", http.StatusNotFound)
			return
		}
		rel, err := res.RelevantTargets([]model.Consumer{c}, at)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rel == nil {
			rel = []targets.RelevantTarget{}
		}
		writeJSON(w, rel)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
