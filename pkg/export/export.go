// Package export writes planned charging schedules as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// Flatten returns the schedules of all consumers ordered by consumer id and
// start time.
func Flatten(byConsumer map[string][]model.ChargingSchedule) []model.ChargingSchedule {
	var out []model.ChargingSchedule
	for _, ss := range byConsumer {
		out = append(out, ss...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ConsumerID != out[j].ConsumerID {
			return out[i].ConsumerID < out[j].ConsumerID
		}
		return out[i].ValidFrom.Before(out[j].ValidFrom)
	})
	return out
}

// WriteJSON writes the schedules to w in JSON format.
func WriteJSON(w io.Writer, schedules []model.ChargingSchedule) error {
	if schedules == nil {
		schedules = []model.ChargingSchedule{}
	}
	return json.NewEncoder(w).Encode(schedules)
}

// WriteCSV writes one row per schedule. The solar gate column is empty for
// slots that may use grid power.
func WriteCSV(w io.Writer, schedules []model.ChargingSchedule) error {
	cw := csv.NewWriter(w)
	header := []string{"consumer_id", "valid_from", "valid_to", "target_min_power_w", "solar_gate_w", "estimated_solar_w", "target_id", "infeasible"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range schedules {
		gate := ""
		if s.OnlyChargeOnAtLeastSolarPower != nil {
			gate = strconv.Itoa(*s.OnlyChargeOnAtLeastSolarPower)
		}
		rec := []string{
			s.ConsumerID,
			s.ValidFrom.UTC().Format(time.RFC3339),
			s.ValidTo.UTC().Format(time.RFC3339),
			strconv.Itoa(s.TargetMinPower),
			gate,
			strconv.Itoa(s.EstimatedSolarPower),
			s.TargetID,
			strconv.FormatBool(s.Infeasible),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format, "json" or "csv".
func Write(w io.Writer, format string, schedules []model.ChargingSchedule) error {
	switch format {
	case "", "json":
		return WriteJSON(w, schedules)
	case "csv":
		return WriteCSV(w, schedules)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
