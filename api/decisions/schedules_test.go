package decisions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/solarcharge/core/control"
	"github.com/kilianp07/solarcharge/core/model"
)

func scheduleResult() control.TickResult {
	t0 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	return control.TickResult{TickID: "t1", Schedules: map[string][]model.ChargingSchedule{
		"car1": {{ConsumerID: "car1", ValidFrom: t0, ValidTo: t0.Add(time.Hour), TargetMinPower: 4140}},
		"car2": {{ConsumerID: "car2", ValidFrom: t0, ValidTo: t0.Add(2 * time.Hour), TargetMinPower: 11040}},
	}}
}

func TestSchedulesHandlerJSON(t *testing.T) {
	h := NewSchedulesHandler(lastFunc(func() (control.TickResult, bool) { return scheduleResult(), true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/schedules?consumer_id=car2", nil))
	var got []model.ChargingSchedule
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].TargetMinPower != 11040 {
		t.Fatalf("unexpected schedules %+v", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/schedules?consumer_id=ghost", nil))
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSchedulesHandlerCSV(t *testing.T) {
	h := NewSchedulesHandler(lastFunc(func() (control.TickResult, bool) { return scheduleResult(), true }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/api/schedules?format=csv", nil))
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type %s", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "car1,") || !strings.HasPrefix(lines[2], "car2,") {
		t.Fatalf("unexpected csv:\n%s", rr.Body.String())
	}
}

func TestSchedulesHandlerStates(t *testing.T) {
	rr := httptest.NewRecorder()
	NewSchedulesHandler(lastFunc(func() (control.TickResult, bool) { return control.TickResult{}, false })).
		ServeHTTP(rr, httptest.NewRequest("GET", "/api/schedules", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	NewSchedulesHandler(lastFunc(func() (control.TickResult, bool) { return scheduleResult(), true })).
		ServeHTTP(rr, httptest.NewRequest("GET", "/api/schedules?format=xml", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
