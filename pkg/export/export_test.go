package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

func sample() map[string][]model.ChargingSchedule {
	t0 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	gate := 4140
	return map[string][]model.ChargingSchedule{
		"car2": {{ConsumerID: "car2", ValidFrom: t0, ValidTo: t0.Add(time.Hour), TargetMinPower: 11040, TargetID: "weekday"}},
		"car1": {
			{ConsumerID: "car1", ValidFrom: t0.Add(time.Hour), ValidTo: t0.Add(2 * time.Hour), OnlyChargeOnAtLeastSolarPower: &gate, EstimatedSolarPower: 5000},
			{ConsumerID: "car1", ValidFrom: t0, ValidTo: t0.Add(time.Hour), TargetMinPower: 4140},
		},
	}
}

func TestFlattenOrder(t *testing.T) {
	got := Flatten(sample())
	if len(got) != 3 {
		t.Fatalf("expected 3 schedules, got %d", len(got))
	}
	if got[0].ConsumerID != "car1" || got[0].TargetMinPower != 4140 || got[2].ConsumerID != "car2" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, "csv", Flatten(sample())); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "consumer_id" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][4] != "" || rows[2][4] != "4140" || rows[3][6] != "weekday" {
		t.Fatalf("unexpected rows %v", rows[1:])
	}
	if rows[1][1] != "2025-06-02T12:00:00Z" {
		t.Fatalf("unexpected start %s", rows[1][1])
	}
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", buf.String())
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, "xml", nil); err == nil {
		t.Fatal("expected error")
	}
}
