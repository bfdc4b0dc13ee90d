package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kilianp07/solarcharge/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestTargetsNext(t *testing.T) {
	file := writeFile(t, "targets.yaml", `targets:
  - id: weekday
    consumer_id: car1
    target_soc: 80
    time: "07:30"
    weekdays: mon,tue,wed,thu,fri
    time_zone: Europe/Berlin
`)
	out, err := execute(t, "targets", "next", "--targets", file, "--at", "2025-06-02T12:00:00Z")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, "weekday") || !strings.Contains(out, "2025-06-03T05:30:00Z") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestBudget(t *testing.T) {
	cfg := writeFile(t, "config.yaml", `mqtt:
  broker: tcp://localhost:1883
budget:
  buffer_w: 200
`)
	out, err := execute(t, "budget", "-c", cfg, "--grid", "2500")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if strings.TrimSpace(out) != "2300 W" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPricesChart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/prices", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"france_power_exchanges":[{"values":[{"start_date":"2025-06-02T00:00:00Z","end_date":"2025-06-02T01:00:00Z","price":42}]}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := writeFile(t, "config.yaml", `mqtt:
  broker: tcp://localhost:1883
prices:
  base_url: `+srv.URL+`/prices
  auth:
    client_id: id
    client_secret: secret
    auth_url: `+srv.URL+`/token
`)
	chart := filepath.Join(t.TempDir(), "prices.html")
	if _, err := execute(t, "prices", "chart", "-c", cfg, "--out", chart); err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, err := os.ReadFile(chart)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	if !strings.Contains(string(data), "2025-06-02 00:00") {
		t.Fatal("chart misses the price interval")
	}
}

func TestRunRejectsMissingConfig(t *testing.T) {
	if _, err := execute(t, "-c", filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogLevelFlagOverridesConfig(t *testing.T) {
	t.Cleanup(func() { logLevel = "" })
	cfg := writeFile(t, "config.yaml", `mqtt:
  broker: tcp://localhost:1883
`)
	if _, err := execute(t, "budget", "-c", cfg, "--log-level", "chatty"); err == nil {
		t.Fatal("expected invalid level error")
	}
}

func TestSimulateWallboxes(t *testing.T) {
	path := writeFile(t, "config.yaml", `mqtt:
  broker: tcp://localhost:1883
consumers:
  - id: car1
    max_current: 16
    usable_energy_kwh: 60
    max_soc: 80
  - id: car2
    max_current: 32
    max_phases: 1
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	boxes, err := wallboxes(cfg)
	if err != nil {
		t.Fatalf("wallboxes: %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("expected 2 wallboxes, got %d", len(boxes))
	}
	if boxes[0].Battery.CapacityKWh != 60 || boxes[0].Battery.MaxSoC != 80 || boxes[0].MaxPhases != 3 {
		t.Fatalf("unexpected car1 wallbox %+v", boxes[0].Battery)
	}
	if boxes[1].Battery.CapacityKWh != simFlags.capacity || boxes[1].MaxPhases != 1 {
		t.Fatalf("unexpected car2 wallbox %+v", boxes[1].Battery)
	}
}

func TestSimulateRejectsDropRate(t *testing.T) {
	if _, err := execute(t, "simulate", "--drop-rate", "2"); err == nil {
		t.Fatal("expected error")
	}
}
