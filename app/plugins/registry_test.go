package plugins

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/control/logging"
)

func TestBuiltinBackends(t *testing.T) {
	want := []string{"jsonl", "rotating", "sqlite"}
	got := Backends()
	if len(got) != len(want) {
		t.Fatalf("backends %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backends %v", got)
		}
	}
}

func TestNewLogStore(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range Backends() {
		cfg := config.LoggingConfig{Backend: backend, Path: filepath.Join(dir, backend+".log")}
		cfg.SetDefaults()
		store, err := NewLogStore(cfg)
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		rec := logging.LogRecord{Timestamp: time.Now().UTC(), TickID: "t1", BudgetW: 1200}
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("%s append: %v", backend, err)
		}
		recs, err := store.Query(context.Background(), logging.LogQuery{})
		if err != nil || len(recs) != 1 || recs[0].TickID != "t1" {
			t.Fatalf("%s query: %v %+v", backend, err, recs)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("%s close: %v", backend, err)
		}
	}
}

func TestNewLogStoreUnknown(t *testing.T) {
	if _, err := NewLogStore(config.LoggingConfig{Backend: "csv"}); err == nil {
		t.Fatal("expected error")
	}
}
