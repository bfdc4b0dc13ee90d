package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

func consumer(id string, prio int) model.Consumer {
	return model.Consumer{ID: id, MinCurrent: 6, MaxCurrent: 16, MaxPhases: 3, Priority: prio}
}

func TestStoreSnapshotOrder(t *testing.T) {
	s := NewStore()
	for _, c := range []model.Consumer{consumer("b", 2), consumer("c", 1), consumer("a", 2)} {
		if err := s.AddConsumer(c); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	snap := s.Snapshot(time.Now())
	got := snap.IDs()
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v want %v", got, want)
		}
	}
}

func TestStoreRejectsDuplicateAndInvalid(t *testing.T) {
	s := NewStore()
	if err := s.AddConsumer(consumer("a", 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddConsumer(consumer("a", 1)); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := s.AddConsumer(model.Consumer{ID: "bad", MaxPhases: 3}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestStoreUpdatesAndIsolation(t *testing.T) {
	s := NewStore()
	_ = s.AddConsumer(consumer("a", 1))
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpdateSoC("a", 42, now); err != nil {
		t.Fatalf("soc: %v", err)
	}
	_ = s.UpdatePluggedIn("a", true, now)
	_ = s.UpdatePhases("a", 1, now)
	_ = s.UpdateAtHome("a", true, now)
	_ = s.UpdateChargingCurrent("a", 8, now)
	_ = s.UpdateChargingPower("a", 1840, now)
	_ = s.UpdateCharging("a", true, now)
	if err := s.UpdateSoC("zzz", 1, now); !errors.Is(err, ErrUnknownConsumer) {
		t.Fatalf("expected ErrUnknownConsumer got %v", err)
	}

	snap := s.Snapshot(now)
	c, ok := snap.Consumer("a")
	if !ok {
		t.Fatalf("consumer missing")
	}
	if c.SoC.Value != 42 || !c.PluggedIn.Value || c.Phases.Value != 1 || c.ChargingPower.Value != 1840 || !c.Charging.Value {
		t.Fatalf("unexpected consumer %+v", c)
	}

	_ = s.UpdateSoC("a", 50, now.Add(time.Minute))
	if c2, _ := snap.Consumer("a"); c2.SoC.Value != 42 {
		t.Fatalf("snapshot mutated by later update")
	}
}

func TestStoreRecordCommand(t *testing.T) {
	s := NewStore()
	_ = s.AddConsumer(consumer("a", 1))
	at := time.Now()
	d := model.Decision{ConsumerID: "a", Action: model.ActionStart, TargetCurrent: 10, TargetPhases: 1, PhaseSwitch: true}
	if err := s.RecordCommand("a", d, at); err != nil {
		t.Fatalf("record: %v", err)
	}
	c, _ := s.Snapshot(at).Consumer("a")
	if !c.LastAdjustment.Equal(at) || !c.LastPhaseSwitch.Equal(at) || c.LastCommand.TargetCurrent != 10 {
		t.Fatalf("bookkeeping not stored: %+v", c)
	}
	if err := s.SetChargeMode("a", model.ChargeModeAuto); err != nil {
		t.Fatalf("mode: %v", err)
	}
	c, _ = s.Snapshot(at).Consumer("a")
	if c.ChargeMode != model.ChargeModeAuto {
		t.Fatalf("mode not stored")
	}
}

func TestStoreSite(t *testing.T) {
	s := NewStore()
	now := time.Now()
	for f, v := range map[SiteField]float64{SiteGridPower: -500, SiteInverterPower: 4000, SiteBatterySoC: 55.5, SiteBatteryPower: 1200} {
		if err := s.UpdateSite(f, v, now); err != nil {
			t.Fatalf("site %s: %v", f, err)
		}
	}
	if err := s.UpdateSite("voltage", 1, now); err == nil {
		t.Fatalf("expected error for unknown field")
	}
	site := s.Snapshot(now).Site
	if site.GridPower.Value != -500 || site.InverterPower.Value != 4000 || site.BatterySoC.Value != 55.5 || site.BatteryPower.Value != 1200 {
		t.Fatalf("unexpected site %+v", site)
	}
}

func TestStoreConcurrentWriters(t *testing.T) {
	s := NewStore()
	_ = s.AddConsumer(consumer("a", 1))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.UpdateSoC("a", float64(i), time.Now())
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot(time.Now())
		}()
	}
	wg.Wait()
}
