package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	coremon "github.com/kilianp07/solarcharge/core/monitoring"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) ReportPanic(any)     {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestPublishErrorCaptured(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail, fail, fail}}
	withMockClient(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", AckTopic: "a", BackoffMS: 1}
	cli, err := NewCommander(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.SetCurrent(context.Background(), "car1", 6); err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["consumer_id"] != "car1" || mon.tags["module"] != "mqtt" || mon.tags["action"] != "set_current" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
	if len(mc.published) != 4 {
		t.Fatalf("expected 4 attempts, got %d", len(mc.published))
	}
}
