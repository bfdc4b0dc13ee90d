package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/solarcharge/config"
	coremon "github.com/kilianp07/solarcharge/core/monitoring"
)

type captureTransport struct {
	events []*sentry.Event
}

func (t *captureTransport) Configure(sentry.ClientOptions)       {}
func (t *captureTransport) SendEvent(e *sentry.Event)            { t.events = append(t.events, e) }
func (t *captureTransport) Flush(time.Duration) bool             { return true }
func (t *captureTransport) FlushWithContext(context.Context) bool { return true }
func (t *captureTransport) Close()                               {}

func TestNewSentryMonitorEmptyDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(coremon.NopMonitor); !ok {
		t.Fatalf("expected NopMonitor, got %T", m)
	}
}

func TestNewSentryMonitorRejectsSampleRate(t *testing.T) {
	if _, err := NewSentryMonitor(config.SentryConfig{DSN: "https://public@example.com/1", TracesSampleRate: 1.5}); err == nil {
		t.Fatal("expected sample rate error")
	}
}

func TestSentryMonitorCapturesTags(t *testing.T) {
	tr := &captureTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: "https://public@example.com/1", Transport: tr})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	m := &sentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("ack timeout"), map[string]string{"consumer_id": "car1", "module": "control"})
	m.ReportPanic("tick panic")
	m.Flush(time.Second)

	if len(tr.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(tr.events))
	}
	ev := tr.events[0]
	if ev.Tags["consumer_id"] != "car1" || ev.Tags["module"] != "control" {
		t.Fatalf("unexpected tags %v", ev.Tags)
	}
	if len(ev.Fingerprint) != 2 || ev.Fingerprint[1] != "car1" {
		t.Fatalf("unexpected fingerprint %v", ev.Fingerprint)
	}
}
