// Package monitoring reports errors and panics to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/solarcharge/config"
	coremon "github.com/kilianp07/solarcharge/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration. An
// empty DSN yields a no-op monitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{hub: sentry.CurrentHub()}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		s.hub.CaptureException(err)
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id, ok := tags["consumer_id"]; ok {
			scope.SetFingerprint([]string{"{{ default }}", id})
		}
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) ReportPanic(r any) { s.hub.Recover(r) }

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
