// Package app wires the configured components into a running service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/solarcharge/api"
	"github.com/kilianp07/solarcharge/app/plugins"
	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/allocation"
	"github.com/kilianp07/solarcharge/core/command"
	"github.com/kilianp07/solarcharge/core/control"
	"github.com/kilianp07/solarcharge/core/control/logging"
	"github.com/kilianp07/solarcharge/core/forecast"
	coremetrics "github.com/kilianp07/solarcharge/core/metrics"
	"github.com/kilianp07/solarcharge/core/model"
	coremon "github.com/kilianp07/solarcharge/core/monitoring"
	"github.com/kilianp07/solarcharge/core/schedule"
	"github.com/kilianp07/solarcharge/core/state"
	"github.com/kilianp07/solarcharge/core/targets"
	"github.com/kilianp07/solarcharge/infra/logger"
	"github.com/kilianp07/solarcharge/infra/metrics"
	"github.com/kilianp07/solarcharge/infra/monitoring"
	"github.com/kilianp07/solarcharge/infra/mqtt"
	"github.com/kilianp07/solarcharge/infra/prices"
	"github.com/kilianp07/solarcharge/infra/telemetry"
	"github.com/kilianp07/solarcharge/internal/eventbus"
)

// forecastRetention is how long past forecast intervals are kept.
const forecastRetention = 24 * time.Hour

// Service owns every long running component.
type Service struct {
	Orchestrator *control.Orchestrator
	State        *state.Store
	Targets      targets.Store
	Resolver     *targets.Resolver
	Forecast     *forecast.MemoryStore

	cfg       *config.Config
	commander command.Commander
	sink      coremetrics.MetricsSink
	logs      logging.LogStore
	bus       eventbus.EventBus
	telemetry *telemetry.Manager
	poller    *prices.Poller
	log       logger.Logger
}

// New creates a Service from the configuration, connecting to the broker.
func New(cfg *config.Config) (*Service, error) {
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	cmd, err := mqtt.NewCommander(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt commander: %w", err)
	}
	svc, err := build(cfg, cmd)
	if err != nil {
		cmd.Disconnect()
		return nil, err
	}
	if cfg.Telemetry.Enabled {
		tm, err := telemetry.NewManager(cfg.MQTT, cfg.Telemetry, svc.State, svc.Forecast, svc.bus)
		if err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		svc.telemetry = tm
	}
	return svc, nil
}

func build(cfg *config.Config, cmd command.Commander) (*Service, error) {
	logg := logger.New("service")

	st := state.NewStore()
	for _, cc := range cfg.Consumers {
		c, err := cc.ToModel()
		if err != nil {
			return nil, err
		}
		if err := st.AddConsumer(c); err != nil {
			return nil, err
		}
	}

	var defs []model.ChargingTarget
	if cfg.Targets.File != "" {
		var err error
		if defs, err = targets.LoadFile(cfg.Targets.File); err != nil {
			return nil, fmt.Errorf("targets: %w", err)
		}
	}
	ts, err := targets.NewMemoryStore(defs...)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	resolver := targets.NewResolver(ts, cfg.Targets.CatchUpWindow, logger.New("targets"))

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	logs, err := plugins.NewLogStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("decision log: %w", err)
	}

	fc := forecast.NewMemoryStore(forecastRetention)
	bus := eventbus.New()
	orch, err := control.NewOrchestrator(cfg.Control, control.Deps{
		State:     st,
		Targets:   ts,
		Resolver:  resolver,
		Forecast:  fc,
		Generator: schedule.NewGenerator(cfg.Schedule, logger.New("schedule")),
		Allocator: allocation.NewCalculator(cfg.Allocation, logger.New("allocation")),
		Commander: cmd,
		Budget:    cfg.Budget,
		Circuits:  cfg.CircuitLimits(),
		Logger:    logger.New("control"),
		Metrics:   sink,
		Bus:       bus,
		LogStore:  logs,
	})
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	svc := &Service{
		Orchestrator: orch,
		State:        st,
		Targets:      ts,
		Resolver:     resolver,
		Forecast:     fc,
		cfg:          cfg,
		commander:    cmd,
		sink:         sink,
		logs:         logs,
		bus:          bus,
		log:          logg,
	}
	if cfg.Prices.Enabled {
		svc.poller = prices.NewPoller(cfg.Prices, prices.NewClient(cfg.Prices), fc)
	}
	return svc, nil
}

// Handler returns the HTTP API of the service.
func (s *Service) Handler() *mux.Router {
	return api.NewRouter(api.Deps{
		Ticks:    s.Orchestrator,
		State:    s.State,
		Resolver: s.Resolver,
		Logs:     s.logs,
		Token:    s.cfg.HTTP.Token,
	})
}

// Run starts every component and blocks until ctx is canceled or one of
// them fails.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()
	metrics.StartEventCollector(ctx, s.bus, s.sink)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Orchestrator.Run(ctx) })
	if s.telemetry != nil {
		g.Go(func() error { return s.telemetry.Start(ctx) })
	}
	if s.poller != nil {
		g.Go(func() error { return s.poller.Run(ctx) })
	}
	switch {
	case s.cfg.HTTP.Enabled:
		g.Go(func() error { return api.Serve(ctx, s.cfg.HTTP.Address, s.Handler()) })
	case s.cfg.Metrics.PrometheusPort != "":
		g.Go(func() error { return metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort) })
	}
	s.log.Infof("service started with %d consumers", len(s.State.Snapshot(time.Now()).Consumers))
	return g.Wait()
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if d, ok := s.commander.(interface{ Disconnect() }); ok {
		d.Disconnect()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	coremon.Flush(2 * time.Second)
	return s.logs.Close()
}
