// Package control drives the periodic control loop: it snapshots telemetry,
// plans every consumer, allocates the power budget and commands the
// consumers whose setpoints changed.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/solarcharge/core/align"
	"github.com/kilianp07/solarcharge/core/allocation"
	"github.com/kilianp07/solarcharge/core/budget"
	"github.com/kilianp07/solarcharge/core/command"
	"github.com/kilianp07/solarcharge/core/control/logging"
	"github.com/kilianp07/solarcharge/core/events"
	"github.com/kilianp07/solarcharge/core/forecast"
	"github.com/kilianp07/solarcharge/core/logger"
	"github.com/kilianp07/solarcharge/core/metrics"
	"github.com/kilianp07/solarcharge/core/model"
	coremon "github.com/kilianp07/solarcharge/core/monitoring"
	"github.com/kilianp07/solarcharge/core/schedule"
	"github.com/kilianp07/solarcharge/core/state"
	"github.com/kilianp07/solarcharge/core/targets"
	"github.com/kilianp07/solarcharge/internal/eventbus"
)

// ErrTickInProgress is returned by Tick while another tick is running.
var ErrTickInProgress = errors.New("control tick already in progress")

// Config holds the control loop settings.
type Config struct {
	Interval       time.Duration `json:"interval"`
	CommandTimeout time.Duration `json:"command_timeout"`
	// MaxConcurrentCommands bounds the consumers commanded in parallel.
	MaxConcurrentCommands int `json:"max_concurrent_commands"`
	// SoCFreshness is the age up to which a SoC reading may fulfill a target.
	SoCFreshness time.Duration `json:"soc_freshness"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.MaxConcurrentCommands <= 0 {
		c.MaxConcurrentCommands = 4
	}
	if c.SoCFreshness <= 0 {
		c.SoCFreshness = 15 * time.Minute
	}
}

// Deps are the collaborators of the orchestrator. Metrics, Bus and LogStore
// are optional.
type Deps struct {
	State     *state.Store
	Targets   targets.Store
	Resolver  *targets.Resolver
	Forecast  forecast.Store
	Generator *schedule.Generator
	Allocator *allocation.Calculator
	Commander command.Commander
	Budget    budget.Settings
	// Circuits maps circuit ids to their max combined current in A.
	Circuits map[string]float64
	Logger   logger.Logger
	Metrics  metrics.MetricsSink
	Bus      eventbus.EventBus
	LogStore logging.LogStore
	// Now defaults to time.Now.
	Now func() time.Time
}

// TickResult is the outcome of one tick.
type TickResult struct {
	TickID    string                              `json:"tick_id"`
	Started   time.Time                           `json:"started"`
	Duration  time.Duration                       `json:"duration"`
	BudgetW   int                                 `json:"budget_w"`
	Targets   []targets.RelevantTarget            `json:"targets"`
	Schedules map[string][]model.ChargingSchedule `json:"schedules"`
	// Infeasible lists target ids per consumer that cannot be met in time.
	Infeasible map[string][]string `json:"infeasible,omitempty"`
	Decisions  []model.Decision    `json:"decisions"`
	// Errors holds command failures per consumer.
	Errors map[string]string `json:"errors,omitempty"`
}

// Orchestrator runs control ticks.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  logger.Logger

	running atomic.Bool
	mu      sync.RWMutex
	last    *TickResult
}

// NewOrchestrator validates the collaborators and returns an orchestrator.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.SetDefaults()
	switch {
	case deps.State == nil:
		return nil, fmt.Errorf("control: state store is required")
	case deps.Targets == nil || deps.Resolver == nil:
		return nil, fmt.Errorf("control: target store and resolver are required")
	case deps.Forecast == nil:
		return nil, fmt.Errorf("control: forecast store is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("control: schedule generator is required")
	case deps.Allocator == nil:
		return nil, fmt.Errorf("control: allocator is required")
	case deps.Commander == nil:
		return nil, fmt.Errorf("control: commander is required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("control: logger is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: deps.Logger}, nil
}

// LastResult returns the result of the last completed tick.
func (o *Orchestrator) LastResult() (TickResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return TickResult{}, false
	}
	return *o.last, true
}

// Run ticks every Interval until ctx is canceled. A tick still running when
// the ticker fires makes that fire a no-op.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	var wg sync.WaitGroup
	fire := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer coremon.Recover()
			o.runOnce(ctx)
		}()
	}
	fire()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			fire()
		}
	}
}

func (o *Orchestrator) runOnce(ctx context.Context) {
	res, err := o.Tick(ctx)
	switch {
	case errors.Is(err, ErrTickInProgress):
		skippedTicks.Inc()
		o.log.Warnf("skipping tick: previous tick still running")
	case err != nil:
		o.log.Errorf("tick failed: %v", err)
		coremon.CaptureException(err, map[string]string{"module": "control"})
	default:
		o.log.Debugf("tick %s done in %s with %d decisions", res.TickID, res.Duration, len(res.Decisions))
	}
}

// Tick runs one control cycle against a single snapshot instant.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return TickResult{}, ErrTickInProgress
	}
	defer o.running.Store(false)

	now := o.deps.Now()
	started := time.Now()
	res := TickResult{
		TickID:     uuid.NewString(),
		Started:    now,
		Schedules:  make(map[string][]model.ChargingSchedule),
		Infeasible: make(map[string][]string),
		Errors:     make(map[string]string),
	}

	snap := o.deps.State.Snapshot(now)
	relevant, err := o.deps.Resolver.RelevantTargets(snap.Consumers, now)
	if err != nil {
		return res, fmt.Errorf("resolve targets: %w", err)
	}
	res.Targets = relevant

	discharge := false
	for _, rt := range relevant {
		if rt.Target.DischargeHomeBatteryToMinSoc {
			discharge = true
			break
		}
	}
	bin := budget.FromSnapshot(snap.Site, o.deps.Budget, now, discharge)
	res.BudgetW = budget.Compute(bin)

	end := now.Add(o.deps.Generator.Horizon())
	fc := schedule.Forecast{
		Prices: o.deps.Forecast.Prices(now, end),
		Solar:  o.deps.Forecast.Solar(now, end),
	}
	alignedPrices := make(map[string][]model.PriceInterval, len(snap.Consumers))
	for _, c := range snap.Consumers {
		plan := o.deps.Generator.Generate(c, relevant, fc, now)
		segs, prices := align.SplitByBoundaries(plan.Schedules, fc.Prices, now, end)
		res.Schedules[c.ID] = segs
		alignedPrices[c.ID] = prices
		if len(plan.Infeasible) > 0 {
			res.Infeasible[c.ID] = plan.Infeasible
		}
	}

	res.Decisions = o.deps.Allocator.Calculate(allocation.Input{
		Consumers: snap.Consumers,
		Schedules: res.Schedules,
		Prices:    alignedPrices,
		Budget:    res.BudgetW,
		Circuits:  o.deps.Circuits,
		Now:       now,
	})

	o.markFulfilled(snap, relevant, now)
	o.dispatch(ctx, res.TickID, snap, res.Decisions, res.Errors)

	res.Duration = time.Since(started)
	tickDuration.Observe(res.Duration.Seconds())
	o.record(ctx, res, bin, snap.Consumers)

	o.mu.Lock()
	o.last = &res
	o.mu.Unlock()
	return res, nil
}

// markFulfilled closes the target occurrences whose consumer reached the
// target SoC according to a fresh reading. An occurrence still ahead is left
// open: the SoC may drop again before it and a met target plans no energy.
func (o *Orchestrator) markFulfilled(snap state.Snapshot, relevant []targets.RelevantTarget, now time.Time) {
	for _, rt := range relevant {
		if !rt.Overdue && now.Before(rt.Occurrence) {
			continue
		}
		c, ok := snap.Consumer(rt.Target.ConsumerID)
		if !ok || !c.SoC.IsSet() || !c.SoC.IsRelevant(now, o.cfg.SoCFreshness) {
			continue
		}
		if c.SoC.Value < float64(rt.Target.TargetSoC) {
			continue
		}
		if err := o.deps.Targets.MarkFulfilled(rt.Target.ID, rt.Occurrence); err != nil {
			o.log.Warnf("mark target %s fulfilled: %v", rt.Target.ID, err)
			continue
		}
		fulfilled.Inc()
		o.log.Infof("target %s of %s fulfilled at %.0f%%", rt.Target.ID, c.ID, c.SoC.Value)
	}
}

// dispatch commands every consumer with an actionable decision. Failures are
// collected per consumer and never abort the others.
func (o *Orchestrator) dispatch(ctx context.Context, tickID string, snap state.Snapshot, decisions []model.Decision, errs map[string]string) {
	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(o.cfg.MaxConcurrentCommands)
	for _, d := range decisions {
		if d.Suppressed || d.Action == model.ActionNone {
			continue
		}
		if err := ctx.Err(); err != nil {
			mu.Lock()
			errs[d.ConsumerID] = err.Error()
			mu.Unlock()
			continue
		}
		c, _ := snap.Consumer(d.ConsumerID)
		d := d
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.cfg.CommandTimeout)
			defer cancel()
			start := time.Now()
			err := o.apply(cctx, c, d)
			latency := time.Since(start)
			o.publish(events.CommandEvent{TickID: tickID, ConsumerID: d.ConsumerID, Action: d.Action, Err: err, Latency: latency, Time: snap.Taken})
			if err != nil {
				commandResults.WithLabelValues(string(d.Action), "failure").Inc()
				o.log.Errorf("command %s to %s failed: %v", d.Action, d.ConsumerID, err)
				coremon.CaptureException(err, map[string]string{"consumer_id": d.ConsumerID, "module": "control", "action": string(d.Action)})
				mu.Lock()
				errs[d.ConsumerID] = err.Error()
				mu.Unlock()
				return nil
			}
			commandResults.WithLabelValues(string(d.Action), "success").Inc()
			if err := o.deps.State.RecordCommand(d.ConsumerID, d, snap.Taken); err != nil {
				o.log.Warnf("record command for %s: %v", d.ConsumerID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// apply translates a decision into commander calls.
func (o *Orchestrator) apply(ctx context.Context, c model.Consumer, d model.Decision) error {
	cmd := o.deps.Commander
	switch d.Action {
	case model.ActionStop:
		return cmd.Stop(ctx, d.ConsumerID)
	case model.ActionStart:
		if d.PhaseSwitch {
			if err := cmd.SetPhases(ctx, d.ConsumerID, d.TargetPhases); err != nil {
				return fmt.Errorf("set phases: %w", err)
			}
		}
		if err := cmd.SetCurrent(ctx, d.ConsumerID, d.TargetCurrent); err != nil {
			return fmt.Errorf("set current: %w", err)
		}
		if c.IsCharging() {
			return nil
		}
		if err := cmd.Start(ctx, d.ConsumerID); err != nil {
			return fmt.Errorf("start: %w", err)
		}
		return nil
	default:
		return nil
	}
}

func (o *Orchestrator) publish(ev any) {
	if o.deps.Bus != nil {
		o.deps.Bus.Publish(ev)
	}
}

// record reports the tick to the metrics sink, the event bus and the
// decision log.
func (o *Orchestrator) record(ctx context.Context, res TickResult, bin budget.Input, consumers []model.Consumer) {
	if err := o.deps.Metrics.RecordDecisions(metrics.DecisionEvents(res.TickID, res.Started, consumers, res.Decisions)); err != nil {
		o.log.Warnf("record decisions: %v", err)
	}
	if r, ok := o.deps.Metrics.(metrics.BudgetRecorder); ok {
		ev := metrics.BudgetEvent{TickID: res.TickID, BudgetW: res.BudgetW, BatterySoC: bin.BatterySoC, Time: res.Started}
		if bin.GridOverage != nil {
			v := float64(*bin.GridOverage)
			ev.GridW = &v
		}
		if bin.InverterPower != nil {
			v := float64(*bin.InverterPower)
			ev.InverterW = &v
		}
		if err := r.RecordBudget(ev); err != nil {
			o.log.Warnf("record budget: %v", err)
		}
	}

	for _, d := range res.Decisions {
		o.publish(events.DecisionEvent{TickID: res.TickID, Time: res.Started, Decision: d})
	}
	o.publish(events.TickEvent{
		TickID:    res.TickID,
		Started:   res.Started,
		Duration:  res.Duration,
		BudgetW:   res.BudgetW,
		Decisions: len(res.Decisions),
		Errors:    len(res.Errors),
	})

	if o.deps.LogStore == nil {
		return
	}
	rec := logging.LogRecord{
		Timestamp: res.Started,
		TickID:    res.TickID,
		BudgetW:   res.BudgetW,
		Decisions: res.Decisions,
		Errors:    res.Errors,
	}
	if err := o.deps.LogStore.Append(context.WithoutCancel(ctx), rec); err != nil {
		o.log.Warnf("append decision log: %v", err)
	}
}
