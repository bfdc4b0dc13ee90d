package targets

import (
	"sort"
	"time"

	"github.com/kilianp07/solarcharge/core/logger"
	"github.com/kilianp07/solarcharge/core/model"
)

// DefaultCatchUpWindow bounds how long a missed occurrence stays due.
const DefaultCatchUpWindow = 24 * time.Hour

// RelevantTarget is a target together with the instant it must be met.
type RelevantTarget struct {
	Target model.ChargingTarget `json:"target"`
	// NextExecutionTime is the deadline. Overdue targets are due now.
	NextExecutionTime time.Time `json:"next_execution_time"`
	// Occurrence is the occurrence being served, which differs from
	// NextExecutionTime for overdue targets.
	Occurrence time.Time `json:"occurrence"`
	Overdue    bool      `json:"overdue"`
}

// Resolver computes the targets the planner has to honor.
type Resolver struct {
	store         Store
	catchUpWindow time.Duration
	log           logger.Logger
}

// NewResolver creates a resolver. A non-positive window uses
// DefaultCatchUpWindow.
func NewResolver(store Store, catchUpWindow time.Duration, log logger.Logger) *Resolver {
	if catchUpWindow <= 0 {
		catchUpWindow = DefaultCatchUpWindow
	}
	return &Resolver{store: store, catchUpWindow: catchUpWindow, log: log}
}

// RelevantTargets returns the open targets of the given consumers ordered by
// deadline, then by the order of consumers, then by target id. The consumer
// order is expected to be the allocation priority order.
func (r *Resolver) RelevantTargets(consumers []model.Consumer, now time.Time) ([]RelevantTarget, error) {
	ids := make([]string, len(consumers))
	rank := make(map[string]int, len(consumers))
	byID := make(map[string]model.Consumer, len(consumers))
	for i, c := range consumers {
		ids[i] = c.ID
		rank[c.ID] = i
		byID[c.ID] = c
	}
	all, err := r.store.ForConsumers(ids)
	if err != nil {
		return nil, err
	}
	res := make([]RelevantTarget, 0, len(all))
	for _, t := range all {
		if err := t.Validate(); err != nil {
			r.log.Warnf("skipping target %s: %v", t.ID, err)
			continue
		}
		if rt, ok := r.resolve(t, byID[t.ConsumerID], now); ok {
			res = append(res, rt)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if !a.NextExecutionTime.Equal(b.NextExecutionTime) {
			return a.NextExecutionTime.Before(b.NextExecutionTime)
		}
		if rank[a.Target.ConsumerID] != rank[b.Target.ConsumerID] {
			return rank[a.Target.ConsumerID] < rank[b.Target.ConsumerID]
		}
		return a.Target.ID < b.Target.ID
	})
	return res, nil
}

func (r *Resolver) resolve(t model.ChargingTarget, c model.Consumer, now time.Time) (RelevantTarget, bool) {
	if prev, ok := PreviousOccurrence(t, now); ok && r.catchUp(t, c, prev, now) {
		r.log.Debugw("target overdue", map[string]any{"target": t.ID, "consumer": c.ID, "occurrence": prev})
		return RelevantTarget{Target: t, NextExecutionTime: now, Occurrence: prev, Overdue: true}, true
	}
	next, err := NextOccurrence(t, now)
	if err != nil {
		r.log.Warnf("target %s: %v", t.ID, err)
		return RelevantTarget{}, false
	}
	if t.LastFulfilled != nil && !t.LastFulfilled.Before(next) {
		return RelevantTarget{}, false
	}
	if next.Before(now) {
		// missed one-shot outside the catch-up rule
		return RelevantTarget{}, false
	}
	return RelevantTarget{Target: t, NextExecutionTime: next, Occurrence: next}, true
}

// catchUp applies the missed-window rule: the occurrence lies within the
// catch-up window, is not fulfilled, and the consumer was already plugged in
// at that time.
func (r *Resolver) catchUp(t model.ChargingTarget, c model.Consumer, occ, now time.Time) bool {
	if now.Sub(occ) > r.catchUpWindow {
		return false
	}
	if t.LastFulfilled != nil && !t.LastFulfilled.Before(occ) {
		return false
	}
	if !c.PluggedIn.IsSet() || !c.PluggedIn.Value {
		return false
	}
	return !c.PluggedIn.Timestamp.After(occ)
}
