// Package forecast holds the price and solar surplus forecasts the planner
// works with.
package forecast

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// Store provides forecast intervals overlapping a window.
type Store interface {
	Prices(from, to time.Time) []model.PriceInterval
	Solar(from, to time.Time) []model.SolarSlice
	SetPrices(intervals []model.PriceInterval)
	SetSolar(slices []model.SolarSlice)
}

// MemoryStore keeps forecasts sorted in memory. New data replaces the
// overlapping range of old data.
type MemoryStore struct {
	mu     sync.RWMutex
	prices []model.PriceInterval
	solar  []model.SolarSlice
	// retention is how long past intervals are kept.
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore returns an empty store dropping data that ended more than
// retention ago.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{retention: retention, now: time.Now}
}

func (s *MemoryStore) Prices(from, to time.Time) []model.PriceInterval {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return overlapping(s.prices, from, to)
}

func (s *MemoryStore) Solar(from, to time.Time) []model.SolarSlice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return overlapping(s.solar, from, to)
}

func (s *MemoryStore) SetPrices(intervals []model.PriceInterval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = merge(s.prices, intervals, s.cutoff())
}

func (s *MemoryStore) SetSolar(slices []model.SolarSlice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solar = merge(s.solar, slices, s.cutoff())
}

func (s *MemoryStore) cutoff() time.Time {
	if s.retention <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.retention)
}

type bounded interface {
	Bounds() (time.Time, time.Time)
}

func overlapping[T bounded](items []T, from, to time.Time) []T {
	var res []T
	for _, it := range items {
		start, end := it.Bounds()
		if end.After(from) && start.Before(to) {
			res = append(res, it)
		}
	}
	return res
}

// merge drops old items overlapping the span of incoming and items ending
// before cutoff, then returns the union sorted by start.
func merge[T bounded](old, incoming []T, cutoff time.Time) []T {
	valid := make([]T, 0, len(incoming))
	for _, it := range incoming {
		if start, end := it.Bounds(); end.After(start) {
			valid = append(valid, it)
		}
	}
	var spanFrom, spanTo time.Time
	for i, it := range valid {
		start, end := it.Bounds()
		if i == 0 || start.Before(spanFrom) {
			spanFrom = start
		}
		if i == 0 || end.After(spanTo) {
			spanTo = end
		}
	}
	res := make([]T, 0, len(old)+len(valid))
	for _, it := range old {
		start, end := it.Bounds()
		if len(valid) > 0 && end.After(spanFrom) && start.Before(spanTo) {
			continue
		}
		res = append(res, it)
	}
	res = append(res, valid...)
	kept := res[:0]
	for _, it := range res {
		if _, end := it.Bounds(); !cutoff.IsZero() && !end.After(cutoff) {
			continue
		}
		kept = append(kept, it)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, _ := kept[i].Bounds()
		b, _ := kept[j].Bounds()
		return a.Before(b)
	})
	return kept
}
