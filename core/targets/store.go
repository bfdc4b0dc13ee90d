package targets

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

var (
	// ErrInvalidTarget is returned when a target violates its invariants.
	ErrInvalidTarget = model.ErrInvalidTarget
	// ErrUnknownTarget is returned for ids not held by a store.
	ErrUnknownTarget = errors.New("unknown charging target")
)

// Store persists charging targets.
type Store interface {
	ForConsumers(ids []string) ([]model.ChargingTarget, error)
	Get(id string) (model.ChargingTarget, error)
	Save(t model.ChargingTarget) error
	Delete(id string) error
	MarkFulfilled(id string, at time.Time) error
}

// MemoryStore keeps targets in memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]model.ChargingTarget
}

// NewMemoryStore returns a store seeded with the given targets. Invalid
// targets are rejected.
func NewMemoryStore(initial ...model.ChargingTarget) (*MemoryStore, error) {
	s := &MemoryStore{data: make(map[string]model.ChargingTarget, len(initial))}
	for _, t := range initial {
		if err := s.Save(t); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MemoryStore) ForConsumers(ids []string) ([]model.ChargingTarget, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.ChargingTarget, 0, len(s.data))
	for _, t := range s.data {
		if _, ok := want[t.ConsumerID]; ok {
			res = append(res, copyTarget(t))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryStore) Get(id string) (model.ChargingTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data[id]
	if !ok {
		return model.ChargingTarget{}, fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	return copyTarget(t), nil
}

func (s *MemoryStore) Save(t model.ChargingTarget) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[t.ID] = copyTarget(t)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	delete(s.data, id)
	return nil
}

// MarkFulfilled records at as the last fulfilled occurrence. Older instants
// than the stored one are ignored.
func (s *MemoryStore) MarkFulfilled(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, id)
	}
	if t.LastFulfilled != nil && !at.After(*t.LastFulfilled) {
		return nil
	}
	at = at.UTC()
	t.LastFulfilled = &at
	s.data[id] = t
	return nil
}

func copyTarget(t model.ChargingTarget) model.ChargingTarget {
	if t.Date != nil {
		d := *t.Date
		t.Date = &d
	}
	if t.LastFulfilled != nil {
		lf := *t.LastFulfilled
		t.LastFulfilled = &lf
	}
	return t
}
