package logging

import (
	"context"
	"time"

	"github.com/kilianp07/solarcharge/core/model"
)

// LogRecord captures the outcome of one control tick.
type LogRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	TickID    string            `json:"tick_id"`
	BudgetW   int               `json:"budget_w"`
	Decisions []model.Decision  `json:"decisions"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// LogQuery defines filters for retrieving records. Zero values match all.
type LogQuery struct {
	Start      time.Time
	End        time.Time
	ConsumerID string
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// Matches reports whether rec satisfies q.
func (q LogQuery) Matches(rec LogRecord) bool {
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Timestamp.After(q.End) {
		return false
	}
	if q.ConsumerID == "" {
		return true
	}
	for _, d := range rec.Decisions {
		if d.ConsumerID == q.ConsumerID {
			return true
		}
	}
	_, ok := rec.Errors[q.ConsumerID]
	return ok
}

// ConsumerIDs returns the distinct consumers referenced by the record.
func (rec LogRecord) ConsumerIDs() []string {
	seen := make(map[string]bool, len(rec.Decisions))
	var ids []string
	for _, d := range rec.Decisions {
		if !seen[d.ConsumerID] {
			seen[d.ConsumerID] = true
			ids = append(ids, d.ConsumerID)
		}
	}
	for id := range rec.Errors {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
