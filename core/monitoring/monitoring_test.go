package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recordMonitor struct {
	errs   []error
	tags   []map[string]string
	panics []any
	flush  int
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recordMonitor) ReportPanic(v any)   { r.panics = append(r.panics, v) }
func (r *recordMonitor) Flush(time.Duration) { r.flush++ }

func withMonitor(t *testing.T) *recordMonitor {
	t.Helper()
	rec := &recordMonitor{}
	Init(rec)
	t.Cleanup(func() { Init(NopMonitor{}) })
	return rec
}

func TestCaptureException(t *testing.T) {
	rec := withMonitor(t)
	CaptureException(nil, nil)
	CaptureException(errors.New("boom"), map[string]string{"module": "control"})
	if len(rec.errs) != 1 || rec.tags[0]["module"] != "control" {
		t.Fatalf("unexpected captures %+v", rec.errs)
	}
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	rec := withMonitor(t)
	func() {
		defer func() {
			if r := recover(); r != "tick" {
				t.Fatalf("expected re-panic with tick, got %v", r)
			}
		}()
		defer Recover()
		panic("tick")
	}()
	if len(rec.panics) != 1 || rec.panics[0] != "tick" || rec.flush != 1 {
		t.Fatalf("unexpected report %+v", rec)
	}
}

func TestInitIgnoresNil(t *testing.T) {
	rec := withMonitor(t)
	Init(nil)
	Flush(time.Second)
	if rec.flush != 1 {
		t.Fatal("nil monitor replaced the current one")
	}
}
