// Package align cuts two interval lists onto shared boundaries so that
// schedule segments and price segments can be compared slot by slot.
package align

import (
	"sort"
	"time"
)

// Segment is a half-open interval [from, to) that can be cut.
type Segment[T any] interface {
	Bounds() (from, to time.Time)
	WithBounds(from, to time.Time) T
}

// SplitByBoundaries re-segments both lists at every boundary of either list
// within [start, end]. Items are clipped to the window and items outside it
// vanish. Gaps in one list stay gaps, so the outputs may differ in length,
// but every output interval starts and ends on a common boundary.
func SplitByBoundaries[S Segment[S], P Segment[P]](schedules []S, prices []P, start, end time.Time) ([]S, []P) {
	if !end.After(start) {
		return nil, nil
	}
	bounds := []time.Time{start, end}
	bounds = appendBounds(bounds, schedules, start, end)
	bounds = appendBounds(bounds, prices, start, end)
	bounds = uniqueSorted(bounds)
	return split(schedules, bounds, start, end), split(prices, bounds, start, end)
}

// Boundaries returns the sorted distinct boundaries both lists would be
// split on.
func Boundaries[S Segment[S], P Segment[P]](schedules []S, prices []P, start, end time.Time) []time.Time {
	if !end.After(start) {
		return nil
	}
	bounds := []time.Time{start, end}
	bounds = appendBounds(bounds, schedules, start, end)
	bounds = appendBounds(bounds, prices, start, end)
	return uniqueSorted(bounds)
}

// Covering returns the first segment containing t.
func Covering[T Segment[T]](segments []T, t time.Time) (T, bool) {
	for _, s := range segments {
		from, to := s.Bounds()
		if !t.Before(from) && t.Before(to) {
			return s, true
		}
	}
	var zero T
	return zero, false
}

func appendBounds[T Segment[T]](bounds []time.Time, items []T, start, end time.Time) []time.Time {
	for _, it := range items {
		from, to := it.Bounds()
		for _, b := range []time.Time{from, to} {
			if b.After(start) && b.Before(end) {
				bounds = append(bounds, b)
			}
		}
	}
	return bounds
}

func uniqueSorted(ts []time.Time) []time.Time {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	out := ts[:0]
	for i, t := range ts {
		if i > 0 && t.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func split[T Segment[T]](items []T, bounds []time.Time, start, end time.Time) []T {
	var out []T
	for _, it := range items {
		from, to := it.Bounds()
		if from.Before(start) {
			from = start
		}
		if to.After(end) {
			to = end
		}
		if !to.After(from) {
			continue
		}
		// first boundary strictly after from
		i := sort.Search(len(bounds), func(i int) bool { return bounds[i].After(from) })
		cur := from
		for ; i < len(bounds) && bounds[i].Before(to); i++ {
			out = append(out, it.WithBounds(cur, bounds[i]))
			cur = bounds[i]
		}
		out = append(out, it.WithBounds(cur, to))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Bounds()
		b, _ := out[j].Bounds()
		return a.Before(b)
	})
	return out
}
