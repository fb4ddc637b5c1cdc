// Package interval models half-open UTC time intervals and the local
// wall-clock values (dates and times of day) availability rules are written in.
package interval

import (
	"sort"
	"time"
)

// Interval is the half-open range [Start, End), always held in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) Interval {
	return Interval{Start: start.UTC(), End: end.UTC()}
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Empty reports whether the interval has no length (or is inverted).
func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// Overlaps uses the half-open rule a.start < b.end && b.start < a.end.
// Empty intervals never overlap anything.
func (i Interval) Overlaps(o Interval) bool {
	if i.Empty() || o.Empty() {
		return false
	}
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

func (i Interval) String() string {
	return i.Start.UTC().Format(time.RFC3339) + "/" + i.End.UTC().Format(time.RFC3339)
}

func OverlapsAny(iv Interval, others []Interval) bool {
	for _, o := range others {
		if iv.Overlaps(o) {
			return true
		}
	}
	return false
}

// Slice cuts w into consecutive pieces of length step starting at w.Start.
// A trailing piece shorter than step is dropped.
func Slice(w Interval, step time.Duration) []Interval {
	if step <= 0 || w.Empty() {
		return nil
	}
	var out []Interval
	for t := w.Start; !t.Add(step).After(w.End); t = t.Add(step) {
		out = append(out, Interval{Start: t, End: t.Add(step)})
	}
	return out
}

// Merge returns the union of ivs as sorted, disjoint intervals. Touching
// intervals are joined.
func Merge(ivs []Interval) []Interval {
	var in []Interval
	for _, iv := range ivs {
		if !iv.Empty() {
			in = append(in, iv)
		}
	}
	if len(in) == 0 {
		return nil
	}
	Sort(in)

	out := []Interval{in[0]}
	for _, iv := range in[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Sort orders by start, then end.
func Sort(ivs []Interval) {
	sort.Slice(ivs, func(a, b int) bool {
		if ivs[a].Start.Equal(ivs[b].Start) {
			return ivs[a].End.Before(ivs[b].End)
		}
		return ivs[a].Start.Before(ivs[b].Start)
	})
}
