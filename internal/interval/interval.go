// Package interval models half-open time ranges shared by the conflict,
// recurrence, and availability engines.
package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidInterval indicates an interval whose end does not follow its start.
var ErrInvalidInterval = errors.New("interval: end must be after start")

// Interval is an immutable half-open range [Start, End).
type Interval struct {
	start time.Time
	end   time.Time
}

// New constructs an Interval, rejecting ranges where end <= start.
func New(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{start: start, end: end}, nil
}

// OfDuration constructs an Interval starting at start and lasting d.
func OfDuration(start time.Time, d time.Duration) (Interval, error) {
	return New(start, start.Add(d))
}

// Start returns the inclusive lower bound.
func (i Interval) Start() time.Time { return i.start }

// End returns the exclusive upper bound.
func (i Interval) End() time.Time { return i.end }

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration { return i.end.Sub(i.start) }

// IsZero reports whether the interval was never constructed.
func (i Interval) IsZero() bool { return i.start.IsZero() && i.end.IsZero() }

// Overlaps reports whether the two intervals share any instant. Touching
// endpoints do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.start.Before(other.end) && i.end.After(other.start)
}

// Intersect returns the common part of both intervals, if any.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	start := i.start
	if other.start.After(start) {
		start = other.start
	}
	end := i.end
	if other.end.Before(end) {
		end = other.end
	}
	if !end.After(start) {
		return Interval{}, false
	}
	return Interval{start: start, end: end}, true
}

// In returns the same interval with both bounds expressed in loc.
func (i Interval) In(loc *time.Location) Interval {
	return Interval{start: i.start.In(loc), end: i.end.In(loc)}
}

// Equal reports whether both bounds denote the same instants.
func (i Interval) Equal(other Interval) bool {
	return i.start.Equal(other.start) && i.end.Equal(other.end)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.start.Format(time.RFC3339), i.end.Format(time.RFC3339))
}

// Sort orders intervals by start, then end, in place.
func Sort(intervals []Interval) {
	sort.SliceStable(intervals, func(a, b int) bool {
		if intervals[a].start.Equal(intervals[b].start) {
			return intervals[a].end.Before(intervals[b].end)
		}
		return intervals[a].start.Before(intervals[b].start)
	})
}

// Merge returns a sorted copy of intervals where overlapping or adjacent
// ranges (next.Start <= current.End) are coalesced.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	Sort(sorted)

	merged := make([]Interval, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if !next.start.After(current.end) {
			if next.end.After(current.end) {
				current.end = next.end
			}
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
