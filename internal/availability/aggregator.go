// Package availability merges member availability into free intervals and
// finds rehearsal slots every member can attend.
package availability

import (
	"fmt"
	"sort"
	"time"

	"github.com/example/rehearsal-scheduler/internal/interval"
)

// WeeklySlot is a recurring weekly availability window. When End is earlier
// than Start the slot runs past midnight into the following day.
type WeeklySlot struct {
	Day   time.Weekday
	Start TimeOfDay
	End   TimeOfDay
}

// OneTimeSlot is availability on a single calendar date, in addition to the
// weekly pattern.
type OneTimeSlot struct {
	Date  time.Time
	Start TimeOfDay
	End   TimeOfDay
}

// Member carries the declared availability of one group member.
type Member struct {
	ID      string
	Weekly  []WeeklySlot
	OneTime []OneTimeSlot
}

// Aggregator materialises wall-clock availability in a fixed location.
type Aggregator struct {
	location *time.Location
}

// NewAggregator constructs an Aggregator. If loc is nil, UTC is used.
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{location: loc}
}

func (a *Aggregator) loc() *time.Location {
	if a == nil || a.location == nil {
		return time.UTC
	}
	return a.location
}

// FreeIntervals returns the member's availability inside [windowStart,
// windowEnd) as absolute intervals, sorted by start with overlapping and
// adjacent intervals merged.
func (a *Aggregator) FreeIntervals(member Member, windowStart, windowEnd time.Time) ([]interval.Interval, error) {
	window, err := interval.New(windowStart, windowEnd)
	if err != nil {
		return nil, err
	}
	loc := a.loc()

	for _, slot := range member.Weekly {
		if slot.Day < time.Sunday || slot.Day > time.Saturday {
			return nil, fmt.Errorf("%w: member %s weekday %d out of range", interval.ErrInvalidInterval, member.ID, slot.Day)
		}
		if err := validateRange(slot.Start, slot.End); err != nil {
			return nil, fmt.Errorf("member %s: %w", member.ID, err)
		}
	}
	for _, slot := range member.OneTime {
		if err := validateRange(slot.Start, slot.End); err != nil {
			return nil, fmt.Errorf("member %s: %w", member.ID, err)
		}
	}

	free := make([]interval.Interval, 0)

	// Start a day early so slots spilling past midnight into the window are kept.
	first := startOfDay(window.Start().In(loc)).AddDate(0, 0, -1)
	last := window.End().In(loc)
	for day := first; day.Before(last); day = day.AddDate(0, 0, 1) {
		for _, slot := range member.Weekly {
			if day.Weekday() != slot.Day {
				continue
			}
			if clipped, ok := materialise(day, slot.Start, slot.End, window); ok {
				free = append(free, clipped)
			}
		}
	}

	for _, slot := range member.OneTime {
		y, m, d := slot.Date.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if clipped, ok := materialise(day, slot.Start, slot.End, window); ok {
			free = append(free, clipped)
		}
	}

	return interval.Merge(free), nil
}

func materialise(day time.Time, start, end TimeOfDay, window interval.Interval) (interval.Interval, bool) {
	y, m, d := day.Date()
	loc := day.Location()
	from := time.Date(y, m, d, start.Hour(), start.Minute(), 0, 0, loc)
	endDay := d
	if end < start {
		endDay++
	}
	to := time.Date(y, m, endDay, end.Hour(), end.Minute(), 0, 0, loc)

	slot, err := interval.New(from, to)
	if err != nil {
		return interval.Interval{}, false
	}
	return slot.Intersect(window)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type boundary struct {
	at    time.Time
	delta int
}

// Intersect returns the intervals during which every member is free, in
// ascending start order, discarding intervals shorter than minDuration. It
// sweeps the sorted boundaries of all members once. An empty input or any
// member without free time yields an empty result.
func Intersect(members [][]interval.Interval, minDuration time.Duration) []interval.Interval {
	if len(members) == 0 {
		return nil
	}

	total := 0
	for _, free := range members {
		if len(free) == 0 {
			return nil
		}
		total += len(free)
	}

	boundaries := make([]boundary, 0, 2*total)
	for _, free := range members {
		for _, iv := range interval.Merge(free) {
			boundaries = append(boundaries,
				boundary{at: iv.Start(), delta: 1},
				boundary{at: iv.End(), delta: -1},
			)
		}
	}

	// Closing boundaries sort first at equal instants so touching ranges never
	// count as overlapping.
	sort.Slice(boundaries, func(i, j int) bool {
		if boundaries[i].at.Equal(boundaries[j].at) {
			return boundaries[i].delta < boundaries[j].delta
		}
		return boundaries[i].at.Before(boundaries[j].at)
	})

	want := len(members)
	active := 0
	var openedAt time.Time
	common := make([]interval.Interval, 0)
	for _, b := range boundaries {
		before := active
		active += b.delta
		switch {
		case before < want && active == want:
			openedAt = b.at
		case before == want && active < want:
			iv, err := interval.New(openedAt, b.at)
			if err == nil && iv.Duration() >= minDuration {
				common = append(common, iv)
			}
		}
	}

	return common
}

// Candidate is a suggested rehearsal slot taken from a common interval.
type Candidate struct {
	// Slot is the proposed rehearsal, starting at the beginning of Window.
	Slot interval.Interval
	// Window is the common interval the slot was drawn from.
	Window interval.Interval
}

// RankCandidates proposes one slot of the preferred duration per common
// interval that can hold it, ordered by interval length descending and then
// start ascending. At most limit candidates are returned; a non-positive limit
// returns them all.
func RankCandidates(common []interval.Interval, preferred time.Duration, limit int) ([]Candidate, error) {
	if preferred <= 0 {
		return nil, fmt.Errorf("%w: preferred duration must be positive", interval.ErrInvalidInterval)
	}

	candidates := make([]Candidate, 0, len(common))
	for _, window := range common {
		if window.Duration() < preferred {
			continue
		}
		slot, err := interval.OfDuration(window.Start(), preferred)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{Slot: slot, Window: window})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		li, lj := candidates[i].Window.Duration(), candidates[j].Window.Duration()
		if li != lj {
			return li > lj
		}
		return candidates[i].Slot.Start().Before(candidates[j].Slot.Start())
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
