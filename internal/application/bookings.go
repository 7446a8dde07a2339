package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/rehearsal-scheduler/internal/interval"
	"github.com/example/rehearsal-scheduler/internal/persistence"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
	"github.com/example/rehearsal-scheduler/internal/scheduler"
)

// bookingHorizon bounds conflict checks for open-ended series.
const bookingHorizon = 366 * 24 * time.Hour

// venueBookings serves scheduler.BookingStore from a snapshot of the
// rehearsals booked at a venue. Recurring bookings are expanded over span so
// every occurrence that could touch a candidate is considered.
type venueBookings struct {
	engine   *recurrence.Engine
	existing []persistence.Rehearsal
	span     interval.Interval

	mu       sync.Mutex
	expanded map[string][]interval.Interval
}

var _ scheduler.BookingStore = (*venueBookings)(nil)

func newVenueBookings(engine *recurrence.Engine, existing []persistence.Rehearsal, span interval.Interval) *venueBookings {
	return &venueBookings{
		engine:   engine,
		existing: existing,
		span:     span,
		expanded: make(map[string][]interval.Interval),
	}
}

// ListBookedIntervals implements scheduler.BookingStore.
func (b *venueBookings) ListBookedIntervals(_ context.Context, venueID, excludeID string) ([]interval.Interval, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	booked := make([]interval.Interval, 0, len(b.existing))
	for _, r := range b.existing {
		if r.ID == excludeID || r.VenueID == nil || *r.VenueID != venueID {
			continue
		}
		intervals, ok := b.expanded[r.ID]
		if !ok {
			occurrences, err := expandRehearsal(b.engine, toRehearsal(r, nil, b.engine.Location()),
				b.span.Start().Add(-r.End.Sub(r.Start)), b.span.End())
			if err != nil {
				return nil, fmt.Errorf("expand booking %s: %w", r.ID, err)
			}
			intervals = make([]interval.Interval, 0, len(occurrences))
			for _, o := range occurrences {
				iv, err := interval.New(o.Start, o.End)
				if err != nil {
					return nil, err
				}
				intervals = append(intervals, iv)
			}
			b.expanded[r.ID] = intervals
		}
		booked = append(booked, intervals...)
	}
	return booked, nil
}

// expandRehearsal materialises the occurrences of r starting within [from, to].
func expandRehearsal(engine *recurrence.Engine, r Rehearsal, from, to time.Time) ([]Occurrence, error) {
	base := Occurrence{
		RehearsalID: r.ID,
		GroupID:     r.GroupID,
		VenueID:     copyString(r.VenueID),
		Title:       r.Title,
	}

	if r.Recurrence == nil {
		if r.Start.Before(from) || r.Start.After(to) {
			return []Occurrence{}, nil
		}
		base.Start, base.End = r.Start, r.End
		return []Occurrence{base}, nil
	}

	seq, err := engine.Expand(r.Recurrence.Pattern(), r.Start, r.End, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]Occurrence, 0)
	it := seq.Iterator()
	for it.Next() {
		o := it.Occurrence()
		occ := base
		occ.VenueID = copyString(r.VenueID)
		occ.Index = o.Index
		occ.Start = o.Start()
		occ.End = o.End()
		out = append(out, occ)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// candidateIntervals returns the occurrences a new or edited rehearsal would
// book, together with the span they cover.
func candidateIntervals(engine *recurrence.Engine, r Rehearsal) ([]interval.Interval, interval.Interval, error) {
	to := r.Start
	if r.Recurrence != nil {
		to = r.Start.Add(bookingHorizon)
		if end := r.Recurrence.Pattern().EndDate; !end.IsZero() {
			to = end.Add(-time.Nanosecond)
		}
	}

	occurrences, err := expandRehearsal(engine, r, r.Start, to)
	if err != nil {
		return nil, interval.Interval{}, err
	}
	candidates := make([]interval.Interval, 0, len(occurrences))
	for _, o := range occurrences {
		iv, err := interval.New(o.Start, o.End)
		if err != nil {
			return nil, interval.Interval{}, err
		}
		candidates = append(candidates, iv)
	}
	if len(candidates) == 0 {
		return nil, interval.Interval{}, fmt.Errorf("%w: rehearsal has no occurrences", recurrence.ErrInvalidPattern)
	}
	span, err := interval.New(candidates[0].Start(), candidates[len(candidates)-1].End())
	if err != nil {
		return nil, interval.Interval{}, err
	}
	return candidates, span, nil
}

// bookingGuard builds the persistence guard that vetoes a write when any
// candidate occurrence overlaps an existing booking at the venue.
func bookingGuard(ctx context.Context, engine *recurrence.Engine, venueID, excludeID string, candidates []interval.Interval, span interval.Interval) persistence.BookingGuard {
	return func(existing []persistence.Rehearsal) error {
		detector := scheduler.NewConflictDetector(newVenueBookings(engine, existing, span))
		for _, candidate := range candidates {
			conflict, err := detector.HasConflict(ctx, venueID, candidate, excludeID)
			if err != nil {
				return err
			}
			if conflict {
				return fieldError("venue_id", fmt.Sprintf("venue is already booked at %s", candidate.Start().Format(time.RFC3339)))
			}
		}
		return nil
	}
}
