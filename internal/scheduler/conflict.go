package scheduler

import (
	"context"
	"fmt"

	"github.com/example/rehearsal-scheduler/internal/interval"
)

// BookingStore lists the intervals already booked at a venue. Implementations
// must also make the write path atomic (a uniqueness constraint or a
// transactional check-and-insert); the detector only performs the read side.
type BookingStore interface {
	ListBookedIntervals(ctx context.Context, venueID string, excludeID string) ([]interval.Interval, error)
}

// BookingStoreFunc adapts a function to BookingStore.
type BookingStoreFunc func(ctx context.Context, venueID string, excludeID string) ([]interval.Interval, error)

// ListBookedIntervals calls f.
func (f BookingStoreFunc) ListBookedIntervals(ctx context.Context, venueID string, excludeID string) ([]interval.Interval, error) {
	return f(ctx, venueID, excludeID)
}

// ConflictDetector checks candidate rehearsal intervals against existing
// venue bookings.
type ConflictDetector struct {
	store BookingStore
}

// NewConflictDetector constructs a detector reading from store.
func NewConflictDetector(store BookingStore) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// HasConflict reports whether candidate overlaps any interval booked at venueID,
// ignoring the booking identified by excludeID. An empty venueID never conflicts.
func (d *ConflictDetector) HasConflict(ctx context.Context, venueID string, candidate interval.Interval, excludeID string) (bool, error) {
	if venueID == "" {
		return false, nil
	}
	if candidate.IsZero() {
		return false, interval.ErrInvalidInterval
	}
	if d == nil || d.store == nil {
		return false, fmt.Errorf("scheduler: booking store not configured")
	}

	booked, err := d.store.ListBookedIntervals(ctx, venueID, excludeID)
	if err != nil {
		return false, fmt.Errorf("scheduler: list booked intervals for venue %s: %w", venueID, err)
	}

	return AnyOverlap(booked, candidate), nil
}

// AnyOverlap reports whether candidate overlaps any of the existing intervals.
func AnyOverlap(existing []interval.Interval, candidate interval.Interval) bool {
	for _, booked := range existing {
		if booked.Overlaps(candidate) {
			return true
		}
	}
	return false
}
