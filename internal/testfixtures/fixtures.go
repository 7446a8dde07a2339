package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// Band is a seeded group with a roster: the first member is the owner.
type Band struct {
	Group   persistence.Group
	Members []persistence.GroupMember
}

// NewBand builds a group fixture. With no members an owner named "owner" is used.
func NewBand(id string, members ...string) Band {
	if len(members) == 0 {
		members = []string{"owner"}
	}
	created := ReferenceTime().Add(-30 * 24 * time.Hour)
	band := Band{Group: persistence.Group{ID: id, Name: "Band " + id, CreatedAt: created, UpdatedAt: created}}
	for i, userID := range members {
		role := "member"
		if i == 0 {
			role = "owner"
		}
		band.Members = append(band.Members, persistence.GroupMember{
			GroupID: id, UserID: userID, Role: role, JoinedAt: created.Add(time.Duration(i) * time.Minute),
		})
	}
	return band
}

// NewVenue builds a venue fixture.
func NewVenue(id string) persistence.Venue {
	created := ReferenceTime().Add(-30 * 24 * time.Hour)
	return persistence.Venue{ID: id, Name: "Studio " + id, Address: id + " Side Street", CreatedAt: created, UpdatedAt: created}
}

// RehearsalOption customises a rehearsal fixture.
type RehearsalOption func(*persistence.Rehearsal)

// AtVenue books the rehearsal at venueID.
func AtVenue(venueID string) RehearsalOption {
	return func(r *persistence.Rehearsal) { r.VenueID = &venueID }
}

// Spanning sets the rehearsal start and end.
func Spanning(start, end time.Time) RehearsalOption {
	return func(r *persistence.Rehearsal) { r.Start, r.End = start, end }
}

// Weekly makes the rehearsal repeat weekly on its start weekday until endsOn.
// A zero endsOn leaves the series open-ended.
func Weekly(endsOn time.Time) RehearsalOption {
	return func(r *persistence.Rehearsal) {
		day := int(r.Start.Weekday())
		rule := &persistence.RecurrenceRule{Frequency: "weekly", DayOfWeek: &day, Interval: 1}
		if !endsOn.IsZero() {
			rule.EndsOn = &endsOn
		}
		r.Recurrence = rule
	}
}

// NewRehearsal builds a two hour rehearsal of groupID starting at
// ReferenceTime and created by createdBy.
func NewRehearsal(id, groupID, createdBy string, opts ...RehearsalOption) persistence.Rehearsal {
	r := persistence.Rehearsal{
		ID:        id,
		GroupID:   groupID,
		Title:     "Rehearsal " + id,
		Start:     ReferenceTime(),
		End:       ReferenceTime().Add(2 * time.Hour),
		CreatedBy: createdBy,
		CreatedAt: ReferenceTime().Add(-time.Hour),
		UpdatedAt: ReferenceTime().Add(-time.Hour),
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// SeedBand stores band through repo.
func SeedBand(tb testing.TB, repo persistence.GroupRepository, band Band) {
	tb.Helper()
	ctx := context.Background()
	require.NoError(tb, repo.CreateGroup(ctx, band.Group, band.Members[0]))
	for _, member := range band.Members[1:] {
		require.NoError(tb, repo.UpsertMember(ctx, member))
	}
}
