package persistence

import "context"

// VenueRepository exposes CRUD operations for venues.
type VenueRepository interface {
	CreateVenue(ctx context.Context, venue Venue) error
	GetVenue(ctx context.Context, id string) (Venue, error)
	ListVenues(ctx context.Context) ([]Venue, error)
}

// GroupRepository stores groups and their rosters.
type GroupRepository interface {
	CreateGroup(ctx context.Context, group Group, owner GroupMember) error
	GetGroup(ctx context.Context, id string) (Group, error)
	ListMembers(ctx context.Context, groupID string) ([]GroupMember, error)
	UpsertMember(ctx context.Context, member GroupMember) error
	DeleteMember(ctx context.Context, groupID, userID string) error
}

// RehearsalRepository stores rehearsals and their attendees. Writes that carry
// a BookingGuard run the guard and the write in one transaction so concurrent
// bookings of the same venue cannot interleave.
type RehearsalRepository interface {
	CreateRehearsal(ctx context.Context, rehearsal Rehearsal, attendees []Attendee, guard BookingGuard) error
	UpdateRehearsal(ctx context.Context, rehearsal Rehearsal, guard BookingGuard) error
	GetRehearsal(ctx context.Context, id string) (Rehearsal, error)
	ListRehearsals(ctx context.Context, groupID string) ([]Rehearsal, error)
	ListRehearsalsForVenue(ctx context.Context, venueID string) ([]Rehearsal, error)
	DeleteRehearsal(ctx context.Context, id string) error
	ListAttendees(ctx context.Context, rehearsalID string) ([]Attendee, error)
	UpdateAttendee(ctx context.Context, attendee Attendee) error
}

// AvailabilityRepository stores member availability.
type AvailabilityRepository interface {
	ReplaceAvailability(ctx context.Context, availability Availability) error
	GetAvailability(ctx context.Context, userID string) (Availability, error)
}
