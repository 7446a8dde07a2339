package persistence

import "time"

// Venue is a rehearsal space that can be booked.
type Venue struct {
	ID        string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Group is a band whose members rehearse together.
type Group struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupMember records a user's role within a group.
type GroupMember struct {
	GroupID  string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// RecurrenceRule is the stored form of a rehearsal's repeat pattern.
type RecurrenceRule struct {
	Frequency string
	DayOfWeek *int
	Interval  int
	EndsOn    *time.Time
}

// Rehearsal is a scheduled rehearsal, optionally recurring and optionally
// bound to a venue.
type Rehearsal struct {
	ID         string
	GroupID    string
	VenueID    *string
	Title      string
	Notes      string
	Start      time.Time
	End        time.Time
	Recurrence *RecurrenceRule
	CreatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Attendee tracks one member's response to a rehearsal.
type Attendee struct {
	RehearsalID string
	UserID      string
	Status      string
	UpdatedAt   time.Time
}

// WeeklyAvailability is a recurring weekly window in minutes after midnight.
type WeeklyAvailability struct {
	Weekday     int
	StartMinute int
	EndMinute   int
}

// AvailabilityException is a single-date availability window.
type AvailabilityException struct {
	Date        time.Time
	StartMinute int
	EndMinute   int
}

// Availability groups all declared availability of one user.
type Availability struct {
	UserID  string
	Weekly  []WeeklyAvailability
	OneTime []AvailabilityException
}

// BookingGuard inspects the rehearsals currently booked at a venue inside the
// write transaction and vetoes the write by returning an error.
type BookingGuard func(existing []Rehearsal) error
