package application

import (
	"time"

	"github.com/example/rehearsal-scheduler/internal/availability"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
)

// Principal represents the member invoking a service method. Identity is
// asserted upstream; services only authorize.
type Principal struct {
	MemberID string
}

// Role is a member's standing within a group.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ParseRole validates a textual role.
func ParseRole(value string) (Role, bool) {
	switch r := Role(value); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r, true
	default:
		return "", false
	}
}

// canManage reports whether the role may change the roster and rehearsals.
func (r Role) canManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// AttendeeStatus is a member's response to a rehearsal.
type AttendeeStatus string

const (
	AttendeePending   AttendeeStatus = "pending"
	AttendeeConfirmed AttendeeStatus = "confirmed"
	AttendeeDeclined  AttendeeStatus = "declined"
)

// ParseAttendeeStatus validates a textual attendee status.
func ParseAttendeeStatus(value string) (AttendeeStatus, bool) {
	switch s := AttendeeStatus(value); s {
	case AttendeePending, AttendeeConfirmed, AttendeeDeclined:
		return s, true
	default:
		return "", false
	}
}

// VenueInput captures caller provided venue fields.
type VenueInput struct {
	Name    string
	Address string
}

// Venue is a bookable rehearsal space.
type Venue struct {
	ID        string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GroupMember is one entry of a group roster.
type GroupMember struct {
	UserID   string
	Role     Role
	JoinedAt time.Time
}

// Group is a band together with its roster.
type Group struct {
	ID        string
	Name      string
	Members   []GroupMember
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AddMemberParams wraps the data required to add a member to a group.
type AddMemberParams struct {
	Principal Principal
	GroupID   string
	UserID    string
	Role      string
}

// ChangeRoleParams wraps the data required to change a member's role.
type ChangeRoleParams struct {
	Principal Principal
	GroupID   string
	UserID    string
	Role      string
}

// RecurrenceInput captures a caller provided repeat rule. An Interval of zero
// means every period.
type RecurrenceInput struct {
	Frequency string
	DayOfWeek *int
	Interval  int
	EndDate   *time.Time
}

// RehearsalInput captures caller provided rehearsal fields.
type RehearsalInput struct {
	GroupID    string
	VenueID    *string
	Title      string
	Notes      string
	Start      time.Time
	End        time.Time
	Recurrence *RecurrenceInput
}

// Recurrence is the validated repeat rule of a rehearsal.
type Recurrence struct {
	Frequency recurrence.Frequency
	DayOfWeek *time.Weekday
	Interval  int
	// EndDate is an inclusive calendar date; nil leaves the series open-ended.
	EndDate *time.Time
}

// Attendee is a member's response to a rehearsal.
type Attendee struct {
	UserID    string
	Status    AttendeeStatus
	UpdatedAt time.Time
}

// Rehearsal is a scheduled rehearsal of a group.
type Rehearsal struct {
	ID         string
	GroupID    string
	VenueID    *string
	Title      string
	Notes      string
	Start      time.Time
	End        time.Time
	Recurrence *Recurrence
	CreatedBy  string
	Attendees  []Attendee
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Occurrence is one materialised instance of a rehearsal.
type Occurrence struct {
	RehearsalID string
	GroupID     string
	VenueID     *string
	Title       string
	Index       int
	Start       time.Time
	End         time.Time
}

// CreateRehearsalParams wraps the data required to create a rehearsal.
type CreateRehearsalParams struct {
	Principal Principal
	Input     RehearsalInput
}

// UpdateRehearsalParams wraps the data required to update a rehearsal.
type UpdateRehearsalParams struct {
	Principal   Principal
	RehearsalID string
	Input       RehearsalInput
}

// UpdateAttendanceParams wraps the data required to record a response.
type UpdateAttendanceParams struct {
	Principal   Principal
	RehearsalID string
	Status      string
}

// WeeklySlotInput is a caller provided weekly availability window with
// "HH:MM" times.
type WeeklySlotInput struct {
	Day   int
	Start string
	End   string
}

// OneTimeSlotInput is a caller provided single-date availability window.
type OneTimeSlotInput struct {
	Date  time.Time
	Start string
	End   string
}

// SetAvailabilityParams wraps the data required to replace a member's availability.
type SetAvailabilityParams struct {
	Principal Principal
	MemberID  string
	Weekly    []WeeklySlotInput
	OneTime   []OneTimeSlotInput
}

// MemberAvailability is a member's declared availability.
type MemberAvailability struct {
	MemberID string
	Weekly   []availability.WeeklySlot
	OneTime  []availability.OneTimeSlot
}

// SuggestTimesParams describes a request for rehearsal time suggestions.
type SuggestTimesParams struct {
	Principal   Principal
	GroupID     string
	WindowStart time.Time
	WindowEnd   time.Time
	// MinDuration discards common free time shorter than this. Zero means
	// PreferredDuration.
	MinDuration       time.Duration
	PreferredDuration time.Duration
	Limit             int
	// VenueID, when set, drops suggestions that clash with bookings there.
	VenueID *string
}

// Suggestion is a proposed rehearsal slot and the common free window it was
// drawn from.
type Suggestion struct {
	Start       time.Time
	End         time.Time
	WindowStart time.Time
	WindowEnd   time.Time
}
