package application

import (
	"errors"
	"time"

	"github.com/example/rehearsal-scheduler/internal/persistence"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
)

func toVenue(v persistence.Venue) Venue {
	return Venue{ID: v.ID, Name: v.Name, Address: v.Address, CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt}
}

func toGroupMembers(members []persistence.GroupMember) []GroupMember {
	out := make([]GroupMember, 0, len(members))
	for _, m := range members {
		out = append(out, GroupMember{UserID: m.UserID, Role: Role(m.Role), JoinedAt: m.JoinedAt})
	}
	return out
}

func toRehearsal(r persistence.Rehearsal, attendees []persistence.Attendee, loc *time.Location) Rehearsal {
	out := Rehearsal{
		ID:        r.ID,
		GroupID:   r.GroupID,
		VenueID:   copyString(r.VenueID),
		Title:     r.Title,
		Notes:     r.Notes,
		Start:     r.Start.In(loc),
		End:       r.End.In(loc),
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if rule := r.Recurrence; rule != nil {
		rec := &Recurrence{Frequency: recurrence.Frequency(rule.Frequency), Interval: rule.Interval}
		if rule.DayOfWeek != nil {
			day := time.Weekday(*rule.DayOfWeek)
			rec.DayOfWeek = &day
		}
		if rule.EndsOn != nil {
			y, m, d := rule.EndsOn.Date()
			end := time.Date(y, m, d, 0, 0, 0, 0, loc)
			rec.EndDate = &end
		}
		out.Recurrence = rec
	}
	if attendees != nil {
		out.Attendees = toAttendees(attendees)
	}
	return out
}

func toAttendees(attendees []persistence.Attendee) []Attendee {
	out := make([]Attendee, 0, len(attendees))
	for _, a := range attendees {
		out = append(out, Attendee{UserID: a.UserID, Status: AttendeeStatus(a.Status), UpdatedAt: a.UpdatedAt})
	}
	return out
}

func fromRehearsal(r Rehearsal) persistence.Rehearsal {
	out := persistence.Rehearsal{
		ID:        r.ID,
		GroupID:   r.GroupID,
		VenueID:   copyString(r.VenueID),
		Title:     r.Title,
		Notes:     r.Notes,
		Start:     r.Start,
		End:       r.End,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if rec := r.Recurrence; rec != nil {
		rule := &persistence.RecurrenceRule{Frequency: string(rec.Frequency), Interval: rec.Interval}
		if rec.DayOfWeek != nil {
			day := int(*rec.DayOfWeek)
			rule.DayOfWeek = &day
		}
		if rec.EndDate != nil {
			y, m, d := rec.EndDate.Date()
			date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			rule.EndsOn = &date
		}
		out.Recurrence = rule
	}
	return out
}

// Pattern converts the rule into the engine's form. The inclusive end date
// becomes the start of the following day.
func (r *Recurrence) Pattern() recurrence.Pattern {
	p := recurrence.Pattern{Frequency: r.Frequency, Interval: r.Interval}
	if r.DayOfWeek != nil {
		day := *r.DayOfWeek
		p.DayOfWeek = &day
	}
	if r.EndDate != nil {
		p.EndDate = r.EndDate.AddDate(0, 0, 1)
	}
	return p
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}

// mapRepoError translates persistence sentinels into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isNotFound(err):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("reference", "related records are missing")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return fieldError("record", "record violates a storage constraint")
	default:
		return err
	}
}
