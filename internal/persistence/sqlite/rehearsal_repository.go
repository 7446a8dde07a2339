package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

const rehearsalColumns = `id, group_id, venue_id, title, notes, starts_at, ends_at,
	recurrence_frequency, recurrence_day_of_week, recurrence_interval, recurrence_ends_on,
	created_by, created_at, updated_at`

// CreateRehearsal inserts a rehearsal and its attendees. When the rehearsal is
// bound to a venue and guard is non-nil, guard sees the venue's current
// bookings inside the write transaction and may veto the insert.
func (s *Storage) CreateRehearsal(ctx context.Context, rehearsal persistence.Rehearsal, attendees []persistence.Attendee, guard persistence.BookingGuard) error {
	if rehearsal.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := runGuard(ctx, tx, rehearsal.VenueID, guard); err != nil {
			return err
		}

		args := append([]any{rehearsal.ID}, rehearsalValues(rehearsal)...)
		_, err := tx.ExecContext(ctx, `INSERT INTO rehearsals (`+rehearsalColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return mapError(err)
		}

		for _, attendee := range attendees {
			attendee.RehearsalID = rehearsal.ID
			if err := upsertAttendee(ctx, tx, attendee); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateRehearsal replaces the mutable fields of a rehearsal. The guard runs
// as in CreateRehearsal; the rehearsal itself is part of the bookings it sees.
func (s *Storage) UpdateRehearsal(ctx context.Context, rehearsal persistence.Rehearsal, guard persistence.BookingGuard) error {
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := runGuard(ctx, tx, rehearsal.VenueID, guard); err != nil {
			return err
		}

		args := append(rehearsalValues(rehearsal), rehearsal.ID)
		result, err := tx.ExecContext(ctx, `
			UPDATE rehearsals SET
				group_id = ?, venue_id = ?, title = ?, notes = ?, starts_at = ?, ends_at = ?,
				recurrence_frequency = ?, recurrence_day_of_week = ?, recurrence_interval = ?, recurrence_ends_on = ?,
				created_by = ?, created_at = ?, updated_at = ?
			WHERE id = ?`, args...)
		if err != nil {
			return mapError(err)
		}
		return requireAffected(result)
	})
}

// GetRehearsal loads a rehearsal by id.
func (s *Storage) GetRehearsal(ctx context.Context, id string) (persistence.Rehearsal, error) {
	row := s.db().QueryRowContext(ctx, `SELECT `+rehearsalColumns+` FROM rehearsals WHERE id = ?`, id)
	rehearsal, err := scanRehearsal(row)
	if err != nil {
		return persistence.Rehearsal{}, mapError(err)
	}
	return rehearsal, nil
}

// ListRehearsals returns the rehearsals of a group ordered by start and id.
// An empty groupID lists every rehearsal.
func (s *Storage) ListRehearsals(ctx context.Context, groupID string) ([]persistence.Rehearsal, error) {
	if groupID == "" {
		return queryRehearsals(ctx, s.db(), `SELECT `+rehearsalColumns+` FROM rehearsals ORDER BY starts_at, id`)
	}
	return queryRehearsals(ctx, s.db(),
		`SELECT `+rehearsalColumns+` FROM rehearsals WHERE group_id = ? ORDER BY starts_at, id`, groupID)
}

// ListRehearsalsForVenue returns every rehearsal booked at a venue.
func (s *Storage) ListRehearsalsForVenue(ctx context.Context, venueID string) ([]persistence.Rehearsal, error) {
	return listForVenue(ctx, s.db(), venueID)
}

// DeleteRehearsal removes a rehearsal and, by cascade, its attendees.
func (s *Storage) DeleteRehearsal(ctx context.Context, id string) error {
	result, err := s.db().ExecContext(ctx, `DELETE FROM rehearsals WHERE id = ?`, id)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

// ListAttendees returns the attendees of a rehearsal ordered by user id.
func (s *Storage) ListAttendees(ctx context.Context, rehearsalID string) ([]persistence.Attendee, error) {
	rows, err := s.db().QueryContext(ctx,
		`SELECT rehearsal_id, user_id, status, updated_at FROM rehearsal_attendees WHERE rehearsal_id = ? ORDER BY user_id`,
		rehearsalID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	attendees := make([]persistence.Attendee, 0)
	for rows.Next() {
		var (
			attendee persistence.Attendee
			updated  string
		)
		if err := rows.Scan(&attendee.RehearsalID, &attendee.UserID, &attendee.Status, &updated); err != nil {
			return nil, err
		}
		if attendee.UpdatedAt, err = parseTimestamp(updated); err != nil {
			return nil, err
		}
		attendees = append(attendees, attendee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list attendees: %w", err)
	}
	return attendees, nil
}

// UpdateAttendee records an attendee's status, adding the attendee when the
// member joined the group after the rehearsal was created.
func (s *Storage) UpdateAttendee(ctx context.Context, attendee persistence.Attendee) error {
	return upsertAttendee(ctx, s.db(), attendee)
}

func upsertAttendee(ctx context.Context, db execer, attendee persistence.Attendee) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO rehearsal_attendees (rehearsal_id, user_id, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (rehearsal_id, user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		attendee.RehearsalID, attendee.UserID, attendee.Status, formatTimestamp(attendee.UpdatedAt),
	)
	return mapError(err)
}

func runGuard(ctx context.Context, tx *sql.Tx, venueID *string, guard persistence.BookingGuard) error {
	if guard == nil || venueID == nil || *venueID == "" {
		return nil
	}
	existing, err := listForVenue(ctx, tx, *venueID)
	if err != nil {
		return err
	}
	return guard(existing)
}

func listForVenue(ctx context.Context, db queryer, venueID string) ([]persistence.Rehearsal, error) {
	return queryRehearsals(ctx, db,
		`SELECT `+rehearsalColumns+` FROM rehearsals WHERE venue_id = ? ORDER BY starts_at, id`, venueID)
}

func queryRehearsals(ctx context.Context, db queryer, query string, args ...any) ([]persistence.Rehearsal, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	rehearsals := make([]persistence.Rehearsal, 0)
	for rows.Next() {
		rehearsal, err := scanRehearsal(rows)
		if err != nil {
			return nil, err
		}
		rehearsals = append(rehearsals, rehearsal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list rehearsals: %w", err)
	}
	return rehearsals, nil
}

// rehearsalValues returns every column value after id, in rehearsalColumns order.
func rehearsalValues(r persistence.Rehearsal) []any {
	var (
		frequency sql.NullString
		dayOfWeek sql.NullInt64
		interval  sql.NullInt64
		endsOn    sql.NullString
	)
	if rule := r.Recurrence; rule != nil {
		frequency = sql.NullString{String: rule.Frequency, Valid: true}
		interval = sql.NullInt64{Int64: int64(rule.Interval), Valid: true}
		if rule.DayOfWeek != nil {
			dayOfWeek = sql.NullInt64{Int64: int64(*rule.DayOfWeek), Valid: true}
		}
		if rule.EndsOn != nil {
			endsOn = sql.NullString{String: formatDate(*rule.EndsOn), Valid: true}
		}
	}
	return []any{
		r.GroupID, nullString(r.VenueID), r.Title, r.Notes,
		formatTimestamp(r.Start), formatTimestamp(r.End),
		frequency, dayOfWeek, interval, endsOn,
		r.CreatedBy, formatTimestamp(r.CreatedAt), formatTimestamp(r.UpdatedAt),
	}
}

func scanRehearsal(row scanner) (persistence.Rehearsal, error) {
	var (
		r                    persistence.Rehearsal
		venueID              sql.NullString
		startsAt, endsAt     string
		frequency, endsOn    sql.NullString
		dayOfWeek, interval  sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(
		&r.ID, &r.GroupID, &venueID, &r.Title, &r.Notes, &startsAt, &endsAt,
		&frequency, &dayOfWeek, &interval, &endsOn,
		&r.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Rehearsal{}, err
	}

	if venueID.Valid {
		id := venueID.String
		r.VenueID = &id
	}
	for _, field := range []struct {
		dst *time.Time
		src string
	}{
		{&r.Start, startsAt}, {&r.End, endsAt}, {&r.CreatedAt, createdAt}, {&r.UpdatedAt, updatedAt},
	} {
		if *field.dst, err = parseTimestamp(field.src); err != nil {
			return persistence.Rehearsal{}, err
		}
	}

	if frequency.Valid {
		rule := &persistence.RecurrenceRule{Frequency: frequency.String, Interval: int(interval.Int64)}
		if dayOfWeek.Valid {
			day := int(dayOfWeek.Int64)
			rule.DayOfWeek = &day
		}
		if endsOn.Valid {
			date, err := parseDate(endsOn.String)
			if err != nil {
				return persistence.Rehearsal{}, err
			}
			rule.EndsOn = &date
		}
		r.Recurrence = rule
	}
	return r, nil
}
