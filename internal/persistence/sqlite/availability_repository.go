package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// ReplaceAvailability swaps a user's weekly and one-time availability in one
// transaction.
func (s *Storage) ReplaceAvailability(ctx context.Context, availability persistence.Availability) error {
	if availability.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM weekly_availability WHERE user_id = ?`,
			`DELETE FROM availability_exceptions WHERE user_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, availability.UserID); err != nil {
				return mapError(err)
			}
		}

		for _, slot := range availability.Weekly {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO weekly_availability (user_id, weekday, start_minute, end_minute) VALUES (?, ?, ?, ?)`,
				availability.UserID, slot.Weekday, slot.StartMinute, slot.EndMinute,
			)
			if err != nil {
				return mapError(err)
			}
		}
		for _, slot := range availability.OneTime {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO availability_exceptions (user_id, date, start_minute, end_minute) VALUES (?, ?, ?, ?)`,
				availability.UserID, formatDate(slot.Date), slot.StartMinute, slot.EndMinute,
			)
			if err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

// GetAvailability loads a user's availability. A user who never declared any
// gets an empty Availability rather than ErrNotFound.
func (s *Storage) GetAvailability(ctx context.Context, userID string) (persistence.Availability, error) {
	availability := persistence.Availability{
		UserID:  userID,
		Weekly:  make([]persistence.WeeklyAvailability, 0),
		OneTime: make([]persistence.AvailabilityException, 0),
	}

	rows, err := s.db().QueryContext(ctx,
		`SELECT weekday, start_minute, end_minute FROM weekly_availability WHERE user_id = ? ORDER BY weekday, start_minute`,
		userID,
	)
	if err != nil {
		return persistence.Availability{}, mapError(err)
	}
	for rows.Next() {
		var slot persistence.WeeklyAvailability
		if err := rows.Scan(&slot.Weekday, &slot.StartMinute, &slot.EndMinute); err != nil {
			rows.Close()
			return persistence.Availability{}, err
		}
		availability.Weekly = append(availability.Weekly, slot)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return persistence.Availability{}, fmt.Errorf("sqlite: list weekly availability: %w", err)
	}

	rows, err = s.db().QueryContext(ctx,
		`SELECT date, start_minute, end_minute FROM availability_exceptions WHERE user_id = ? ORDER BY date, start_minute`,
		userID,
	)
	if err != nil {
		return persistence.Availability{}, mapError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			slot persistence.AvailabilityException
			date string
		)
		if err := rows.Scan(&date, &slot.StartMinute, &slot.EndMinute); err != nil {
			return persistence.Availability{}, err
		}
		if slot.Date, err = parseDate(date); err != nil {
			return persistence.Availability{}, err
		}
		availability.OneTime = append(availability.OneTime, slot)
	}
	if err := rows.Err(); err != nil {
		return persistence.Availability{}, fmt.Errorf("sqlite: list availability exceptions: %w", err)
	}
	return availability, nil
}
