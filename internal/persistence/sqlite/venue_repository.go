package sqlite

import (
	"context"
	"fmt"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

const venueColumns = `id, name, address, created_at, updated_at`

// CreateVenue inserts a venue.
func (s *Storage) CreateVenue(ctx context.Context, venue persistence.Venue) error {
	if venue.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.db().ExecContext(ctx,
		`INSERT INTO venues (`+venueColumns+`) VALUES (?, ?, ?, ?, ?)`,
		venue.ID, venue.Name, venue.Address, formatTimestamp(venue.CreatedAt), formatTimestamp(venue.UpdatedAt),
	)
	return mapError(err)
}

// GetVenue loads a venue by id.
func (s *Storage) GetVenue(ctx context.Context, id string) (persistence.Venue, error) {
	row := s.db().QueryRowContext(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = ?`, id)
	venue, err := scanVenue(row)
	if err != nil {
		return persistence.Venue{}, mapError(err)
	}
	return venue, nil
}

// ListVenues returns every venue ordered by name.
func (s *Storage) ListVenues(ctx context.Context) ([]persistence.Venue, error) {
	rows, err := s.db().QueryContext(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY name, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	venues := make([]persistence.Venue, 0)
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list venues: %w", err)
	}
	return venues, nil
}

func scanVenue(row scanner) (persistence.Venue, error) {
	var (
		venue              persistence.Venue
		createdAt, updated string
	)
	if err := row.Scan(&venue.ID, &venue.Name, &venue.Address, &createdAt, &updated); err != nil {
		return persistence.Venue{}, err
	}
	var err error
	if venue.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Venue{}, err
	}
	if venue.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return persistence.Venue{}, err
	}
	return venue, nil
}
