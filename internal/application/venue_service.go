package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// VenueService manages the catalog of bookable venues.
type VenueService struct {
	venues      persistence.VenueRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewVenueService constructs a venue service with the provided dependencies.
func NewVenueService(venues persistence.VenueRepository, idGenerator func() string, now func() time.Time) *VenueService {
	return NewVenueServiceWithLogger(venues, idGenerator, now, nil)
}

// NewVenueServiceWithLogger constructs a venue service with a specified logger.
func NewVenueServiceWithLogger(venues persistence.VenueRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *VenueService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &VenueService{venues: venues, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *VenueService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "VenueService", operation, attrs...)
}

// CreateVenue validates input and stores a new venue. Any member may add one.
func (s *VenueService) CreateVenue(ctx context.Context, principal Principal, input VenueInput) (venue Venue, err error) {
	if s == nil {
		err = fmt.Errorf("VenueService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateVenue", "principal_id", principal.MemberID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create venue", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("venue_id", venue.ID).InfoContext(ctx, "venue created")
	}()

	if principal.MemberID == "" {
		err = ErrUnauthorized
		return
	}
	if strings.TrimSpace(input.Name) == "" {
		err = fieldError("name", "name is required")
		return
	}

	venue = Venue{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(input.Name),
		Address:   strings.TrimSpace(input.Address),
		CreatedAt: s.now(),
	}
	venue.UpdatedAt = venue.CreatedAt

	if s.venues == nil {
		return
	}
	if err = s.venues.CreateVenue(ctx, persistence.Venue{
		ID: venue.ID, Name: venue.Name, Address: venue.Address, CreatedAt: venue.CreatedAt, UpdatedAt: venue.UpdatedAt,
	}); err != nil {
		err = mapRepoError(err)
		venue = Venue{}
	}
	return
}

// GetVenue returns one venue.
func (s *VenueService) GetVenue(ctx context.Context, id string) (Venue, error) {
	if s == nil || s.venues == nil {
		return Venue{}, fmt.Errorf("venue repository not configured")
	}
	stored, err := s.venues.GetVenue(ctx, id)
	if err != nil {
		return Venue{}, mapRepoError(err)
	}
	return toVenue(stored), nil
}

// ListVenues returns the catalog ordered by name.
func (s *VenueService) ListVenues(ctx context.Context) ([]Venue, error) {
	if s == nil || s.venues == nil {
		return nil, fmt.Errorf("venue repository not configured")
	}
	stored, err := s.venues.ListVenues(ctx)
	if err != nil {
		return nil, mapRepoError(err)
	}
	venues := make([]Venue, 0, len(stored))
	for _, v := range stored {
		venues = append(venues, toVenue(v))
	}
	return venues, nil
}
