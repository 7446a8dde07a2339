package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/rehearsal-scheduler/internal/availability"
	"github.com/example/rehearsal-scheduler/internal/interval"
	"github.com/example/rehearsal-scheduler/internal/persistence"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
	"github.com/example/rehearsal-scheduler/internal/scheduler"
)

const (
	// MaxSuggestionWindow bounds how far ahead suggestions are searched.
	MaxSuggestionWindow = 62 * 24 * time.Hour
	// DefaultSuggestionLimit applies when the caller does not set a limit.
	DefaultSuggestionLimit = 5

	suggestionWorkers = 8
)

// AvailabilitySource loads declared member availability.
type AvailabilitySource interface {
	GetAvailability(ctx context.Context, userID string) (persistence.Availability, error)
}

// VenueBookings lists the rehearsals booked at a venue.
type VenueBookings interface {
	ListRehearsalsForVenue(ctx context.Context, venueID string) ([]persistence.Rehearsal, error)
}

// SuggestionService proposes rehearsal times every group member can attend.
type SuggestionService struct {
	groups       GroupDirectory
	availability AvailabilitySource
	bookings     VenueBookings
	aggregator   *availability.Aggregator
	engine       *recurrence.Engine
	logger       *slog.Logger
}

// NewSuggestionService wires dependencies for time suggestions. engine sets
// the location used to materialise wall-clock availability.
func NewSuggestionService(groups GroupDirectory, source AvailabilitySource, bookings VenueBookings, engine *recurrence.Engine, logger *slog.Logger) *SuggestionService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	return &SuggestionService{
		groups:       groups,
		availability: source,
		bookings:     bookings,
		aggregator:   availability.NewAggregator(engine.Location()),
		engine:       engine,
		logger:       defaultLogger(logger),
	}
}

// SuggestTimes intersects the free time of every group member within the
// window and ranks slots of the preferred duration. An empty result means no
// common slot exists and is not an error.
func (s *SuggestionService) SuggestTimes(ctx context.Context, params SuggestTimesParams) (suggestions []Suggestion, err error) {
	if s == nil || s.groups == nil || s.availability == nil {
		err = fmt.Errorf("suggestion dependencies not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "SuggestionService", "SuggestTimes",
		"principal_id", params.Principal.MemberID, "group_id", params.GroupID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to suggest times", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(suggestions)).InfoContext(ctx, "times suggested")
	}()

	window, minDuration, vErr := validateSuggestion(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	members, err := s.groups.ListMembers(ctx, params.GroupID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	roster := NewRoster(toGroupMembers(members))
	if _, ok := roster.Role(params.Principal.MemberID); !ok {
		err = ErrUnauthorized
		return
	}

	free, err := s.freeIntervals(ctx, roster.Members(), window)
	if err != nil {
		return
	}

	common := availability.Intersect(free, minDuration)
	ranked, err := availability.RankCandidates(common, params.PreferredDuration, 0)
	if err != nil {
		return
	}

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	venueID := normalizeOptionalString(params.VenueID)
	var detector *scheduler.ConflictDetector
	if venueID != nil && s.bookings != nil && len(ranked) > 0 {
		var existing []persistence.Rehearsal
		existing, err = s.bookings.ListRehearsalsForVenue(ctx, *venueID)
		if err != nil {
			err = mapRepoError(err)
			return
		}
		detector = scheduler.NewConflictDetector(newVenueBookings(s.engine, existing, window))
	}

	suggestions = make([]Suggestion, 0, limit)
	for _, candidate := range ranked {
		if len(suggestions) == limit {
			break
		}
		if detector != nil {
			var conflict bool
			conflict, err = detector.HasConflict(ctx, *venueID, candidate.Slot, "")
			if err != nil {
				return
			}
			if conflict {
				continue
			}
		}
		suggestions = append(suggestions, Suggestion{
			Start:       candidate.Slot.Start(),
			End:         candidate.Slot.End(),
			WindowStart: candidate.Window.Start(),
			WindowEnd:   candidate.Window.End(),
		})
	}
	return
}

// freeIntervals computes every member's free time concurrently.
func (s *SuggestionService) freeIntervals(ctx context.Context, members []GroupMember, window interval.Interval) ([][]interval.Interval, error) {
	free := make([][]interval.Interval, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(suggestionWorkers)

	for i, member := range members {
		g.Go(func() error {
			stored, err := s.availability.GetAvailability(gctx, member.UserID)
			if err != nil {
				return fmt.Errorf("load availability for %s: %w", member.UserID, mapRepoError(err))
			}
			declared := toMemberAvailability(stored)
			intervals, err := s.aggregator.FreeIntervals(availability.Member{
				ID:      member.UserID,
				Weekly:  declared.Weekly,
				OneTime: declared.OneTime,
			}, window.Start(), window.End())
			if err != nil {
				return err
			}
			free[i] = intervals
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return free, nil
}

func validateSuggestion(params SuggestTimesParams) (interval.Interval, time.Duration, *ValidationError) {
	vErr := &ValidationError{}

	if strings.TrimSpace(params.GroupID) == "" {
		vErr.add("group_id", "group_id is required")
	}
	if params.PreferredDuration <= 0 {
		vErr.add("preferred_duration", "preferred duration must be positive")
	}
	if params.MinDuration < 0 {
		vErr.add("min_duration", "minimum duration must not be negative")
	}

	window, err := interval.New(params.WindowStart, params.WindowEnd)
	switch {
	case params.WindowStart.IsZero() || params.WindowEnd.IsZero() || err != nil:
		vErr.add("window", "window start must be before window end")
	case window.Duration() > MaxSuggestionWindow:
		vErr.add("window", fmt.Sprintf("window must not exceed %d days", int(MaxSuggestionWindow.Hours()/24)))
	}

	minDuration := params.MinDuration
	if minDuration == 0 {
		minDuration = params.PreferredDuration
	}
	return window, minDuration, vErr
}
