package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/rehearsal-scheduler/internal/interval"
	"github.com/example/rehearsal-scheduler/internal/persistence"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
)

// GroupDirectory resolves groups and their rosters.
type GroupDirectory interface {
	GetGroup(ctx context.Context, id string) (persistence.Group, error)
	ListMembers(ctx context.Context, groupID string) ([]persistence.GroupMember, error)
}

// VenueCatalog resolves venues.
type VenueCatalog interface {
	GetVenue(ctx context.Context, id string) (persistence.Venue, error)
}

// RehearsalService orchestrates validation, conflict checks, and persistence
// for rehearsals.
type RehearsalService struct {
	rehearsals  persistence.RehearsalRepository
	groups      GroupDirectory
	venues      VenueCatalog
	engine      *recurrence.Engine
	cache       *occurrenceCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewRehearsalService wires dependencies for rehearsal operations.
func NewRehearsalService(rehearsals persistence.RehearsalRepository, groups GroupDirectory, venues VenueCatalog, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *RehearsalService {
	return NewRehearsalServiceWithLogger(rehearsals, groups, venues, engine, idGenerator, now, nil)
}

// NewRehearsalServiceWithLogger wires dependencies with a specified logger.
func NewRehearsalServiceWithLogger(rehearsals persistence.RehearsalRepository, groups GroupDirectory, venues VenueCatalog, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *RehearsalService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &RehearsalService{
		rehearsals:  rehearsals,
		groups:      groups,
		venues:      venues,
		engine:      engine,
		cache:       newOccurrenceCache(0, 0, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *RehearsalService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RehearsalService", operation, attrs...)
}

// CreateRehearsal validates the request, checks the venue for conflicts with
// every occurrence of the new rehearsal, and stores it with all group members
// as pending attendees.
func (s *RehearsalService) CreateRehearsal(ctx context.Context, params CreateRehearsalParams) (rehearsal Rehearsal, err error) {
	if s == nil {
		err = fmt.Errorf("RehearsalService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateRehearsal",
		"principal_id", params.Principal.MemberID,
		"group_id", params.Input.GroupID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create rehearsal", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("rehearsal_id", rehearsal.ID).InfoContext(ctx, "rehearsal created")
	}()

	if s.rehearsals == nil || s.groups == nil {
		err = fmt.Errorf("rehearsal dependencies not configured")
		return
	}

	input := params.Input
	roster, err := s.loadRoster(ctx, input.GroupID)
	if err != nil {
		return
	}
	if _, ok := roster.Role(params.Principal.MemberID); !ok {
		err = ErrUnauthorized
		return
	}

	rec, vErr := s.validateInput(ctx, input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	rehearsal = Rehearsal{
		ID:         s.idGenerator(),
		GroupID:    input.GroupID,
		VenueID:    normalizeOptionalString(input.VenueID),
		Title:      strings.TrimSpace(input.Title),
		Notes:      input.Notes,
		Start:      input.Start,
		End:        input.End,
		Recurrence: rec,
		CreatedBy:  params.Principal.MemberID,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}

	guard, err := s.guardFor(ctx, rehearsal, "")
	if err != nil {
		return
	}

	members := roster.Members()
	attendees := make([]persistence.Attendee, 0, len(members))
	rehearsal.Attendees = make([]Attendee, 0, len(members))
	for _, member := range members {
		attendees = append(attendees, persistence.Attendee{UserID: member.UserID, Status: string(AttendeePending), UpdatedAt: createdAt})
		rehearsal.Attendees = append(rehearsal.Attendees, Attendee{UserID: member.UserID, Status: AttendeePending, UpdatedAt: createdAt})
	}

	if err = s.rehearsals.CreateRehearsal(ctx, fromRehearsal(rehearsal), attendees, guard); err != nil {
		err = mapRehearsalRepoError(err)
		rehearsal = Rehearsal{}
		return
	}
	return
}

// UpdateRehearsal replaces a rehearsal's fields. Only its creator or a group
// owner or admin may edit it, and its group cannot change.
func (s *RehearsalService) UpdateRehearsal(ctx context.Context, params UpdateRehearsalParams) (rehearsal Rehearsal, err error) {
	if s == nil {
		err = fmt.Errorf("RehearsalService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateRehearsal",
		"principal_id", params.Principal.MemberID,
		"rehearsal_id", params.RehearsalID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update rehearsal", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rehearsal updated")
	}()

	existing, err := s.loadForManagement(ctx, params.Principal, params.RehearsalID)
	if err != nil {
		return
	}

	input := params.Input
	if input.GroupID == "" {
		input.GroupID = existing.GroupID
	}
	rec, vErr := s.validateInput(ctx, input)
	if input.GroupID != existing.GroupID {
		vErr.add("group_id", "group cannot be changed")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	rehearsal = existing
	rehearsal.VenueID = normalizeOptionalString(input.VenueID)
	rehearsal.Title = strings.TrimSpace(input.Title)
	rehearsal.Notes = input.Notes
	rehearsal.Start = input.Start
	rehearsal.End = input.End
	rehearsal.Recurrence = rec
	rehearsal.UpdatedAt = s.now()

	guard, err := s.guardFor(ctx, rehearsal, rehearsal.ID)
	if err != nil {
		return
	}

	if err = s.rehearsals.UpdateRehearsal(ctx, fromRehearsal(rehearsal), guard); err != nil {
		err = mapRehearsalRepoError(err)
		rehearsal = Rehearsal{}
		return
	}
	s.cache.Invalidate(rehearsal.ID)

	rehearsal.Attendees, err = s.attendees(ctx, rehearsal.ID)
	return
}

// DeleteRehearsal removes a rehearsal after the same authorization as UpdateRehearsal.
func (s *RehearsalService) DeleteRehearsal(ctx context.Context, principal Principal, rehearsalID string) (err error) {
	if s == nil {
		return fmt.Errorf("RehearsalService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteRehearsal", "principal_id", principal.MemberID, "rehearsal_id", rehearsalID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete rehearsal", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rehearsal deleted")
	}()

	if _, err = s.loadForManagement(ctx, principal, rehearsalID); err != nil {
		return
	}
	if err = s.rehearsals.DeleteRehearsal(ctx, rehearsalID); err != nil {
		return mapRehearsalRepoError(err)
	}
	s.cache.Invalidate(rehearsalID)
	return nil
}

// GetRehearsal returns a rehearsal with its attendees to a member of its group.
func (s *RehearsalService) GetRehearsal(ctx context.Context, principal Principal, rehearsalID string) (Rehearsal, error) {
	if s == nil || s.rehearsals == nil {
		return Rehearsal{}, fmt.Errorf("rehearsal repository not configured")
	}
	stored, err := s.rehearsals.GetRehearsal(ctx, rehearsalID)
	if err != nil {
		return Rehearsal{}, mapRehearsalRepoError(err)
	}
	if err := s.requireMember(ctx, principal, stored.GroupID); err != nil {
		return Rehearsal{}, err
	}
	rehearsal := toRehearsal(stored, nil, s.engine.Location())
	rehearsal.Attendees, err = s.attendees(ctx, rehearsalID)
	if err != nil {
		return Rehearsal{}, err
	}
	return rehearsal, nil
}

// ListRehearsals returns a group's rehearsals ordered by start then id.
func (s *RehearsalService) ListRehearsals(ctx context.Context, principal Principal, groupID string) ([]Rehearsal, error) {
	if s == nil || s.rehearsals == nil {
		return nil, fmt.Errorf("rehearsal repository not configured")
	}
	if strings.TrimSpace(groupID) == "" {
		return nil, fieldError("group_id", "group_id is required")
	}
	if err := s.requireMember(ctx, principal, groupID); err != nil {
		return nil, err
	}
	stored, err := s.rehearsals.ListRehearsals(ctx, groupID)
	if err != nil {
		return nil, mapRehearsalRepoError(err)
	}
	out := make([]Rehearsal, 0, len(stored))
	for _, r := range stored {
		out = append(out, toRehearsal(r, nil, s.engine.Location()))
	}
	return out, nil
}

// Occurrences expands a rehearsal into the occurrences starting within
// [from, to]. A non-recurring rehearsal yields itself when it starts in range.
func (s *RehearsalService) Occurrences(ctx context.Context, principal Principal, rehearsalID string, from, to time.Time) ([]Occurrence, error) {
	if s == nil || s.rehearsals == nil {
		return nil, fmt.Errorf("rehearsal repository not configured")
	}
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return nil, fmt.Errorf("%w: window must have from <= to", interval.ErrInvalidInterval)
	}

	generation := s.cache.Generation(rehearsalID)
	stored, err := s.rehearsals.GetRehearsal(ctx, rehearsalID)
	if err != nil {
		return nil, mapRehearsalRepoError(err)
	}
	if err := s.requireMember(ctx, principal, stored.GroupID); err != nil {
		return nil, err
	}

	key := occurrenceCacheKey(rehearsalID, from, to)
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}
	occurrences, err := expandRehearsal(s.engine, toRehearsal(stored, nil, s.engine.Location()), from, to)
	if err != nil {
		return nil, err
	}
	s.cache.Store(key, rehearsalID, generation, occurrences)
	return occurrences, nil
}

// UpcomingOccurrences expands every stored rehearsal over [from, to] for
// background jobs. No principal is involved.
func (s *RehearsalService) UpcomingOccurrences(ctx context.Context, from, to time.Time) ([]Occurrence, error) {
	if s == nil || s.rehearsals == nil {
		return nil, fmt.Errorf("rehearsal repository not configured")
	}
	stored, err := s.rehearsals.ListRehearsals(ctx, "")
	if err != nil {
		return nil, mapRehearsalRepoError(err)
	}

	out := make([]Occurrence, 0)
	for _, r := range stored {
		occurrences, err := expandRehearsal(s.engine, toRehearsal(r, nil, s.engine.Location()), from, to)
		if err != nil {
			s.loggerWith(ctx, "UpcomingOccurrences", "rehearsal_id", r.ID).
				WarnContext(ctx, "skipping rehearsal that cannot be expanded", "error", err, "error_kind", ErrorKind(err))
			continue
		}
		out = append(out, occurrences...)
	}
	return out, nil
}

// UpdateAttendance records the principal's own response to a rehearsal.
func (s *RehearsalService) UpdateAttendance(ctx context.Context, params UpdateAttendanceParams) (attendee Attendee, err error) {
	if s == nil || s.rehearsals == nil {
		err = fmt.Errorf("rehearsal repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateAttendance",
		"principal_id", params.Principal.MemberID,
		"rehearsal_id", params.RehearsalID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update attendance", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("status", attendee.Status).InfoContext(ctx, "attendance updated")
	}()

	status, ok := ParseAttendeeStatus(params.Status)
	if !ok {
		err = fieldError("status", "status must be pending, confirmed, or declined")
		return
	}

	stored, err := s.rehearsals.GetRehearsal(ctx, params.RehearsalID)
	if err != nil {
		err = mapRehearsalRepoError(err)
		return
	}
	if err = s.requireMember(ctx, params.Principal, stored.GroupID); err != nil {
		return
	}

	attendee = Attendee{UserID: params.Principal.MemberID, Status: status, UpdatedAt: s.now()}
	err = s.rehearsals.UpdateAttendee(ctx, persistence.Attendee{
		RehearsalID: params.RehearsalID,
		UserID:      attendee.UserID,
		Status:      string(attendee.Status),
		UpdatedAt:   attendee.UpdatedAt,
	})
	if err != nil {
		err = mapRehearsalRepoError(err)
		attendee = Attendee{}
	}
	return
}

func (s *RehearsalService) loadRoster(ctx context.Context, groupID string) (*Roster, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, fieldError("group_id", "group_id is required")
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	if len(members) == 0 {
		if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
			if isNotFound(err) {
				return nil, fieldError("group_id", "group does not exist")
			}
			return nil, err
		}
	}
	return NewRoster(toGroupMembers(members)), nil
}

func (s *RehearsalService) requireMember(ctx context.Context, principal Principal, groupID string) error {
	if s.groups == nil {
		return fmt.Errorf("group directory not configured")
	}
	roster, err := s.loadRoster(ctx, groupID)
	if err != nil {
		return err
	}
	if _, ok := roster.Role(principal.MemberID); !ok {
		return ErrUnauthorized
	}
	return nil
}

// loadForManagement loads a rehearsal the principal may edit or delete.
func (s *RehearsalService) loadForManagement(ctx context.Context, principal Principal, rehearsalID string) (Rehearsal, error) {
	if s.rehearsals == nil || s.groups == nil {
		return Rehearsal{}, fmt.Errorf("rehearsal dependencies not configured")
	}
	stored, err := s.rehearsals.GetRehearsal(ctx, rehearsalID)
	if err != nil {
		return Rehearsal{}, mapRehearsalRepoError(err)
	}
	roster, err := s.loadRoster(ctx, stored.GroupID)
	if err != nil {
		return Rehearsal{}, err
	}
	role, ok := roster.Role(principal.MemberID)
	if !ok || (stored.CreatedBy != principal.MemberID && !role.canManage()) {
		return Rehearsal{}, ErrUnauthorized
	}
	return toRehearsal(stored, nil, s.engine.Location()), nil
}

func (s *RehearsalService) attendees(ctx context.Context, rehearsalID string) ([]Attendee, error) {
	stored, err := s.rehearsals.ListAttendees(ctx, rehearsalID)
	if err != nil {
		return nil, mapRehearsalRepoError(err)
	}
	return toAttendees(stored), nil
}

// validateInput checks the caller supplied fields and returns the validated
// recurrence rule, if any.
func (s *RehearsalService) validateInput(ctx context.Context, input RehearsalInput) (*Recurrence, *ValidationError) {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !input.Start.IsZero() && !input.End.IsZero() && !input.Start.Before(input.End) {
		vErr.add("time", "start must be before end")
	}

	if venueID := normalizeOptionalString(input.VenueID); venueID != nil && s.venues != nil {
		if _, err := s.venues.GetVenue(ctx, *venueID); err != nil {
			if isNotFound(err) {
				vErr.add("venue_id", "venue does not exist")
			} else {
				vErr.add("venue_id", "venue could not be verified")
			}
		}
	}

	var rec *Recurrence
	if input.Recurrence != nil {
		var rErr *ValidationError
		rec, rErr = s.validateRecurrence(*input.Recurrence, input.Start)
		vErr.merge(rErr)
	}
	return rec, vErr
}

func (s *RehearsalService) validateRecurrence(input RecurrenceInput, start time.Time) (*Recurrence, *ValidationError) {
	vErr := &ValidationError{}

	frequency, err := recurrence.ParseFrequency(strings.ToLower(strings.TrimSpace(input.Frequency)))
	if err != nil {
		vErr.add("recurrence.frequency", "frequency must be weekly, biweekly, or monthly")
		return nil, vErr
	}
	rec := &Recurrence{Frequency: frequency, Interval: input.Interval}
	if rec.Interval == 0 {
		rec.Interval = 1
	}
	if input.DayOfWeek != nil {
		day := time.Weekday(*input.DayOfWeek)
		rec.DayOfWeek = &day
	}
	if input.EndDate != nil {
		y, m, d := input.EndDate.Date()
		end := time.Date(y, m, d, 0, 0, 0, 0, s.engine.Location())
		rec.EndDate = &end
	}

	if start.IsZero() {
		return rec, vErr
	}
	if err := s.engine.Validate(rec.Pattern(), start); err != nil {
		switch {
		case rec.Interval < 0:
			vErr.add("recurrence.interval", "interval must be positive")
		case (frequency == recurrence.FrequencyWeekly || frequency == recurrence.FrequencyBiweekly) &&
			(rec.DayOfWeek == nil || *rec.DayOfWeek < time.Sunday || *rec.DayOfWeek > time.Saturday):
			vErr.add("recurrence.day_of_week", "day_of_week must be 0 (Sunday) through 6 (Saturday)")
		default:
			vErr.add("recurrence.end_date", "end_date must not precede the first rehearsal")
		}
	}
	return rec, vErr
}

// guardFor expands the rehearsal's occurrences and returns the guard that
// enforces venue exclusivity inside the write transaction.
func (s *RehearsalService) guardFor(ctx context.Context, rehearsal Rehearsal, excludeID string) (persistence.BookingGuard, error) {
	if rehearsal.VenueID == nil {
		return nil, nil
	}
	candidates, span, err := candidateIntervals(s.engine, rehearsal)
	if err != nil {
		switch {
		case errors.Is(err, recurrence.ErrOccurrenceLimitExceeded):
			return nil, fieldError("recurrence", "recurrence yields too many occurrences; set an earlier end_date")
		case errors.Is(err, recurrence.ErrInvalidPattern):
			return nil, fieldError("recurrence", "recurrence yields no occurrences")
		default:
			return nil, err
		}
	}
	return bookingGuard(ctx, s.engine, *rehearsal.VenueID, excludeID, candidates, span), nil
}

func mapRehearsalRepoError(err error) error {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return fieldError("venue_id", "venue or group does not exist")
	}
	return mapRepoError(err)
}

func normalizeOptionalString(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
