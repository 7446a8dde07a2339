package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/rehearsal-scheduler/internal/availability"
	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// AvailabilityService stores the weekly and one-time availability members
// declare for time suggestions.
type AvailabilityService struct {
	store  persistence.AvailabilityRepository
	logger *slog.Logger
}

// NewAvailabilityService constructs an availability service.
func NewAvailabilityService(store persistence.AvailabilityRepository, logger *slog.Logger) *AvailabilityService {
	return &AvailabilityService{store: store, logger: defaultLogger(logger)}
}

// SetAvailability replaces the member's availability. Members may only set
// their own.
func (s *AvailabilityService) SetAvailability(ctx context.Context, params SetAvailabilityParams) (result MemberAvailability, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("availability repository not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "AvailabilityService", "SetAvailability",
		"principal_id", params.Principal.MemberID, "member_id", params.MemberID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set availability", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("weekly_slots", len(result.Weekly), "one_time_slots", len(result.OneTime)).
			InfoContext(ctx, "availability replaced")
	}()

	if params.MemberID == "" || params.Principal.MemberID != params.MemberID {
		err = ErrUnauthorized
		return
	}

	vErr := &ValidationError{}
	stored := persistence.Availability{
		UserID:  params.MemberID,
		Weekly:  make([]persistence.WeeklyAvailability, 0, len(params.Weekly)),
		OneTime: make([]persistence.AvailabilityException, 0, len(params.OneTime)),
	}
	result = MemberAvailability{
		MemberID: params.MemberID,
		Weekly:   make([]availability.WeeklySlot, 0, len(params.Weekly)),
		OneTime:  make([]availability.OneTimeSlot, 0, len(params.OneTime)),
	}

	for i, slot := range params.Weekly {
		field := fmt.Sprintf("weekly[%d]", i)
		if slot.Day < int(time.Sunday) || slot.Day > int(time.Saturday) {
			vErr.add(field+".day", "day must be 0 (Sunday) through 6 (Saturday)")
			continue
		}
		start, end, ok := parseSlotTimes(field, slot.Start, slot.End, vErr)
		if !ok {
			continue
		}
		result.Weekly = append(result.Weekly, availability.WeeklySlot{Day: time.Weekday(slot.Day), Start: start, End: end})
		stored.Weekly = append(stored.Weekly, persistence.WeeklyAvailability{Weekday: slot.Day, StartMinute: int(start), EndMinute: int(end)})
	}

	for i, slot := range params.OneTime {
		field := fmt.Sprintf("one_time[%d]", i)
		if slot.Date.IsZero() {
			vErr.add(field+".date", "date is required")
			continue
		}
		start, end, ok := parseSlotTimes(field, slot.Start, slot.End, vErr)
		if !ok {
			continue
		}
		y, m, d := slot.Date.Date()
		date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		result.OneTime = append(result.OneTime, availability.OneTimeSlot{Date: date, Start: start, End: end})
		stored.OneTime = append(stored.OneTime, persistence.AvailabilityException{Date: date, StartMinute: int(start), EndMinute: int(end)})
	}

	if vErr.HasErrors() {
		err = vErr
		result = MemberAvailability{}
		return
	}

	if err = s.store.ReplaceAvailability(ctx, stored); err != nil {
		err = mapRepoError(err)
		result = MemberAvailability{}
	}
	return
}

// GetAvailability returns a member's declared availability. A member who
// never declared any has none.
func (s *AvailabilityService) GetAvailability(ctx context.Context, memberID string) (MemberAvailability, error) {
	if s == nil || s.store == nil {
		return MemberAvailability{}, fmt.Errorf("availability repository not configured")
	}
	stored, err := s.store.GetAvailability(ctx, memberID)
	if err != nil {
		return MemberAvailability{}, mapRepoError(err)
	}
	return toMemberAvailability(stored), nil
}

func toMemberAvailability(stored persistence.Availability) MemberAvailability {
	out := MemberAvailability{
		MemberID: stored.UserID,
		Weekly:   make([]availability.WeeklySlot, 0, len(stored.Weekly)),
		OneTime:  make([]availability.OneTimeSlot, 0, len(stored.OneTime)),
	}
	for _, w := range stored.Weekly {
		out.Weekly = append(out.Weekly, availability.WeeklySlot{
			Day: time.Weekday(w.Weekday), Start: availability.TimeOfDay(w.StartMinute), End: availability.TimeOfDay(w.EndMinute),
		})
	}
	for _, o := range stored.OneTime {
		out.OneTime = append(out.OneTime, availability.OneTimeSlot{
			Date: o.Date, Start: availability.TimeOfDay(o.StartMinute), End: availability.TimeOfDay(o.EndMinute),
		})
	}
	return out
}

func parseSlotTimes(field, startText, endText string, vErr *ValidationError) (availability.TimeOfDay, availability.TimeOfDay, bool) {
	start, err := availability.ParseTimeOfDay(startText)
	if err != nil || start >= availability.MinutesPerDay {
		vErr.add(field+".start", "start must be HH:MM before 24:00")
		return 0, 0, false
	}
	end, err := availability.ParseTimeOfDay(endText)
	if err != nil || end == 0 {
		vErr.add(field+".end", "end must be HH:MM after 00:00")
		return 0, 0, false
	}
	if start == end {
		vErr.add(field+".end", "end must differ from start")
		return 0, 0, false
	}
	return start, end, true
}
