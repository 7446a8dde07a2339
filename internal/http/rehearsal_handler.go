package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/rehearsal-scheduler/internal/application"
	"github.com/example/rehearsal-scheduler/internal/calendar"
)

type rehearsalService interface {
	CreateRehearsal(ctx context.Context, params application.CreateRehearsalParams) (application.Rehearsal, error)
	UpdateRehearsal(ctx context.Context, params application.UpdateRehearsalParams) (application.Rehearsal, error)
	DeleteRehearsal(ctx context.Context, principal application.Principal, rehearsalID string) error
	GetRehearsal(ctx context.Context, principal application.Principal, rehearsalID string) (application.Rehearsal, error)
	ListRehearsals(ctx context.Context, principal application.Principal, groupID string) ([]application.Rehearsal, error)
	Occurrences(ctx context.Context, principal application.Principal, rehearsalID string, from, to time.Time) ([]application.Occurrence, error)
	UpdateAttendance(ctx context.Context, params application.UpdateAttendanceParams) (application.Attendee, error)
}

// RehearsalHandler serves rehearsals, their occurrences, and attendance.
type RehearsalHandler struct {
	service   rehearsalService
	location  *time.Location
	now       func() time.Time
	responder responder
}

// NewRehearsalHandler constructs a handler. loc is the zone recurrence rules
// are evaluated in and is used to render RRULEs.
func NewRehearsalHandler(service rehearsalService, loc *time.Location, now func() time.Time, logger *slog.Logger) *RehearsalHandler {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &RehearsalHandler{service: service, location: loc, now: now, responder: newResponder(logger, "RehearsalHandler")}
}

func (h *RehearsalHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req rehearsalRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	logger := h.responder.log(r.Context(), "Create", "principal_id", principal.MemberID, "group_id", req.GroupID)
	rehearsal, err := h.service.CreateRehearsal(r.Context(), application.CreateRehearsalParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "rehearsal creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("rehearsal_id", rehearsal.ID).InfoContext(r.Context(), "rehearsal created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, rehearsalResponse{Rehearsal: h.toDTO(rehearsal)})
}

func (h *RehearsalHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	rehearsalID := r.PathValue("id")

	var req rehearsalRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	logger := h.responder.log(r.Context(), "Update", "principal_id", principal.MemberID, "rehearsal_id", rehearsalID)
	rehearsal, err := h.service.UpdateRehearsal(r.Context(), application.UpdateRehearsalParams{
		Principal:   principal,
		RehearsalID: rehearsalID,
		Input:       req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "rehearsal update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "rehearsal updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rehearsalResponse{Rehearsal: h.toDTO(rehearsal)})
}

func (h *RehearsalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteRehearsal(r.Context(), principal, r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RehearsalHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	rehearsal, err := h.service.GetRehearsal(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rehearsalResponse{Rehearsal: h.toDTO(rehearsal)})
}

func (h *RehearsalHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	rehearsals, err := h.service.ListRehearsals(r.Context(), principal, r.URL.Query().Get("group_id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]rehearsalDTO, 0, len(rehearsals))
	for _, rehearsal := range rehearsals {
		out = append(out, h.toDTO(rehearsal))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRehearsalsResponse{Rehearsals: out})
}

func (h *RehearsalHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	occurrences, ok := h.loadOccurrences(w, r)
	if !ok {
		return
	}
	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, o := range occurrences {
		out = append(out, occurrenceDTO{
			Index:   o.Index,
			Title:   o.Title,
			VenueID: o.VenueID,
			Start:   o.Start.Format(time.RFC3339),
			End:     o.End.Format(time.RFC3339),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, occurrencesResponse{Occurrences: out})
}

// Calendar exports the occurrences in the requested window as an iCalendar feed.
func (h *RehearsalHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	occurrences, ok := h.loadOccurrences(w, r)
	if !ok {
		return
	}
	events := OccurrenceEvents(occurrences)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", r.PathValue("id")+".ics"))
	if err := calendar.Encode(w, events, h.now()); err != nil {
		h.responder.log(r.Context(), "Calendar", "rehearsal_id", r.PathValue("id")).ErrorContext(r.Context(), "failed to encode calendar", "error", err)
	}
}

func (h *RehearsalHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req attendanceRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	attendee, err := h.service.UpdateAttendance(r.Context(), application.UpdateAttendanceParams{
		Principal:   principal,
		RehearsalID: r.PathValue("id"),
		Status:      req.Status,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendeeResponse{Attendee: toAttendeeDTO(attendee)})
}

func (h *RehearsalHandler) loadOccurrences(w http.ResponseWriter, r *http.Request) ([]application.Occurrence, bool) {
	from, to, err := parseWindow(r.URL.Query())
	if err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, err)
		return nil, false
	}
	principal, _ := PrincipalFromContext(r.Context())

	occurrences, err := h.service.Occurrences(r.Context(), principal, r.PathValue("id"), from, to)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return nil, false
	}
	return occurrences, true
}

// OccurrenceEvents converts occurrences into calendar events.
func OccurrenceEvents(occurrences []application.Occurrence) []calendar.Event {
	events := make([]calendar.Event, 0, len(occurrences))
	for _, o := range occurrences {
		event := calendar.Event{
			UID:     calendar.OccurrenceUID(o.RehearsalID, o.Index),
			Summary: o.Title,
			Start:   o.Start,
			End:     o.End,
		}
		if o.VenueID != nil {
			event.Location = *o.VenueID
		}
		events = append(events, event)
	}
	return events
}

func parseWindow(query url.Values) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, strings.TrimSpace(query.Get("from")))
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidTimeRange
	}
	to, err := time.Parse(time.RFC3339, strings.TrimSpace(query.Get("to")))
	if err != nil {
		return time.Time{}, time.Time{}, errInvalidTimeRange
	}
	return from, to, nil
}

type rehearsalRequest struct {
	GroupID    string         `json:"group_id"`
	VenueID    *string        `json:"venue_id"`
	Title      string         `json:"title" validate:"required,max=200"`
	Notes      string         `json:"notes" validate:"max=2000"`
	Start      time.Time      `json:"start" validate:"required"`
	End        time.Time      `json:"end" validate:"required"`
	Recurrence *recurrenceDTO `json:"recurrence"`
}

type recurrenceDTO struct {
	Frequency string  `json:"frequency" validate:"required,oneof=weekly biweekly monthly"`
	DayOfWeek *int    `json:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	Interval  int     `json:"interval,omitempty" validate:"min=0"`
	EndDate   *string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	RRule     string  `json:"rrule,omitempty" validate:"isdefault"`
}

func (r rehearsalRequest) toInput() application.RehearsalInput {
	input := application.RehearsalInput{
		GroupID: strings.TrimSpace(r.GroupID),
		VenueID: r.VenueID,
		Title:   r.Title,
		Notes:   r.Notes,
		Start:   r.Start,
		End:     r.End,
	}
	if r.Recurrence != nil {
		rec := &application.RecurrenceInput{
			Frequency: r.Recurrence.Frequency,
			DayOfWeek: r.Recurrence.DayOfWeek,
			Interval:  r.Recurrence.Interval,
		}
		if r.Recurrence.EndDate != nil {
			if date, err := time.Parse(time.DateOnly, *r.Recurrence.EndDate); err == nil {
				rec.EndDate = &date
			}
		}
		input.Recurrence = rec
	}
	return input
}

type rehearsalResponse struct {
	Rehearsal rehearsalDTO `json:"rehearsal"`
}

type listRehearsalsResponse struct {
	Rehearsals []rehearsalDTO `json:"rehearsals"`
}

type rehearsalDTO struct {
	ID         string         `json:"id"`
	GroupID    string         `json:"group_id"`
	VenueID    *string        `json:"venue_id,omitempty"`
	Title      string         `json:"title"`
	Notes      string         `json:"notes,omitempty"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Recurrence *recurrenceDTO `json:"recurrence,omitempty"`
	CreatedBy  string         `json:"created_by"`
	Attendees  []attendeeDTO  `json:"attendees,omitempty"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

type attendanceRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed declined"`
}

type attendeeResponse struct {
	Attendee attendeeDTO `json:"attendee"`
}

type attendeeDTO struct {
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

type occurrencesResponse struct {
	Occurrences []occurrenceDTO `json:"occurrences"`
}

type occurrenceDTO struct {
	Index   int     `json:"index"`
	Title   string  `json:"title"`
	VenueID *string `json:"venue_id,omitempty"`
	Start   string  `json:"start"`
	End     string  `json:"end"`
}

func (h *RehearsalHandler) toDTO(r application.Rehearsal) rehearsalDTO {
	dto := rehearsalDTO{
		ID:        r.ID,
		GroupID:   r.GroupID,
		VenueID:   r.VenueID,
		Title:     r.Title,
		Notes:     r.Notes,
		Start:     r.Start.Format(time.RFC3339),
		End:       r.End.Format(time.RFC3339),
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, a := range r.Attendees {
		dto.Attendees = append(dto.Attendees, toAttendeeDTO(a))
	}
	if rec := r.Recurrence; rec != nil {
		out := &recurrenceDTO{Frequency: string(rec.Frequency), Interval: rec.Interval}
		if rec.DayOfWeek != nil {
			day := int(*rec.DayOfWeek)
			out.DayOfWeek = &day
		}
		if rec.EndDate != nil {
			date := rec.EndDate.Format(time.DateOnly)
			out.EndDate = &date
		}
		if rule, err := calendar.SeriesRule(rec.Pattern(), r.Start, h.location); err == nil {
			out.RRule = rule.RRuleString()
		}
		dto.Recurrence = out
	}
	return dto
}

func toAttendeeDTO(a application.Attendee) attendeeDTO {
	return attendeeDTO{UserID: a.UserID, Status: string(a.Status), UpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339Nano)}
}
