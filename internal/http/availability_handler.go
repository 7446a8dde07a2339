package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/rehearsal-scheduler/internal/application"
)

type availabilityService interface {
	SetAvailability(ctx context.Context, params application.SetAvailabilityParams) (application.MemberAvailability, error)
	GetAvailability(ctx context.Context, memberID string) (application.MemberAvailability, error)
}

type AvailabilityHandler struct {
	service   availabilityService
	responder responder
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, responder: newResponder(logger, "AvailabilityHandler")}
}

func (h *AvailabilityHandler) Set(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req availabilityRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	params := application.SetAvailabilityParams{
		Principal: principal,
		MemberID:  r.PathValue("id"),
		Weekly:    make([]application.WeeklySlotInput, 0, len(req.Weekly)),
		OneTime:   make([]application.OneTimeSlotInput, 0, len(req.OneTime)),
	}
	for _, slot := range req.Weekly {
		params.Weekly = append(params.Weekly, application.WeeklySlotInput{Day: *slot.Day, Start: slot.Start, End: slot.End})
	}
	for _, slot := range req.OneTime {
		date, _ := time.Parse(time.DateOnly, slot.Date)
		params.OneTime = append(params.OneTime, application.OneTimeSlotInput{Date: date, Start: slot.Start, End: slot.End})
	}

	result, err := h.service.SetAvailability(r.Context(), params)
	if err != nil {
		h.responder.log(r.Context(), "Set", "member_id", params.MemberID).
			ErrorContext(r.Context(), "availability update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAvailabilityDTO(result))
}

func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	result, err := h.service.GetAvailability(r.Context(), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAvailabilityDTO(result))
}

type availabilityRequest struct {
	Weekly  []weeklySlotDTO  `json:"weekly" validate:"dive"`
	OneTime []oneTimeSlotDTO `json:"one_time" validate:"dive"`
}

type weeklySlotDTO struct {
	Day   *int   `json:"day" validate:"required,min=0,max=6"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type oneTimeSlotDTO struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
}

type availabilityDTO struct {
	MemberID string           `json:"member_id"`
	Weekly   []weeklySlotDTO  `json:"weekly"`
	OneTime  []oneTimeSlotDTO `json:"one_time"`
}

func toAvailabilityDTO(a application.MemberAvailability) availabilityDTO {
	out := availabilityDTO{
		MemberID: a.MemberID,
		Weekly:   make([]weeklySlotDTO, 0, len(a.Weekly)),
		OneTime:  make([]oneTimeSlotDTO, 0, len(a.OneTime)),
	}
	for _, w := range a.Weekly {
		day := int(w.Day)
		out.Weekly = append(out.Weekly, weeklySlotDTO{Day: &day, Start: w.Start.String(), End: w.End.String()})
	}
	for _, o := range a.OneTime {
		out.OneTime = append(out.OneTime, oneTimeSlotDTO{Date: o.Date.Format(time.DateOnly), Start: o.Start.String(), End: o.End.String()})
	}
	return out
}
