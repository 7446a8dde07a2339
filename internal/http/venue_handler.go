package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/rehearsal-scheduler/internal/application"
)

type venueService interface {
	CreateVenue(ctx context.Context, principal application.Principal, input application.VenueInput) (application.Venue, error)
	GetVenue(ctx context.Context, id string) (application.Venue, error)
	ListVenues(ctx context.Context) ([]application.Venue, error)
}

type VenueHandler struct {
	service   venueService
	responder responder
}

func NewVenueHandler(service venueService, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{service: service, responder: newResponder(logger, "VenueHandler")}
}

func (h *VenueHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req venueRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	logger := h.responder.log(r.Context(), "Create", "principal_id", principal.MemberID)
	venue, err := h.service.CreateVenue(r.Context(), principal, application.VenueInput{Name: req.Name, Address: req.Address})
	if err != nil {
		logger.ErrorContext(r.Context(), "venue creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("venue_id", venue.ID).InfoContext(r.Context(), "venue created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, venueResponse{Venue: toVenueDTO(venue)})
}

func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	venue, err := h.service.GetVenue(r.Context(), r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, venueResponse{Venue: toVenueDTO(venue)})
}

func (h *VenueHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	venues, err := h.service.ListVenues(r.Context())
	if err != nil {
		h.responder.log(r.Context(), "List").ErrorContext(r.Context(), "venue list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]venueDTO, 0, len(venues))
	for _, v := range venues {
		out = append(out, toVenueDTO(v))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listVenuesResponse{Venues: out})
}

type venueRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

type venueResponse struct {
	Venue venueDTO `json:"venue"`
}

type listVenuesResponse struct {
	Venues []venueDTO `json:"venues"`
}

type venueDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toVenueDTO(v application.Venue) venueDTO {
	return venueDTO{
		ID:        v.ID,
		Name:      v.Name,
		Address:   v.Address,
		CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: v.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
