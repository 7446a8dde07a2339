package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/rehearsal-scheduler/internal/application"
)

type groupService interface {
	CreateGroup(ctx context.Context, principal application.Principal, name string) (application.Group, error)
	GetGroup(ctx context.Context, principal application.Principal, groupID string) (application.Group, error)
	AddMember(ctx context.Context, params application.AddMemberParams) (application.Group, error)
	ChangeRole(ctx context.Context, params application.ChangeRoleParams) (application.Group, error)
	RemoveMember(ctx context.Context, principal application.Principal, groupID, userID string) (application.Group, error)
}

type suggestionService interface {
	SuggestTimes(ctx context.Context, params application.SuggestTimesParams) ([]application.Suggestion, error)
}

// GroupHandler serves group rosters and time suggestions for a group.
type GroupHandler struct {
	groups      groupService
	suggestions suggestionService
	responder   responder
}

func NewGroupHandler(groups groupService, suggestions suggestionService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, suggestions: suggestions, responder: newResponder(logger, "GroupHandler")}
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.groups == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req groupRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	group, err := h.groups.CreateGroup(r.Context(), principal, req.Name)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.log(r.Context(), "Create", "principal_id", principal.MemberID, "group_id", group.ID).InfoContext(r.Context(), "group created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.groups == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	group, err := h.groups.GetGroup(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.groups == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req addMemberRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	group, err := h.groups.AddMember(r.Context(), application.AddMemberParams{
		Principal: principal,
		GroupID:   r.PathValue("id"),
		UserID:    req.UserID,
		Role:      req.Role,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.groups == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req changeRoleRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	group, err := h.groups.ChangeRole(r.Context(), application.ChangeRoleParams{
		Principal: principal,
		GroupID:   r.PathValue("id"),
		UserID:    r.PathValue("userID"),
		Role:      req.Role,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.groups == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	group, err := h.groups.RemoveMember(r.Context(), principal, r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, groupResponse{Group: toGroupDTO(group)})
}

// Suggest proposes rehearsal times every member of the group can attend.
func (h *GroupHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.suggestions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())
	groupID := r.PathValue("id")

	var req suggestionRequest
	if !h.responder.decode(w, r, &req) {
		return
	}

	logger := h.responder.log(r.Context(), "Suggest", "principal_id", principal.MemberID, "group_id", groupID)
	suggestions, err := h.suggestions.SuggestTimes(r.Context(), application.SuggestTimesParams{
		Principal:         principal,
		GroupID:           groupID,
		WindowStart:       req.WindowStart,
		WindowEnd:         req.WindowEnd,
		MinDuration:       time.Duration(req.MinMinutes) * time.Minute,
		PreferredDuration: time.Duration(req.PreferredMinutes) * time.Minute,
		Limit:             req.Limit,
		VenueID:           req.VenueID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "suggestion failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]suggestionDTO, 0, len(suggestions))
	for _, s := range suggestions {
		out = append(out, suggestionDTO{
			Start:       s.Start.Format(time.RFC3339),
			End:         s.End.Format(time.RFC3339),
			WindowStart: s.WindowStart.Format(time.RFC3339),
			WindowEnd:   s.WindowEnd.Format(time.RFC3339),
		})
	}
	logger.With("result_count", len(out)).InfoContext(r.Context(), "times suggested")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, suggestionsResponse{Suggestions: out})
}

type groupRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type addMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=admin member"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin member"`
}

type suggestionRequest struct {
	WindowStart      time.Time `json:"window_start" validate:"required"`
	WindowEnd        time.Time `json:"window_end" validate:"required"`
	PreferredMinutes int       `json:"preferred_minutes" validate:"required,min=1"`
	MinMinutes       int       `json:"min_minutes" validate:"min=0"`
	Limit            int       `json:"limit" validate:"min=0,max=50"`
	VenueID          *string   `json:"venue_id"`
}

type groupResponse struct {
	Group groupDTO `json:"group"`
}

type groupDTO struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Members   []memberDTO `json:"members"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

type memberDTO struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

type suggestionsResponse struct {
	Suggestions []suggestionDTO `json:"suggestions"`
}

type suggestionDTO struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
}

func toGroupDTO(group application.Group) groupDTO {
	members := make([]memberDTO, 0, len(group.Members))
	for _, m := range group.Members {
		members = append(members, memberDTO{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt.UTC().Format(time.RFC3339Nano)})
	}
	return groupDTO{
		ID:        group.ID,
		Name:      group.Name,
		Members:   members,
		CreatedAt: group.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: group.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
