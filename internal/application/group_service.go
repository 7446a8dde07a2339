package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// GroupService manages groups and their rosters.
type GroupService struct {
	groups      persistence.GroupRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGroupService constructs a group service.
func NewGroupService(groups persistence.GroupRepository, idGenerator func() string, now func() time.Time) *GroupService {
	return NewGroupServiceWithLogger(groups, idGenerator, now, nil)
}

// NewGroupServiceWithLogger constructs a group service with a specified logger.
func NewGroupServiceWithLogger(groups persistence.GroupRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GroupService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &GroupService{groups: groups, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *GroupService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GroupService", operation, attrs...)
}

// CreateGroup stores a new group owned by the principal.
func (s *GroupService) CreateGroup(ctx context.Context, principal Principal, name string) (group Group, err error) {
	if s == nil || s.groups == nil {
		err = fmt.Errorf("group repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateGroup", "principal_id", principal.MemberID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create group", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("group_id", group.ID).InfoContext(ctx, "group created")
	}()

	if principal.MemberID == "" {
		err = ErrUnauthorized
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		err = fieldError("name", "name is required")
		return
	}

	now := s.now()
	owner := GroupMember{UserID: principal.MemberID, Role: RoleOwner, JoinedAt: now}
	group = Group{ID: s.idGenerator(), Name: name, Members: []GroupMember{owner}, CreatedAt: now, UpdatedAt: now}

	err = s.groups.CreateGroup(ctx,
		persistence.Group{ID: group.ID, Name: group.Name, CreatedAt: now, UpdatedAt: now},
		persistence.GroupMember{GroupID: group.ID, UserID: owner.UserID, Role: string(owner.Role), JoinedAt: now},
	)
	if err != nil {
		err = mapRepoError(err)
		group = Group{}
	}
	return
}

// GetGroup returns a group with its roster to one of its members.
func (s *GroupService) GetGroup(ctx context.Context, principal Principal, groupID string) (Group, error) {
	if s == nil || s.groups == nil {
		return Group{}, fmt.Errorf("group repository not configured")
	}
	group, roster, err := s.load(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	if _, ok := roster.Role(principal.MemberID); !ok {
		return Group{}, ErrUnauthorized
	}
	return group, nil
}

// AddMember adds a user to the group. Only owners and admins may add
// members, and nobody can be added as a second owner.
func (s *GroupService) AddMember(ctx context.Context, params AddMemberParams) (group Group, err error) {
	if s == nil || s.groups == nil {
		err = fmt.Errorf("group repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "AddMember",
		"principal_id", params.Principal.MemberID, "group_id", params.GroupID, "user_id", params.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to add member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member added")
	}()

	group, roster, err := s.loadForManagement(ctx, params.Principal, params.GroupID)
	if err != nil {
		return
	}

	userID := strings.TrimSpace(params.UserID)
	role := RoleMember
	vErr := &ValidationError{}
	if userID == "" {
		vErr.add("user_id", "user_id is required")
	}
	if params.Role != "" {
		parsed, ok := ParseRole(params.Role)
		if !ok || parsed == RoleOwner {
			vErr.add("role", "role must be admin or member")
		}
		role = parsed
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	member := GroupMember{UserID: userID, Role: role, JoinedAt: s.now()}
	if !roster.Add(member) {
		err = fmt.Errorf("%w: %s is already a member", ErrAlreadyExists, userID)
		return
	}

	if err = s.groups.UpsertMember(ctx, persistence.GroupMember{
		GroupID: params.GroupID, UserID: member.UserID, Role: string(member.Role), JoinedAt: member.JoinedAt,
	}); err != nil {
		err = mapRepoError(err)
		return
	}
	group.Members = roster.Members()
	return
}

// ChangeRole changes a member's role. The owner's role cannot change.
func (s *GroupService) ChangeRole(ctx context.Context, params ChangeRoleParams) (group Group, err error) {
	if s == nil || s.groups == nil {
		err = fmt.Errorf("group repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "ChangeRole",
		"principal_id", params.Principal.MemberID, "group_id", params.GroupID, "user_id", params.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to change role", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("role", params.Role).InfoContext(ctx, "role changed")
	}()

	group, roster, err := s.loadForManagement(ctx, params.Principal, params.GroupID)
	if err != nil {
		return
	}

	role, ok := ParseRole(params.Role)
	if !ok {
		err = fieldError("role", "role must be admin or member")
		return
	}
	if _, member := roster.Role(params.UserID); !member {
		err = ErrNotFound
		return
	}
	if !roster.SetRole(params.UserID, role) {
		err = fieldError("role", "the owner's role cannot be changed and ownership cannot be granted")
		return
	}

	if err = s.groups.UpsertMember(ctx, persistence.GroupMember{
		GroupID: params.GroupID, UserID: params.UserID, Role: string(role), JoinedAt: s.now(),
	}); err != nil {
		err = mapRepoError(err)
		return
	}
	group.Members = roster.Members()
	return
}

// RemoveMember removes a user from the group. Owners and admins may remove
// others and any member may leave; the owner can never be removed.
func (s *GroupService) RemoveMember(ctx context.Context, principal Principal, groupID, userID string) (group Group, err error) {
	if s == nil || s.groups == nil {
		err = fmt.Errorf("group repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "RemoveMember", "principal_id", principal.MemberID, "group_id", groupID, "user_id", userID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to remove member", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "member removed")
	}()

	group, roster, err := s.load(ctx, groupID)
	if err != nil {
		return
	}
	role, ok := roster.Role(principal.MemberID)
	if !ok || (principal.MemberID != userID && !role.canManage()) {
		err = ErrUnauthorized
		return
	}
	if _, member := roster.Role(userID); !member {
		err = ErrNotFound
		return
	}
	if !roster.Remove(userID) {
		err = fieldError("user_id", "the owner cannot be removed")
		return
	}

	if err = s.groups.DeleteMember(ctx, groupID, userID); err != nil {
		err = mapRepoError(err)
		return
	}
	group.Members = roster.Members()
	return
}

func (s *GroupService) load(ctx context.Context, groupID string) (Group, *Roster, error) {
	stored, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return Group{}, nil, mapRepoError(err)
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return Group{}, nil, mapRepoError(err)
	}
	roster := NewRoster(toGroupMembers(members))
	return Group{
		ID:        stored.ID,
		Name:      stored.Name,
		Members:   roster.Members(),
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}, roster, nil
}

func (s *GroupService) loadForManagement(ctx context.Context, principal Principal, groupID string) (Group, *Roster, error) {
	if s == nil || s.groups == nil {
		return Group{}, nil, fmt.Errorf("group repository not configured")
	}
	group, roster, err := s.load(ctx, groupID)
	if err != nil {
		return Group{}, nil, err
	}
	role, ok := roster.Role(principal.MemberID)
	if !ok || !role.canManage() {
		return Group{}, nil, ErrUnauthorized
	}
	return group, roster, nil
}
