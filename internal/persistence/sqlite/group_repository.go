package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// CreateGroup inserts a group together with its owner in one transaction.
func (s *Storage) CreateGroup(ctx context.Context, group persistence.Group, owner persistence.GroupMember) error {
	if group.ID == "" || owner.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO band_groups (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			group.ID, group.Name, formatTimestamp(group.CreatedAt), formatTimestamp(group.UpdatedAt),
		)
		if err != nil {
			return mapError(err)
		}
		owner.GroupID = group.ID
		return upsertMember(ctx, tx, owner)
	})
}

// GetGroup loads a group by id.
func (s *Storage) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	var (
		group              persistence.Group
		createdAt, updated string
	)
	err := s.db().QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM band_groups WHERE id = ?`, id,
	).Scan(&group.ID, &group.Name, &createdAt, &updated)
	if err != nil {
		return persistence.Group{}, mapError(err)
	}
	if group.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Group{}, err
	}
	if group.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return persistence.Group{}, err
	}
	return group, nil
}

// ListMembers returns the roster of a group in join order.
func (s *Storage) ListMembers(ctx context.Context, groupID string) ([]persistence.GroupMember, error) {
	rows, err := s.db().QueryContext(ctx,
		`SELECT group_id, user_id, role, joined_at FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`,
		groupID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	members := make([]persistence.GroupMember, 0)
	for rows.Next() {
		var (
			member persistence.GroupMember
			joined string
		)
		if err := rows.Scan(&member.GroupID, &member.UserID, &member.Role, &joined); err != nil {
			return nil, err
		}
		if member.JoinedAt, err = parseTimestamp(joined); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list members: %w", err)
	}
	return members, nil
}

// UpsertMember adds a member or changes the role of an existing one. The
// original join time is kept on update.
func (s *Storage) UpsertMember(ctx context.Context, member persistence.GroupMember) error {
	return upsertMember(ctx, s.db(), member)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertMember(ctx context.Context, db execer, member persistence.GroupMember) error {
	if member.GroupID == "" || member.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET role = excluded.role`,
		member.GroupID, member.UserID, member.Role, formatTimestamp(member.JoinedAt),
	)
	return mapError(err)
}

// DeleteMember removes a user from a group.
func (s *Storage) DeleteMember(ctx context.Context, groupID, userID string) error {
	result, err := s.db().ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID,
	)
	if err != nil {
		return mapError(err)
	}
	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
