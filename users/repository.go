// Package users is the read-only user directory used for assignee checks,
// name filters and audit timelines.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/apperr"
	"caseflow/db"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// GetForOrg fetches a user that belongs to orgID. Users of other
// organizations are reported as not found.
func (r *Repository) GetForOrg(ctx context.Context, q db.Querier, orgID, id string) (User, error) {
	const query = `
		SELECT id, organization_id, full_name, email, created_at
		FROM users
		WHERE id = $1 AND organization_id = $2
	`

	var u User
	err := q.QueryRow(ctx, query, id, orgID).Scan(&u.ID, &u.OrganizationID, &u.FullName, &u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("user not found")
		}
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return u, nil
}

// ListByIDs returns the users found among ids in one query, in no
// particular order.
func (r *Repository) ListByIDs(ctx context.Context, q db.Querier, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, organization_id, full_name, email, created_at
		FROM users
		WHERE id = ANY($1)
	`

	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("users: list by ids: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0, len(ids))
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.FullName, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: iterate: %w", err)
	}
	return out, nil
}
