// Package agreement reads agreements and bargaining units and scopes them to
// the caller's organization.
package agreement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/apperr"
	"caseflow/db"
)

var (
	// ErrAgreementNotFound is returned for missing agreements and for
	// agreements of another organization.
	ErrAgreementNotFound = apperr.NotFound("agreement not found")
	ErrUnitNotFound      = apperr.NotFound("bargaining unit not found")
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) GetForOrg(ctx context.Context, q db.Querier, orgID, id string) (Agreement, error) {
	const query = `
		SELECT id, organization_id, bargaining_unit_id, name, effective_from, effective_to, created_at
		FROM agreements
		WHERE id = $1 AND organization_id = $2
	`
	a, err := scanAgreement(q.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, ErrAgreementNotFound
		}
		return Agreement{}, fmt.Errorf("agreement: get: %w", err)
	}
	return a, nil
}

func (r *Repository) ListForOrg(ctx context.Context, q db.Querier, orgID string) ([]Agreement, error) {
	const query = `
		SELECT id, organization_id, bargaining_unit_id, name, effective_from, effective_to, created_at
		FROM agreements
		WHERE organization_id = $1
		ORDER BY name ASC
	`
	rows, err := q.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("agreement: list: %w", err)
	}
	defer rows.Close()

	out := []Agreement{}
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, fmt.Errorf("agreement: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate: %w", err)
	}
	return out, nil
}

func (r *Repository) UnitForOrg(ctx context.Context, q db.Querier, orgID, id string) (BargainingUnit, error) {
	const query = `
		SELECT id, organization_id, name, created_at
		FROM bargaining_units
		WHERE id = $1 AND organization_id = $2
	`
	var u BargainingUnit
	err := q.QueryRow(ctx, query, id, orgID).Scan(&u.ID, &u.OrganizationID, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BargainingUnit{}, ErrUnitNotFound
		}
		return BargainingUnit{}, fmt.Errorf("agreement: get unit: %w", err)
	}
	return u, nil
}

func scanAgreement(row pgx.Row) (Agreement, error) {
	var a Agreement
	err := row.Scan(
		&a.ID,
		&a.OrganizationID,
		&a.BargainingUnitID,
		&a.Name,
		&a.EffectiveFrom,
		&a.EffectiveTo,
		&a.CreatedAt,
	)
	return a, err
}
