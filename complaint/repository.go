package complaint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/apperr"
	"caseflow/db"
)

var (
	ErrNotFound       = apperr.NotFound("complaint not found")
	ErrAlreadyGrieved = apperr.Conflict("complaint has already been elevated")
)

const numberConstraint = "complaints_organization_number_key"

const columns = `id, organization_id, bargaining_unit_id, agreement_id, complaint_number, status, complainant,
	work_information, statement, settlement_desired, articles_violated, case_id, creator_id, created_at, updated_at`

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, q db.Querier, c Complaint) (Complaint, error) {
	complainant, err := json.Marshal(c.Complainant)
	if err != nil {
		return Complaint{}, fmt.Errorf("complaint: encode complainant: %w", err)
	}
	work, err := json.Marshal(c.WorkInformation)
	if err != nil {
		return Complaint{}, fmt.Errorf("complaint: encode work information: %w", err)
	}

	query := `
		INSERT INTO complaints (organization_id, bargaining_unit_id, agreement_id, complaint_number, status,
			complainant, work_information, statement, settlement_desired, articles_violated, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + columns

	out, err := scan(q.QueryRow(ctx, query,
		c.OrganizationID,
		c.BargainingUnitID,
		c.AgreementID,
		c.Number,
		c.Status,
		complainant,
		work,
		c.Statement,
		c.SettlementDesired,
		c.ArticlesViolated,
		c.CreatorID,
	))
	if err != nil {
		if db.IsUniqueViolation(err, numberConstraint) {
			return Complaint{}, apperr.Wrap(apperr.KindConflict, "complaint number already in use, try again", err)
		}
		return Complaint{}, fmt.Errorf("complaint: insert: %w", err)
	}
	return out, nil
}

// GetForOrg loads a complaint owned by orgID. forUpdate takes the row lock
// that serializes concurrent elevations.
func (r *Repository) GetForOrg(ctx context.Context, q db.Querier, orgID, id string, forUpdate bool) (Complaint, error) {
	query := `SELECT ` + columns + ` FROM complaints WHERE id = $1 AND organization_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	c, err := scan(q.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Complaint{}, ErrNotFound
		}
		return Complaint{}, fmt.Errorf("complaint: get: %w", err)
	}
	return c, nil
}

func (r *Repository) ListForOrg(ctx context.Context, q db.Querier, orgID string) ([]Complaint, error) {
	rows, err := q.Query(ctx, `SELECT `+columns+` FROM complaints WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("complaint: list: %w", err)
	}
	defer rows.Close()

	out := make([]Complaint, 0, 8)
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("complaint: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("complaint: iterate: %w", err)
	}
	return out, nil
}

// MarkGrieved records the elevation. A complaint that already carries a
// back-reference is left untouched and ErrAlreadyGrieved is returned.
func (r *Repository) MarkGrieved(ctx context.Context, q db.Querier, id, caseID string) (Complaint, error) {
	query := `
		UPDATE complaints
		SET status = $3, case_id = $2, updated_at = now()
		WHERE id = $1 AND case_id IS NULL
		RETURNING ` + columns

	c, err := scan(q.QueryRow(ctx, query, id, caseID, StatusGrieved))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Complaint{}, fmt.Errorf("complaint: mark grieved: %w", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM complaints WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Complaint{}, fmt.Errorf("complaint: mark grieved check: %w", err)
	}
	if exists {
		return Complaint{}, ErrAlreadyGrieved
	}
	return Complaint{}, ErrNotFound
}

func scan(row pgx.Row) (Complaint, error) {
	var (
		c                 Complaint
		complainant, work []byte
	)
	err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.BargainingUnitID,
		&c.AgreementID,
		&c.Number,
		&c.Status,
		&complainant,
		&work,
		&c.Statement,
		&c.SettlementDesired,
		&c.ArticlesViolated,
		&c.CaseID,
		&c.CreatorID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Complaint{}, err
	}
	if err := json.Unmarshal(complainant, &c.Complainant); err != nil {
		return Complaint{}, apperr.Wrap(apperr.KindValidation, "complainant record is malformed", err)
	}
	if err := json.Unmarshal(work, &c.WorkInformation); err != nil {
		return Complaint{}, apperr.Wrap(apperr.KindValidation, "work information is malformed", err)
	}
	return c, nil
}
