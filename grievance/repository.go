package grievance

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"caseflow/apperr"
	"caseflow/db"
	"caseflow/resolution"
)

var (
	ErrCaseNotFound   = apperr.NotFound("case not found")
	ErrStepNotFound   = apperr.NotFound("step not found")
	ErrReportNotFound = apperr.NotFound("report not found")
)

const (
	caseNumberConstraint = "cases_organization_case_number_key"
	stepNumberConstraint = "case_steps_case_id_step_number_key"
)

const caseColumns = `c.id, c.organization_id, c.bargaining_unit_id, c.agreement_id, c.type, c.category, c.status,
	c.current_stage, c.current_step_number, c.filed_at, c.case_number, c.external_id, c.resolution_details,
	c.estimated_cost, c.actual_cost, c.assigned_to_id, c.creator_id, c.last_updated_by_id, c.created_at, c.updated_at`

const stepColumns = `s.id, s.case_id, s.step_number, s.stage, s.status, s.due_date, s.completed_date, s.notes,
	s.time_limit_days, s.created_at, s.updated_at`

// Repository runs every statement on the querier it is handed so the engine
// controls transaction boundaries.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) InsertCase(ctx context.Context, q db.Querier, c Case) (Case, error) {
	res, err := resolution.Marshal(c.Resolution)
	if err != nil {
		return Case{}, err
	}
	query := `
		WITH c AS (
			INSERT INTO cases (organization_id, bargaining_unit_id, agreement_id, type, category, status,
				current_stage, current_step_number, filed_at, case_number, external_id, resolution_details,
				estimated_cost, actual_cost, assigned_to_id, creator_id, last_updated_by_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING *
		)
		SELECT ` + caseColumns + ` FROM c`

	row := q.QueryRow(ctx, query,
		c.OrganizationID,
		c.BargainingUnitID,
		c.AgreementID,
		c.Type,
		c.Category,
		c.Status,
		c.CurrentStage,
		c.CurrentStepNumber,
		c.FiledAt,
		c.CaseNumber,
		c.ExternalID,
		res,
		c.EstimatedCost,
		c.ActualCost,
		c.AssignedToID,
		c.CreatorID,
		c.LastUpdatedByID,
	)
	created, err := scanCase(row)
	if err != nil {
		if db.IsUniqueViolation(err, caseNumberConstraint) {
			return Case{}, apperr.Wrap(apperr.KindConflict, "case number already taken, try again", err)
		}
		return Case{}, fmt.Errorf("grievance: insert case: %w", err)
	}
	return created, nil
}

// GetForOrg loads a case of orgID. forUpdate takes the row lock that
// serializes mutations of one case.
func (r *Repository) GetForOrg(ctx context.Context, q db.Querier, orgID, id string, forUpdate bool) (Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases c WHERE c.id = $1 AND c.organization_id = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}
	c, err := scanCase(q.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Case{}, ErrCaseNotFound
		}
		return Case{}, fmt.Errorf("grievance: get case: %w", err)
	}
	return c, nil
}

func (r *Repository) SetCurrentStep(ctx context.Context, q db.Querier, caseID string, stepNumber int, stage Stage, actorID string) error {
	const query = `
		UPDATE cases
		SET current_step_number = $2, current_stage = $3, last_updated_by_id = $4, updated_at = now()
		WHERE id = $1
	`
	if _, err := q.Exec(ctx, query, caseID, stepNumber, stage, actorID); err != nil {
		return fmt.Errorf("grievance: set current step: %w", err)
	}
	return nil
}

func (r *Repository) SetAssignee(ctx context.Context, q db.Querier, caseID string, assigneeID *string, actorID string) (Case, error) {
	query := `
		WITH c AS (
			UPDATE cases
			SET assigned_to_id = $2, last_updated_by_id = $3, updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + caseColumns + ` FROM c`
	c, err := scanCase(q.QueryRow(ctx, query, caseID, assigneeID, actorID))
	if err != nil {
		return Case{}, fmt.Errorf("grievance: set assignee: %w", err)
	}
	return c, nil
}

func (r *Repository) SetStatus(ctx context.Context, q db.Querier, caseID string, status Status, stage Stage, details *resolution.Details, actorID string) (Case, error) {
	res, err := resolution.Marshal(details)
	if err != nil {
		return Case{}, err
	}
	query := `
		WITH c AS (
			UPDATE cases
			SET status = $2, current_stage = $3, resolution_details = $4, last_updated_by_id = $5, updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + caseColumns + ` FROM c`
	c, err := scanCase(q.QueryRow(ctx, query, caseID, status, stage, res, actorID))
	if err != nil {
		return Case{}, fmt.Errorf("grievance: set status: %w", err)
	}
	return c, nil
}

func (r *Repository) SetCosts(ctx context.Context, q db.Querier, caseID string, estimated, actual decimal.NullDecimal, actorID string) (Case, error) {
	query := `
		WITH c AS (
			UPDATE cases
			SET estimated_cost = $2, actual_cost = $3, last_updated_by_id = $4, updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + caseColumns + ` FROM c`
	c, err := scanCase(q.QueryRow(ctx, query, caseID, estimated, actual, actorID))
	if err != nil {
		return Case{}, fmt.Errorf("grievance: set costs: %w", err)
	}
	return c, nil
}

// Touch stamps the case as changed by actorID.
func (r *Repository) Touch(ctx context.Context, q db.Querier, caseID, actorID string) error {
	if _, err := q.Exec(ctx, `UPDATE cases SET last_updated_by_id = $2, updated_at = now() WHERE id = $1`, caseID, actorID); err != nil {
		return fmt.Errorf("grievance: touch case: %w", err)
	}
	return nil
}

func (r *Repository) InsertReport(ctx context.Context, q db.Querier, rep Report) error {
	grievors, err := marshalPayload(rep.Grievors)
	if err != nil {
		return err
	}
	work, err := marshalPayload(rep.WorkInformation)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO reports (case_id, grievors, work_information, statement, settlement_desired, articles_violated)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := q.Exec(ctx, query, rep.CaseID, grievors, work, rep.Statement, rep.SettlementDesired, rep.ArticlesViolated); err != nil {
		return fmt.Errorf("grievance: insert report: %w", err)
	}
	return nil
}

func (r *Repository) GetReport(ctx context.Context, q db.Querier, caseID string, forUpdate bool) (Report, error) {
	query := `
		SELECT case_id, grievors, work_information, statement, settlement_desired, articles_violated
		FROM reports
		WHERE case_id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		rep      Report
		grievors []byte
		work     []byte
	)
	err := q.QueryRow(ctx, query, caseID).Scan(&rep.CaseID, &grievors, &work, &rep.Statement, &rep.SettlementDesired, &rep.ArticlesViolated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, fmt.Errorf("grievance: get report: %w", err)
	}
	if rep.Grievors, err = parseGrievors(grievors); err != nil {
		return Report{}, err
	}
	if rep.WorkInformation, err = parseWorkInformation(work); err != nil {
		return Report{}, err
	}
	return rep, nil
}

// SetReportField writes one text column. statement and settlement_desired
// are not nullable, so nil stores an empty string there.
func (r *Repository) SetReportField(ctx context.Context, q db.Querier, caseID string, field Field, value *string) error {
	col, ok := field.column()
	if !ok {
		return apperr.Newf(apperr.KindValidation, "field %q cannot be edited", field)
	}
	var arg any = value
	if field != FieldArticlesViolated {
		v := ""
		if value != nil {
			v = *value
		}
		arg = v
	}
	query := fmt.Sprintf(`UPDATE reports SET %s = $2 WHERE case_id = $1`, col)
	tag, err := q.Exec(ctx, query, caseID, arg)
	if err != nil {
		return fmt.Errorf("grievance: set report field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *Repository) InsertStep(ctx context.Context, q db.Querier, s Step) (Step, error) {
	query := `
		WITH s AS (
			INSERT INTO case_steps (case_id, step_number, stage, status, due_date, completed_date, notes, time_limit_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING *
		)
		SELECT ` + stepColumns + ` FROM s`
	created, err := scanStep(q.QueryRow(ctx, query, s.CaseID, s.StepNumber, s.Stage, s.Status, s.DueDate, s.CompletedDate, s.Notes, s.TimeLimitDays))
	if err != nil {
		if db.IsUniqueViolation(err, stepNumberConstraint) {
			return Step{}, apperr.Wrap(apperr.KindConflict, fmt.Sprintf("step %d already exists on this case", s.StepNumber), err)
		}
		return Step{}, fmt.Errorf("grievance: insert step: %w", err)
	}
	return created, nil
}

// GetStepForOrg locks a step whose case belongs to orgID.
func (r *Repository) GetStepForOrg(ctx context.Context, q db.Querier, orgID, stepID string) (Step, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM case_steps s
		JOIN cases c ON c.id = s.case_id
		WHERE s.id = $1 AND c.organization_id = $2
		FOR UPDATE OF s`
	s, err := scanStep(q.QueryRow(ctx, query, stepID, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Step{}, ErrStepNotFound
		}
		return Step{}, fmt.Errorf("grievance: get step: %w", err)
	}
	return s, nil
}

func (r *Repository) UpdateStep(ctx context.Context, q db.Querier, st Step) (Step, error) {
	query := `
		WITH s AS (
			UPDATE case_steps
			SET status = $2, completed_date = $3, notes = $4, updated_at = now()
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + stepColumns + ` FROM s`
	updated, err := scanStep(q.QueryRow(ctx, query, st.ID, st.Status, st.CompletedDate, st.Notes))
	if err != nil {
		return Step{}, fmt.Errorf("grievance: update step: %w", err)
	}
	return updated, nil
}

func (r *Repository) ListSteps(ctx context.Context, q db.Querier, caseID string) ([]Step, error) {
	query := `SELECT ` + stepColumns + ` FROM case_steps s WHERE s.case_id = $1 ORDER BY s.step_number`
	rows, err := q.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("grievance: list steps: %w", err)
	}
	defer rows.Close()

	steps := []Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("grievance: scan step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *Repository) DeleteEvidence(ctx context.Context, q db.Querier, caseID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM evidence WHERE case_id = $1`, caseID); err != nil {
		return fmt.Errorf("grievance: delete evidence: %w", err)
	}
	return nil
}

// DeleteReport removes the report and the steps of a case.
func (r *Repository) DeleteReport(ctx context.Context, q db.Querier, caseID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM reports WHERE case_id = $1`, caseID); err != nil {
		return fmt.Errorf("grievance: delete report: %w", err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM case_steps WHERE case_id = $1`, caseID); err != nil {
		return fmt.Errorf("grievance: delete steps: %w", err)
	}
	return nil
}

func (r *Repository) DeleteCase(ctx context.Context, q db.Querier, caseID string) error {
	tag, err := q.Exec(ctx, `DELETE FROM cases WHERE id = $1`, caseID)
	if err != nil {
		return fmt.Errorf("grievance: delete case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

func scanCase(row pgx.Row) (Case, error) {
	var (
		c   Case
		res []byte
	)
	err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.BargainingUnitID,
		&c.AgreementID,
		&c.Type,
		&c.Category,
		&c.Status,
		&c.CurrentStage,
		&c.CurrentStepNumber,
		&c.FiledAt,
		&c.CaseNumber,
		&c.ExternalID,
		&res,
		&c.EstimatedCost,
		&c.ActualCost,
		&c.AssignedToID,
		&c.CreatorID,
		&c.LastUpdatedByID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Case{}, err
	}
	if c.Resolution, err = resolution.Parse(res); err != nil {
		return Case{}, fmt.Errorf("grievance: case %s resolution: %w", c.ID, err)
	}
	return c, nil
}

func scanStep(row pgx.Row) (Step, error) {
	var s Step
	err := row.Scan(
		&s.ID,
		&s.CaseID,
		&s.StepNumber,
		&s.Stage,
		&s.Status,
		&s.DueDate,
		&s.CompletedDate,
		&s.Notes,
		&s.TimeLimitDays,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}
