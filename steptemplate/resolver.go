// Package steptemplate resolves the procedural step a case starts at or
// advances to under its governing agreement.
package steptemplate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"caseflow/apperr"
	"caseflow/db"
)

type Template struct {
	ID                   string
	AgreementID          string
	Type                 string
	Stage                string
	StepNumber           int
	TimeLimitDays        int
	IsCalendarDays       bool
	RequiredParticipants []string
	RequiredDocuments    []string
	Description          string
	// FallbackFrom is the template's own stage when Stage was overridden by
	// the requested stage. Empty on a direct match.
	FallbackFrom string
}

const templateColumns = `id, agreement_id, type, stage, step_number, time_limit_days, is_calendar_days,
	required_participants, required_documents, description`

type Resolver struct {
	log logrus.FieldLogger
}

func NewResolver(log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{log: log.WithField("module", "steptemplate")}
}

// Resolve returns the lowest-numbered template for (agreement, type, stage).
// When the stage has no templates it falls back to the lowest-numbered
// template for the type across all stages and reports the requested stage
// on the result.
func (r *Resolver) Resolve(ctx context.Context, q db.Querier, agreementID, caseType, stage string) (Template, error) {
	const direct = `SELECT ` + templateColumns + `
		FROM step_templates
		WHERE agreement_id = $1 AND type = $2 AND stage = $3
		ORDER BY step_number ASC
		LIMIT 1`

	tpl, err := scanTemplate(q.QueryRow(ctx, direct, agreementID, caseType, stage))
	if err == nil {
		return tpl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Template{}, fmt.Errorf("steptemplate: resolve: %w", err)
	}

	const fallback = `SELECT ` + templateColumns + `
		FROM step_templates
		WHERE agreement_id = $1 AND type = $2
		ORDER BY step_number ASC, stage ASC
		LIMIT 1`

	tpl, err = scanTemplate(q.QueryRow(ctx, fallback, agreementID, caseType))
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, apperr.Newf(apperr.KindConfigurationMissing,
			"no step templates are configured for %s cases on this agreement", caseType)
	}
	if err != nil {
		return Template{}, fmt.Errorf("steptemplate: resolve fallback: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"agreement_id":    agreementID,
		"type":            caseType,
		"requested_stage": stage,
		"template_stage":  tpl.Stage,
		"step_number":     tpl.StepNumber,
	}).Info("step template resolved by fallback, reporting requested stage")

	tpl.FallbackFrom = tpl.Stage
	tpl.Stage = stage
	return tpl, nil
}

// NextExists reports whether a template numbered current+1 exists for the
// type in any stage.
func (r *Resolver) NextExists(ctx context.Context, q db.Querier, agreementID, caseType string, current int) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM step_templates
		WHERE agreement_id = $1 AND type = $2 AND step_number = $3
	)`
	var exists bool
	if err := q.QueryRow(ctx, query, agreementID, caseType, current+1).Scan(&exists); err != nil {
		return false, fmt.Errorf("steptemplate: next exists: %w", err)
	}
	return exists, nil
}

// Lookup finds the template for a step number. stage is preferred when a
// step number is defined in more than one stage.
func (r *Resolver) Lookup(ctx context.Context, q db.Querier, agreementID, caseType, stage string, stepNumber int) (Template, error) {
	const query = `SELECT ` + templateColumns + `
		FROM step_templates
		WHERE agreement_id = $1 AND type = $2 AND step_number = $3
		ORDER BY (stage = $4) DESC, stage ASC
		LIMIT 1`

	tpl, err := scanTemplate(q.QueryRow(ctx, query, agreementID, caseType, stepNumber, stage))
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, apperr.Newf(apperr.KindConfigurationMissing,
			"step %d is not configured for %s cases on this agreement", stepNumber, caseType)
	}
	if err != nil {
		return Template{}, fmt.Errorf("steptemplate: lookup: %w", err)
	}
	return tpl, nil
}

func (r *Resolver) List(ctx context.Context, q db.Querier, agreementID string) ([]Template, error) {
	const query = `SELECT ` + templateColumns + `
		FROM step_templates
		WHERE agreement_id = $1
		ORDER BY type, step_number, stage`

	rows, err := q.Query(ctx, query, agreementID)
	if err != nil {
		return nil, fmt.Errorf("steptemplate: list: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("steptemplate: scan: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func scanTemplate(row pgx.Row) (Template, error) {
	var t Template
	err := row.Scan(
		&t.ID,
		&t.AgreementID,
		&t.Type,
		&t.Stage,
		&t.StepNumber,
		&t.TimeLimitDays,
		&t.IsCalendarDays,
		&t.RequiredParticipants,
		&t.RequiredDocuments,
		&t.Description,
	)
	return t, err
}
