// Package grievance is the case workflow engine: filing, step progression,
// status and assignee changes, report edits and deletion of cases.
package grievance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"caseflow/agreement"
	"caseflow/apperr"
	"caseflow/db"
	"caseflow/duedate"
	"caseflow/eventlog"
	"caseflow/identity"
	"caseflow/metrics"
	"caseflow/resolution"
	"caseflow/sequence"
	"caseflow/steptemplate"
	"caseflow/tracing"
	"caseflow/users"
)

// Store is the persistence the engine drives. Every method runs on the
// querier it is given.
type Store interface {
	InsertCase(ctx context.Context, q db.Querier, c Case) (Case, error)
	GetForOrg(ctx context.Context, q db.Querier, orgID, id string, forUpdate bool) (Case, error)
	SetCurrentStep(ctx context.Context, q db.Querier, caseID string, stepNumber int, stage Stage, actorID string) error
	SetAssignee(ctx context.Context, q db.Querier, caseID string, assigneeID *string, actorID string) (Case, error)
	SetStatus(ctx context.Context, q db.Querier, caseID string, status Status, stage Stage, details *resolution.Details, actorID string) (Case, error)
	SetCosts(ctx context.Context, q db.Querier, caseID string, estimated, actual decimal.NullDecimal, actorID string) (Case, error)
	Touch(ctx context.Context, q db.Querier, caseID, actorID string) error
	InsertReport(ctx context.Context, q db.Querier, rep Report) error
	GetReport(ctx context.Context, q db.Querier, caseID string, forUpdate bool) (Report, error)
	SetReportField(ctx context.Context, q db.Querier, caseID string, field Field, value *string) error
	InsertStep(ctx context.Context, q db.Querier, s Step) (Step, error)
	GetStepForOrg(ctx context.Context, q db.Querier, orgID, stepID string) (Step, error)
	UpdateStep(ctx context.Context, q db.Querier, s Step) (Step, error)
	ListSteps(ctx context.Context, q db.Querier, caseID string) ([]Step, error)
	DeleteEvidence(ctx context.Context, q db.Querier, caseID string) error
	DeleteReport(ctx context.Context, q db.Querier, caseID string) error
	DeleteCase(ctx context.Context, q db.Querier, caseID string) error
}

type Allocator interface {
	AllocateNextTx(ctx context.Context, q db.Querier, orgID string, kind sequence.Kind) (int64, error)
}

type TemplateResolver interface {
	Resolve(ctx context.Context, q db.Querier, agreementID, caseType, stage string) (steptemplate.Template, error)
	Lookup(ctx context.Context, q db.Querier, agreementID, caseType, stage string, stepNumber int) (steptemplate.Template, error)
	NextExists(ctx context.Context, q db.Querier, agreementID, caseType string, current int) (bool, error)
}

type EventLog interface {
	Append(ctx context.Context, q db.Querier, e eventlog.Entry) (eventlog.Event, error)
	ListForCase(ctx context.Context, q db.Querier, caseID string) ([]eventlog.Event, error)
	DeleteForCase(ctx context.Context, q db.Querier, caseID string) error
}

// Agreements checks that linked agreements and units belong to the caller.
type Agreements interface {
	GetForOrg(ctx context.Context, q db.Querier, orgID, id string) (agreement.Agreement, error)
	UnitForOrg(ctx context.Context, q db.Querier, orgID, id string) (agreement.BargainingUnit, error)
}

type Directory interface {
	GetForOrg(ctx context.Context, q db.Querier, orgID, id string) (users.User, error)
}

// ChangeNotifier receives best-effort "case changed" signals after commit.
type ChangeNotifier interface {
	CaseChanged(caseID string)
}

type nopNotifier struct{}

func (nopNotifier) CaseChanged(string) {}

// Deps overrides collaborators. Nil fields get the Postgres-backed default.
type Deps struct {
	Store      Store
	Sequence   Allocator
	Templates  TemplateResolver
	Events     EventLog
	Agreements Agreements
	Users      Directory
	Notifier   ChangeNotifier
	Log        logrus.FieldLogger
}

type Engine struct {
	pool       db.TxBeginner
	store      Store
	seq        Allocator
	templates  TemplateResolver
	events     EventLog
	agreements Agreements
	users      Directory
	notifier   ChangeNotifier
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewEngine(pool db.TxBeginner, deps Deps) *Engine {
	e := &Engine{
		pool:       pool,
		store:      deps.Store,
		seq:        deps.Sequence,
		templates:  deps.Templates,
		events:     deps.Events,
		agreements: deps.Agreements,
		users:      deps.Users,
		notifier:   deps.Notifier,
		log:        deps.Log,
		now:        time.Now,
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	e.log = e.log.WithField("module", "grievance")
	if e.store == nil {
		e.store = NewRepository()
	}
	if e.seq == nil {
		e.seq = sequence.NewAllocator(pool)
	}
	if e.templates == nil {
		e.templates = steptemplate.NewResolver(e.log)
	}
	if e.events == nil {
		e.events = eventlog.New()
	}
	if e.agreements == nil {
		e.agreements = agreement.NewRepository()
	}
	if e.users == nil {
		e.users = users.NewRepository()
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// track opens a span and returns the func that closes it and records the
// operation metric.
func (e *Engine) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "grievance."+op, attrs...)
	return ctx, func(err error) {
		tracing.End(span, err)
		metrics.ObserveOperation(op, started, err)
	}
}

type CreateParams struct {
	BargainingUnitID string
	AgreementID      string
	Type             Type
	Stage            Stage
	Category         *string
	ExternalID       *string
	AssignedToID     *string
	// FiledAt defaults to now. The first step's due date counts from it.
	FiledAt time.Time
	Report  ReportFields
}

func (p CreateParams) validate() error {
	if strings.TrimSpace(p.AgreementID) == "" || strings.TrimSpace(p.BargainingUnitID) == "" {
		return apperr.Validation("an agreement and a bargaining unit are required to file a case")
	}
	if !p.Type.Valid() {
		return apperr.Newf(apperr.KindValidation, "unknown case type %q", p.Type)
	}
	if !p.Stage.Valid() {
		return apperr.Newf(apperr.KindValidation, "unknown stage %q", p.Stage)
	}
	return apperr.ValidateStruct(p.Report)
}

// Create files a case with its report, first step and CREATED event in one
// transaction.
func (e *Engine) Create(ctx context.Context, actor identity.Actor, p CreateParams) (c Case, err error) {
	ctx, done := e.track(ctx, "create")
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return Case{}, err
	}
	if err := p.validate(); err != nil {
		return Case{}, err
	}

	c, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Case, error) {
		return e.create(ctx, tx, actor, p)
	})
	if err != nil {
		return Case{}, err
	}

	e.log.WithFields(logrus.Fields{"op": "create", "case_id": c.ID, "case_number": c.CaseNumber}).Info("case filed")
	e.notifier.CaseChanged(c.ID)
	return c, nil
}

// CreateTx files a case inside the caller's transaction. The caller commits
// and sends the change signal.
func (e *Engine) CreateTx(ctx context.Context, q db.Querier, actor identity.Actor, p CreateParams) (Case, error) {
	if err := actor.Require(); err != nil {
		return Case{}, err
	}
	if err := p.validate(); err != nil {
		return Case{}, err
	}
	return e.create(ctx, q, actor, p)
}

func (e *Engine) create(ctx context.Context, q db.Querier, actor identity.Actor, p CreateParams) (Case, error) {
	org := actor.OrganizationID
	if _, err := e.agreements.GetForOrg(ctx, q, org, p.AgreementID); err != nil {
		return Case{}, err
	}
	if _, err := e.agreements.UnitForOrg(ctx, q, org, p.BargainingUnitID); err != nil {
		return Case{}, err
	}
	assignee, err := e.checkAssignee(ctx, q, org, p.AssignedToID)
	if err != nil {
		return Case{}, err
	}

	tpl, err := e.templates.Resolve(ctx, q, p.AgreementID, string(p.Type), string(p.Stage))
	if err != nil {
		return Case{}, err
	}

	n, err := e.seq.AllocateNextTx(ctx, q, org, sequence.KindGrievance)
	if err != nil {
		return Case{}, err
	}
	number := sequence.Format(sequence.KindGrievance, n)
	metrics.SequenceAllocated(sequence.KindGrievance.String())

	filedAt := p.FiledAt
	if filedAt.IsZero() {
		filedAt = e.now()
	}
	agreementID := p.AgreementID

	created, err := e.store.InsertCase(ctx, q, Case{
		OrganizationID:    org,
		BargainingUnitID:  p.BargainingUnitID,
		AgreementID:       &agreementID,
		Type:              p.Type,
		Category:          p.Category,
		Status:            StatusActive,
		CurrentStage:      Stage(tpl.Stage),
		CurrentStepNumber: tpl.StepNumber,
		FiledAt:           filedAt,
		CaseNumber:        number,
		ExternalID:        p.ExternalID,
		AssignedToID:      assignee,
		CreatorID:         actor.UserID,
		LastUpdatedByID:   actor.UserID,
	})
	if err != nil {
		return Case{}, err
	}

	if err := e.store.InsertReport(ctx, q, p.Report.report(created.ID)); err != nil {
		return Case{}, err
	}

	limit := tpl.TimeLimitDays
	if _, err := e.store.InsertStep(ctx, q, Step{
		CaseID:        created.ID,
		StepNumber:    tpl.StepNumber,
		Stage:         Stage(tpl.Stage),
		Status:        StepPending,
		DueDate:       duedate.DueDate(filedAt, tpl.TimeLimitDays, tpl.IsCalendarDays),
		TimeLimitDays: &limit,
	}); err != nil {
		return Case{}, err
	}

	if _, err := e.events.Append(ctx, q, eventlog.Entry{
		CaseID: created.ID,
		UserID: actor.UserID,
		Type:   eventlog.EventCreated,
		New:    number,
	}); err != nil {
		return Case{}, err
	}
	return created, nil
}

func (e *Engine) checkAssignee(ctx context.Context, q db.Querier, orgID string, id *string) (*string, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, nil
	}
	u, err := e.users.GetForOrg(ctx, q, orgID, *id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("assignee is not a member of this organization")
		}
		return nil, err
	}
	return &u.ID, nil
}

type AdvanceParams struct {
	CaseID     string
	StepNumber int
	Stage      Stage
	// DueDate zero derives the due date from the agreement's template for
	// the step, counted from now.
	DueDate time.Time
	Notes   *string
}

// AdvanceStep adds a step and makes it current. The previous step is left
// as it is.
func (e *Engine) AdvanceStep(ctx context.Context, actor identity.Actor, p AdvanceParams) (s Step, err error) {
	ctx, done := e.track(ctx, "advance_step", attribute.String("case.id", p.CaseID))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return Step{}, err
	}
	if p.StepNumber <= 0 {
		return Step{}, apperr.Validation("step number must be positive")
	}
	if !p.Stage.Valid() {
		return Step{}, apperr.Newf(apperr.KindValidation, "unknown stage %q", p.Stage)
	}

	s, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Step, error) {
		c, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, p.CaseID, true)
		if err != nil {
			return Step{}, err
		}

		due := p.DueDate
		var limit *int
		if due.IsZero() {
			if c.AgreementID == nil {
				return Step{}, apperr.Validation("a due date is required for cases without an agreement")
			}
			tpl, err := e.templates.Lookup(ctx, tx, *c.AgreementID, string(c.Type), string(p.Stage), p.StepNumber)
			if err != nil {
				return Step{}, err
			}
			due = duedate.DueDate(e.now(), tpl.TimeLimitDays, tpl.IsCalendarDays)
			limit = &tpl.TimeLimitDays
		}

		step, err := e.store.InsertStep(ctx, tx, Step{
			CaseID:        c.ID,
			StepNumber:    p.StepNumber,
			Stage:         p.Stage,
			Status:        StepPending,
			DueDate:       due,
			Notes:         p.Notes,
			TimeLimitDays: limit,
		})
		if err != nil {
			return Step{}, err
		}
		if err := e.store.SetCurrentStep(ctx, tx, c.ID, step.StepNumber, step.Stage, actor.UserID); err != nil {
			return Step{}, err
		}
		if _, err := e.events.Append(ctx, tx, eventlog.Entry{
			CaseID:   c.ID,
			UserID:   actor.UserID,
			Type:     eventlog.EventStepAdvanced,
			Previous: strconv.Itoa(c.CurrentStepNumber),
			New:      strconv.Itoa(step.StepNumber),
		}); err != nil {
			return Step{}, err
		}
		return step, nil
	})
	if err != nil {
		return Step{}, err
	}
	e.notifier.CaseChanged(s.CaseID)
	return s, nil
}

type UpdateStepParams struct {
	StepID        string
	Status        *StepStatus
	Notes         *string
	CompletedDate *time.Time
}

// UpdateStep changes a step's status, notes or completion date. Moving to
// COMPLETED without a date stamps now unless the step already has one;
// moving to any other status clears the completion date, even one passed
// in the same call. A date alone is only accepted on a completed step.
func (e *Engine) UpdateStep(ctx context.Context, actor identity.Actor, p UpdateStepParams) (s Step, err error) {
	ctx, done := e.track(ctx, "update_step", attribute.String("step.id", p.StepID))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return Step{}, err
	}
	if p.Status != nil && !p.Status.Valid() {
		return Step{}, apperr.Newf(apperr.KindValidation, "unknown step status %q", *p.Status)
	}

	s, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Step, error) {
		current, err := e.store.GetStepForOrg(ctx, tx, actor.OrganizationID, p.StepID)
		if err != nil {
			return Step{}, err
		}

		next := current
		if p.Notes != nil {
			next.Notes = p.Notes
		}
		switch {
		case p.Status == nil:
			if p.CompletedDate != nil {
				if current.Status != StepCompleted {
					return Step{}, apperr.Validation("a completion date can only be set on a completed step")
				}
				next.CompletedDate = p.CompletedDate
			}
		case *p.Status == StepCompleted:
			next.Status = StepCompleted
			if p.CompletedDate != nil {
				next.CompletedDate = p.CompletedDate
			} else if next.CompletedDate == nil {
				now := e.now()
				next.CompletedDate = &now
			}
		default:
			next.Status = *p.Status
			next.CompletedDate = nil
		}

		updated, err := e.store.UpdateStep(ctx, tx, next)
		if err != nil {
			return Step{}, err
		}
		if err := e.store.Touch(ctx, tx, current.CaseID, actor.UserID); err != nil {
			return Step{}, err
		}
		if current.Status != updated.Status {
			if _, err := e.events.Append(ctx, tx, eventlog.Entry{
				CaseID:   current.CaseID,
				UserID:   actor.UserID,
				Type:     eventlog.EventStepUpdated,
				Previous: string(current.Status),
				New:      string(updated.Status),
			}); err != nil {
				return Step{}, err
			}
		}
		return updated, nil
	})
	if err != nil {
		return Step{}, err
	}
	e.notifier.CaseChanged(s.CaseID)
	return s, nil
}

// ChangeAssignee sets or clears (nil or "") the assignee. The event encodes
// "unassigned" as an empty string.
func (e *Engine) ChangeAssignee(ctx context.Context, actor identity.Actor, caseID string, assigneeID *string) (c Case, err error) {
	ctx, done := e.track(ctx, "change_assignee", attribute.String("case.id", caseID))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return Case{}, err
	}

	c, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Case, error) {
		prior, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, caseID, true)
		if err != nil {
			return Case{}, err
		}
		assignee, err := e.checkAssignee(ctx, tx, actor.OrganizationID, assigneeID)
		if err != nil {
			return Case{}, err
		}
		updated, err := e.store.SetAssignee(ctx, tx, prior.ID, assignee, actor.UserID)
		if err != nil {
			return Case{}, err
		}
		if _, err := e.events.Append(ctx, tx, eventlog.Entry{
			CaseID:   prior.ID,
			UserID:   actor.UserID,
			Type:     eventlog.EventAssigneeChanged,
			Previous: deref(prior.AssignedToID),
			New:      deref(assignee),
		}); err != nil {
			return Case{}, err
		}
		return updated, nil
	})
	if err != nil {
		return Case{}, err
	}
	e.notifier.CaseChanged(c.ID)
	return c, nil
}

type StatusParams struct {
	CaseID string
	Status Status
	// Stage nil keeps the current stage.
	Stage    *Stage
	Outcomes *string
	// Resolution is stored as given when no outcomes are supplied, so nil
	// clears the stored record.
	Resolution *resolution.Details
}

// UpdateStatus sets status and stage and merges the resolution record. The
// case is stamped with the actor even when nothing visible changed.
func (e *Engine) UpdateStatus(ctx context.Context, actor identity.Actor, p StatusParams) (c Case, err error) {
	ctx, done := e.track(ctx, "update_status", attribute.String("case.id", p.CaseID))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return Case{}, err
	}
	if !p.Status.Valid() {
		return Case{}, apperr.Newf(apperr.KindValidation, "unknown status %q", p.Status)
	}
	if p.Stage != nil && !p.Stage.Valid() {
		return Case{}, apperr.Newf(apperr.KindValidation, "unknown stage %q", *p.Stage)
	}

	c, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Case, error) {
		prior, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, p.CaseID, true)
		if err != nil {
			return Case{}, err
		}

		merged := resolution.Merge(resolution.Input{
			Existing:  prior.Resolution,
			Outcomes:  p.Outcomes,
			Supplied:  p.Resolution,
			ActorID:   actor.UserID,
			NewStatus: string(p.Status),
			Now:       e.now(),
		})
		if err := merged.Validate(); err != nil {
			return Case{}, err
		}

		stage := prior.CurrentStage
		if p.Stage != nil {
			stage = *p.Stage
		}

		updated, err := e.store.SetStatus(ctx, tx, prior.ID, p.Status, stage, merged, actor.UserID)
		if err != nil {
			return Case{}, err
		}

		if prior.Status != updated.Status {
			if err := e.appendChange(ctx, tx, actor, prior.ID, eventlog.EventStatusChanged, string(prior.Status), string(updated.Status)); err != nil {
				return Case{}, err
			}
		}
		if prior.CurrentStage != updated.CurrentStage {
			if err := e.appendChange(ctx, tx, actor, prior.ID, eventlog.EventStageChanged, string(prior.CurrentStage), string(updated.CurrentStage)); err != nil {
				return Case{}, err
			}
		}
		return updated, nil
	})
	if err != nil {
		return Case{}, err
	}
	e.notifier.CaseChanged(c.ID)
	return c, nil
}

type FieldParams struct {
	CaseID string
	Field  Field
	Value  *string
	// Audit appends a per-field event with the previous and new text.
	Audit bool
}

// UpdateField edits one report text field and returns the prior value.
func (e *Engine) UpdateField(ctx context.Context, actor identity.Actor, p FieldParams) (fc FieldChange, err error) {
	ctx, done := e.track(ctx, "update_field", attribute.String("case.id", p.CaseID), attribute.String("field", string(p.Field)))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return FieldChange{}, err
	}
	if _, ok := p.Field.column(); !ok {
		return FieldChange{}, apperr.Newf(apperr.KindValidation, "field %q cannot be edited", p.Field)
	}

	fc, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (FieldChange, error) {
		c, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, p.CaseID, true)
		if err != nil {
			return FieldChange{}, err
		}
		rep, err := e.store.GetReport(ctx, tx, c.ID, true)
		if err != nil {
			return FieldChange{}, err
		}

		previous := rep.field(p.Field)
		value := p.Value
		if value == nil && p.Field != FieldArticlesViolated {
			empty := ""
			value = &empty
		}
		if err := e.store.SetReportField(ctx, tx, c.ID, p.Field, value); err != nil {
			return FieldChange{}, err
		}
		if err := e.store.Touch(ctx, tx, c.ID, actor.UserID); err != nil {
			return FieldChange{}, err
		}
		if p.Audit {
			if err := e.appendChange(ctx, tx, actor, c.ID, p.Field.eventType(), deref(previous), deref(value)); err != nil {
				return FieldChange{}, err
			}
		}
		return FieldChange{Field: p.Field, Previous: previous, New: value}, nil
	})
	if err != nil {
		return FieldChange{}, err
	}
	e.notifier.CaseChanged(p.CaseID)
	return fc, nil
}

func (r Report) field(f Field) *string {
	switch f {
	case FieldStatement:
		v := r.Statement
		return &v
	case FieldSettlementDesired:
		v := r.SettlementDesired
		return &v
	default:
		return r.ArticlesViolated
	}
}

// UpdateCosts records estimated and actual remedy costs. Invalid (null)
// values clear the column.
func (e *Engine) UpdateCosts(ctx context.Context, actor identity.Actor, caseID string, estimated, actual decimal.NullDecimal) (c Case, err error) {
	ctx, done := e.track(ctx, "update_costs", attribute.String("case.id", caseID))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return Case{}, err
	}
	for _, v := range []decimal.NullDecimal{estimated, actual} {
		if v.Valid && v.Decimal.IsNegative() {
			return Case{}, apperr.Validation("costs cannot be negative")
		}
	}

	c, err = db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Case, error) {
		prior, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, caseID, true)
		if err != nil {
			return Case{}, err
		}
		updated, err := e.store.SetCosts(ctx, tx, prior.ID, estimated, actual, actor.UserID)
		if err != nil {
			return Case{}, err
		}
		if err := e.appendChange(ctx, tx, actor, prior.ID, eventlog.EventCostsUpdated,
			formatCosts(prior.EstimatedCost, prior.ActualCost), formatCosts(updated.EstimatedCost, updated.ActualCost)); err != nil {
			return Case{}, err
		}
		return updated, nil
	})
	if err != nil {
		return Case{}, err
	}
	e.notifier.CaseChanged(c.ID)
	return c, nil
}

func formatCosts(estimated, actual decimal.NullDecimal) string {
	str := func(d decimal.NullDecimal) string {
		if !d.Valid {
			return ""
		}
		return d.Decimal.StringFixed(2)
	}
	return fmt.Sprintf("estimated=%s;actual=%s", str(estimated), str(actual))
}

// Delete removes a case with its evidence, events, report and steps in one
// transaction.
func (e *Engine) Delete(ctx context.Context, actor identity.Actor, caseID string) (err error) {
	ctx, done := e.track(ctx, "delete", attribute.String("case.id", caseID))
	defer func() { done(err) }()

	if err := actor.Require(); err != nil {
		return err
	}

	err = db.InTx(ctx, e.pool, func(tx pgx.Tx) error {
		c, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, caseID, true)
		if err != nil {
			return err
		}
		if err := e.store.DeleteEvidence(ctx, tx, c.ID); err != nil {
			return err
		}
		if err := e.events.DeleteForCase(ctx, tx, c.ID); err != nil {
			return err
		}
		if err := e.store.DeleteReport(ctx, tx, c.ID); err != nil {
			return err
		}
		return e.store.DeleteCase(ctx, tx, c.ID)
	})
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{"op": "delete", "case_id": caseID, "actor_id": actor.UserID}).Info("case deleted")
	e.notifier.CaseChanged(caseID)
	return nil
}

// Get loads a case with its report and steps, and whether the agreement
// defines a step after the current one.
func (e *Engine) Get(ctx context.Context, actor identity.Actor, caseID string) (Detail, error) {
	if err := actor.Require(); err != nil {
		return Detail{}, err
	}
	return db.InTxResult(ctx, e.pool, func(tx pgx.Tx) (Detail, error) {
		c, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, caseID, false)
		if err != nil {
			return Detail{}, err
		}
		rep, err := e.store.GetReport(ctx, tx, c.ID, false)
		if err != nil {
			return Detail{}, err
		}
		steps, err := e.store.ListSteps(ctx, tx, c.ID)
		if err != nil {
			return Detail{}, err
		}
		d := Detail{Case: c, Report: rep, Steps: steps}
		if c.AgreementID != nil {
			d.HasNextStep, err = e.templates.NextExists(ctx, tx, *c.AgreementID, string(c.Type), c.CurrentStepNumber)
			if err != nil {
				return Detail{}, err
			}
		}
		return d, nil
	})
}

// Events returns the audit trail of a case in append order.
func (e *Engine) Events(ctx context.Context, actor identity.Actor, caseID string) ([]eventlog.Event, error) {
	if err := actor.Require(); err != nil {
		return nil, err
	}
	return db.InTxResult(ctx, e.pool, func(tx pgx.Tx) ([]eventlog.Event, error) {
		if _, err := e.store.GetForOrg(ctx, tx, actor.OrganizationID, caseID, false); err != nil {
			return nil, err
		}
		return e.events.ListForCase(ctx, tx, caseID)
	})
}

func (e *Engine) appendChange(ctx context.Context, q db.Querier, actor identity.Actor, caseID string, t eventlog.EventType, previous, next string) error {
	_, err := e.events.Append(ctx, q, eventlog.Entry{
		CaseID:   caseID,
		UserID:   actor.UserID,
		Type:     t,
		Previous: previous,
		New:      next,
	})
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
