// Package complaint records informal complaints and elevates them to formal
// grievance cases.
package complaint

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"caseflow/apperr"
	"caseflow/db"
	"caseflow/eventlog"
	"caseflow/grievance"
	"caseflow/identity"
	"caseflow/metrics"
	"caseflow/sequence"
	"caseflow/tracing"
)

type Store interface {
	Insert(ctx context.Context, q db.Querier, c Complaint) (Complaint, error)
	GetForOrg(ctx context.Context, q db.Querier, orgID, id string, forUpdate bool) (Complaint, error)
	ListForOrg(ctx context.Context, q db.Querier, orgID string) ([]Complaint, error)
	MarkGrieved(ctx context.Context, q db.Querier, id, caseID string) (Complaint, error)
}

type Allocator interface {
	AllocateNextTx(ctx context.Context, q db.Querier, orgID string, kind sequence.Kind) (int64, error)
}

type Service struct {
	pool  db.TxBeginner
	store Store
	seq   Allocator
}

func NewService(pool db.TxBeginner, store Store, seq Allocator) *Service {
	if store == nil {
		store = NewRepository()
	}
	if seq == nil {
		seq = sequence.NewAllocator(pool)
	}
	return &Service{pool: pool, store: store, seq: seq}
}

type CreateParams struct {
	BargainingUnitID  string
	AgreementID       *string
	Complainant       grievance.Grievor
	WorkInformation   grievance.WorkInformation
	Statement         string
	SettlementDesired string
	ArticlesViolated  *string
}

// Create records an OPEN complaint numbered C-###.
func (s *Service) Create(ctx context.Context, actor identity.Actor, p CreateParams) (c Complaint, err error) {
	started := time.Now()
	defer func() { metrics.ObserveOperation("complaint_create", started, err) }()

	if err := actor.Require(); err != nil {
		return Complaint{}, err
	}
	if strings.TrimSpace(p.BargainingUnitID) == "" {
		return Complaint{}, apperr.Validation("a bargaining unit is required to record a complaint")
	}
	if p.AgreementID != nil && strings.TrimSpace(*p.AgreementID) == "" {
		p.AgreementID = nil
	}

	work := p.WorkInformation
	work.Version = 1
	draft := Complaint{
		OrganizationID:    actor.OrganizationID,
		BargainingUnitID:  p.BargainingUnitID,
		AgreementID:       p.AgreementID,
		Status:            StatusOpen,
		Complainant:       p.Complainant,
		WorkInformation:   work,
		Statement:         p.Statement,
		SettlementDesired: p.SettlementDesired,
		ArticlesViolated:  p.ArticlesViolated,
		CreatorID:         actor.UserID,
	}
	// Elevation files this same report, so it must pass case validation now.
	if err := apperr.ValidateStruct(draft.ReportFields()); err != nil {
		return Complaint{}, err
	}

	return db.InTxResult(ctx, s.pool, func(tx pgx.Tx) (Complaint, error) {
		n, err := s.seq.AllocateNextTx(ctx, tx, actor.OrganizationID, sequence.KindComplaint)
		if err != nil {
			return Complaint{}, err
		}
		metrics.SequenceAllocated(sequence.KindComplaint.String())

		draft.Number = sequence.Format(sequence.KindComplaint, n)
		return s.store.Insert(ctx, tx, draft)
	})
}

func (s *Service) Get(ctx context.Context, actor identity.Actor, id string) (Complaint, error) {
	if err := actor.Require(); err != nil {
		return Complaint{}, err
	}
	return db.InTxResult(ctx, s.pool, func(tx pgx.Tx) (Complaint, error) {
		return s.store.GetForOrg(ctx, tx, actor.OrganizationID, id, false)
	})
}

func (s *Service) List(ctx context.Context, actor identity.Actor) ([]Complaint, error) {
	if err := actor.Require(); err != nil {
		return nil, err
	}
	return db.InTxResult(ctx, s.pool, func(tx pgx.Tx) ([]Complaint, error) {
		return s.store.ListForOrg(ctx, tx, actor.OrganizationID)
	})
}

// CaseCreator files a case inside an open transaction.
type CaseCreator interface {
	CreateTx(ctx context.Context, q db.Querier, actor identity.Actor, p grievance.CreateParams) (grievance.Case, error)
}

type EventAppender interface {
	Append(ctx context.Context, q db.Querier, e eventlog.Entry) (eventlog.Event, error)
}

type ChangeNotifier interface {
	CaseChanged(caseID string)
}

// Coordinator elevates complaints. Concurrent conversions of one complaint
// serialize on its row lock, so at most one case is ever created for it.
type Coordinator struct {
	pool     db.TxBeginner
	store    Store
	cases    CaseCreator
	events   EventAppender
	notifier ChangeNotifier
	log      logrus.FieldLogger
}

func NewCoordinator(pool db.TxBeginner, store Store, cases CaseCreator, events EventAppender, notifier ChangeNotifier, log logrus.FieldLogger) *Coordinator {
	if store == nil {
		store = NewRepository()
	}
	if events == nil {
		events = eventlog.New()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		pool:     pool,
		store:    store,
		cases:    cases,
		events:   events,
		notifier: notifier,
		log:      log.WithField("module", "complaint"),
	}
}

// Convert elevates a complaint to a FORMAL individual case. Calling it again
// returns the case created the first time with IsNew false.
func (c *Coordinator) Convert(ctx context.Context, actor identity.Actor, complaintID string) (res ConvertResult, err error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "complaint.convert", attribute.String("complaint.id", complaintID))
	defer func() {
		tracing.End(span, err)
		metrics.ObserveOperation("convert", started, err)
	}()

	if err := actor.Require(); err != nil {
		return ConvertResult{}, err
	}

	res, err = db.InTxResult(ctx, c.pool, func(tx pgx.Tx) (ConvertResult, error) {
		cmp, err := c.store.GetForOrg(ctx, tx, actor.OrganizationID, complaintID, true)
		if err != nil {
			return ConvertResult{}, err
		}
		if cmp.CaseID != nil {
			return ConvertResult{CaseID: *cmp.CaseID, IsNew: false}, nil
		}
		if cmp.AgreementID == nil {
			return ConvertResult{}, apperr.ConfigurationMissing("link the complaint to an agreement before elevating it")
		}

		created, err := c.cases.CreateTx(ctx, tx, actor, grievance.CreateParams{
			BargainingUnitID: cmp.BargainingUnitID,
			AgreementID:      *cmp.AgreementID,
			Type:             grievance.TypeIndividual,
			Stage:            grievance.StageFormal,
			ExternalID:       &cmp.Number,
			Report:           cmp.ReportFields(),
		})
		if err != nil {
			return ConvertResult{}, err
		}

		if _, err := c.store.MarkGrieved(ctx, tx, cmp.ID, created.ID); err != nil {
			return ConvertResult{}, err
		}
		if _, err := c.events.Append(ctx, tx, eventlog.Entry{
			CaseID: created.ID,
			UserID: actor.UserID,
			Type:   eventlog.EventElevated,
			New:    cmp.Number,
		}); err != nil {
			return ConvertResult{}, err
		}
		return ConvertResult{CaseID: created.ID, IsNew: true}, nil
	})
	if err != nil {
		return ConvertResult{}, err
	}

	if res.IsNew {
		c.log.WithFields(logrus.Fields{"op": "convert", "complaint_id": complaintID, "case_id": res.CaseID}).Info("complaint elevated")
		if c.notifier != nil {
			c.notifier.CaseChanged(res.CaseID)
		}
	}
	return res, nil
}
