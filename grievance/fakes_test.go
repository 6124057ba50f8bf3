package grievance

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"caseflow/agreement"
	"caseflow/apperr"
	"caseflow/db"
	"caseflow/eventlog"
	"caseflow/resolution"
	"caseflow/sequence"
	"caseflow/steptemplate"
	"caseflow/users"
)

// memStore keeps rows in maps. It ignores the querier, so transaction
// behavior is observed through dbtest.Pool.
type memStore struct {
	cases    map[string]Case
	reports  map[string]Report
	steps    map[string]Step
	evidence map[string]int
	failOn   string
}

func newMemStore() *memStore {
	return &memStore{
		cases:    map[string]Case{},
		reports:  map[string]Report{},
		steps:    map[string]Step{},
		evidence: map[string]int{},
	}
}

var errInjected = errors.New("injected store failure")

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return errInjected
	}
	return nil
}

func (m *memStore) InsertCase(_ context.Context, _ db.Querier, c Case) (Case, error) {
	if err := m.fail("InsertCase"); err != nil {
		return Case{}, err
	}
	c.ID = uuid.NewString()
	m.cases[c.ID] = c
	return c, nil
}

func (m *memStore) GetForOrg(_ context.Context, _ db.Querier, orgID, id string, _ bool) (Case, error) {
	c, ok := m.cases[id]
	if !ok || c.OrganizationID != orgID {
		return Case{}, ErrCaseNotFound
	}
	return c, nil
}

func (m *memStore) SetCurrentStep(_ context.Context, _ db.Querier, caseID string, n int, stage Stage, actorID string) error {
	c := m.cases[caseID]
	c.CurrentStepNumber, c.CurrentStage, c.LastUpdatedByID = n, stage, actorID
	m.cases[caseID] = c
	return nil
}

func (m *memStore) SetAssignee(_ context.Context, _ db.Querier, caseID string, assignee *string, actorID string) (Case, error) {
	c := m.cases[caseID]
	c.AssignedToID, c.LastUpdatedByID = assignee, actorID
	m.cases[caseID] = c
	return c, nil
}

func (m *memStore) SetStatus(_ context.Context, _ db.Querier, caseID string, status Status, stage Stage, d *resolution.Details, actorID string) (Case, error) {
	if err := m.fail("SetStatus"); err != nil {
		return Case{}, err
	}
	c := m.cases[caseID]
	c.Status, c.CurrentStage, c.Resolution, c.LastUpdatedByID = status, stage, d, actorID
	m.cases[caseID] = c
	return c, nil
}

func (m *memStore) SetCosts(_ context.Context, _ db.Querier, caseID string, est, act decimal.NullDecimal, actorID string) (Case, error) {
	c := m.cases[caseID]
	c.EstimatedCost, c.ActualCost, c.LastUpdatedByID = est, act, actorID
	m.cases[caseID] = c
	return c, nil
}

func (m *memStore) Touch(_ context.Context, _ db.Querier, caseID, actorID string) error {
	c := m.cases[caseID]
	c.LastUpdatedByID = actorID
	m.cases[caseID] = c
	return nil
}

func (m *memStore) InsertReport(_ context.Context, _ db.Querier, rep Report) error {
	m.reports[rep.CaseID] = rep
	return nil
}

func (m *memStore) GetReport(_ context.Context, _ db.Querier, caseID string, _ bool) (Report, error) {
	rep, ok := m.reports[caseID]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return rep, nil
}

func (m *memStore) SetReportField(_ context.Context, _ db.Querier, caseID string, f Field, v *string) error {
	rep := m.reports[caseID]
	text := ""
	if v != nil {
		text = *v
	}
	switch f {
	case FieldStatement:
		rep.Statement = text
	case FieldSettlementDesired:
		rep.SettlementDesired = text
	case FieldArticlesViolated:
		rep.ArticlesViolated = v
	}
	m.reports[caseID] = rep
	return nil
}

func (m *memStore) InsertStep(_ context.Context, _ db.Querier, s Step) (Step, error) {
	for _, existing := range m.steps {
		if existing.CaseID == s.CaseID && existing.StepNumber == s.StepNumber {
			return Step{}, apperr.Conflict("step already exists on this case")
		}
	}
	s.ID = uuid.NewString()
	m.steps[s.ID] = s
	return s, nil
}

func (m *memStore) GetStepForOrg(_ context.Context, _ db.Querier, orgID, stepID string) (Step, error) {
	s, ok := m.steps[stepID]
	if !ok || m.cases[s.CaseID].OrganizationID != orgID {
		return Step{}, ErrStepNotFound
	}
	return s, nil
}

func (m *memStore) UpdateStep(_ context.Context, _ db.Querier, s Step) (Step, error) {
	m.steps[s.ID] = s
	return s, nil
}

func (m *memStore) ListSteps(_ context.Context, _ db.Querier, caseID string) ([]Step, error) {
	var out []Step
	for _, s := range m.steps {
		if s.CaseID == caseID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })
	return out, nil
}

func (m *memStore) DeleteEvidence(_ context.Context, _ db.Querier, caseID string) error {
	delete(m.evidence, caseID)
	return nil
}

func (m *memStore) DeleteReport(_ context.Context, _ db.Querier, caseID string) error {
	if err := m.fail("DeleteReport"); err != nil {
		return err
	}
	delete(m.reports, caseID)
	for id, s := range m.steps {
		if s.CaseID == caseID {
			delete(m.steps, id)
		}
	}
	return nil
}

func (m *memStore) DeleteCase(_ context.Context, _ db.Querier, caseID string) error {
	delete(m.cases, caseID)
	return nil
}

type fakeSequence struct{ next map[sequence.Kind]int64 }

func (f *fakeSequence) AllocateNextTx(_ context.Context, _ db.Querier, _ string, kind sequence.Kind) (int64, error) {
	if f.next == nil {
		f.next = map[sequence.Kind]int64{}
	}
	f.next[kind]++
	return f.next[kind], nil
}

type fakeTemplates struct {
	initial steptemplate.Template
	lookup  map[int]steptemplate.Template
	err     error
}

func (f *fakeTemplates) Resolve(_ context.Context, _ db.Querier, agreementID, _, stage string) (steptemplate.Template, error) {
	if f.err != nil {
		return steptemplate.Template{}, f.err
	}
	t := f.initial
	t.AgreementID = agreementID
	if t.Stage == "" {
		t.Stage = stage
	}
	return t, nil
}

func (f *fakeTemplates) Lookup(_ context.Context, _ db.Querier, _, _, _ string, n int) (steptemplate.Template, error) {
	t, ok := f.lookup[n]
	if !ok {
		return steptemplate.Template{}, apperr.ConfigurationMissing("no template for step")
	}
	return t, nil
}

func (f *fakeTemplates) NextExists(_ context.Context, _ db.Querier, _, _ string, current int) (bool, error) {
	_, ok := f.lookup[current+1]
	return ok, nil
}

type fakeEvents struct{ events []eventlog.Event }

func (f *fakeEvents) Append(_ context.Context, _ db.Querier, e eventlog.Entry) (eventlog.Event, error) {
	ev := eventlog.Event{ID: uuid.NewString(), CaseID: e.CaseID, UserID: e.UserID, Type: e.Type, Previous: e.Previous, New: e.New}
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeEvents) ListForCase(_ context.Context, _ db.Querier, caseID string) ([]eventlog.Event, error) {
	var out []eventlog.Event
	for _, e := range f.events {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) DeleteForCase(_ context.Context, _ db.Querier, caseID string) error {
	kept := f.events[:0]
	for _, e := range f.events {
		if e.CaseID != caseID {
			kept = append(kept, e)
		}
	}
	f.events = kept
	return nil
}

func (f *fakeEvents) ofType(t eventlog.EventType) []eventlog.Event {
	var out []eventlog.Event
	for _, e := range f.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeAgreements struct{ orgID string }

func (f fakeAgreements) GetForOrg(_ context.Context, _ db.Querier, orgID, id string) (agreement.Agreement, error) {
	if orgID != f.orgID {
		return agreement.Agreement{}, agreement.ErrAgreementNotFound
	}
	return agreement.Agreement{ID: id, OrganizationID: orgID}, nil
}

func (f fakeAgreements) UnitForOrg(_ context.Context, _ db.Querier, orgID, id string) (agreement.BargainingUnit, error) {
	if orgID != f.orgID {
		return agreement.BargainingUnit{}, agreement.ErrUnitNotFound
	}
	return agreement.BargainingUnit{ID: id, OrganizationID: orgID}, nil
}

type fakeUsers map[string]users.User

func (f fakeUsers) GetForOrg(_ context.Context, _ db.Querier, orgID, id string) (users.User, error) {
	u, ok := f[id]
	if !ok || u.OrganizationID != orgID {
		return users.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

type recordingNotifier struct{ changed []string }

func (r *recordingNotifier) CaseChanged(caseID string) { r.changed = append(r.changed, caseID) }
