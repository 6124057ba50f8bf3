package grievance

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"caseflow/db/dbtest"
	"caseflow/eventlog"
	"caseflow/identity"
)

func integrationEngine(t *testing.T) (*Engine, *pgxpool.Pool, dbtest.Fixture) {
	t.Helper()
	pool := dbtest.Open(t)
	f := dbtest.Seed(t, pool)
	logger, _ := test.NewNullLogger()
	return NewEngine(pool, Deps{Log: logger}), pool, f
}

func fixtureParams(f dbtest.Fixture, stage Stage) CreateParams {
	return CreateParams{
		BargainingUnitID: f.UnitID,
		AgreementID:      f.AgreementID,
		Type:             TypeIndividual,
		Stage:            stage,
		Report: ReportFields{
			Grievors:  []Grievor{{FirstName: "Ada", LastName: "Lovelace"}},
			Statement: "Scheduling grievance",
		},
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool, table, caseID string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT count(*) FROM `+table+` WHERE case_id = $1`, caseID).Scan(&n))
	return n
}

func TestEngine_FallbackReportsRequestedStage_Integration(t *testing.T) {
	engine, pool, f := integrationEngine(t)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 2, 10, false)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 3, 15, false)
	actor := identity.Actor{UserID: f.UserID, OrganizationID: f.OrgID}

	c, err := engine.Create(context.Background(), actor, fixtureParams(f, StageInformal))
	require.NoError(t, err)

	require.Equal(t, 2, c.CurrentStepNumber)
	require.Equal(t, StageInformal, c.CurrentStage)
	require.Equal(t, "G-001", c.CaseNumber)
}

func TestEngine_Lifecycle_Integration(t *testing.T) {
	engine, pool, f := integrationEngine(t)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 1, 5, false)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 2, 10, true)
	ctx := context.Background()
	actor := identity.Actor{UserID: f.UserID, OrganizationID: f.OrgID}

	c, err := engine.Create(ctx, actor, fixtureParams(f, StageFormal))
	require.NoError(t, err)

	detail, err := engine.Get(ctx, actor, c.ID)
	require.NoError(t, err)
	require.Len(t, detail.Steps, 1)
	first := detail.Steps[0]

	completed := StepCompleted
	stamped, err := engine.UpdateStep(ctx, actor, UpdateStepParams{StepID: first.ID, Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, stamped.CompletedDate)
	again, err := engine.UpdateStep(ctx, actor, UpdateStepParams{StepID: first.ID, Status: &completed})
	require.NoError(t, err)
	require.True(t, stamped.CompletedDate.Equal(*again.CompletedDate))

	next, err := engine.AdvanceStep(ctx, actor, AdvanceParams{CaseID: c.ID, StepNumber: 2, Stage: StageFormal})
	require.NoError(t, err)
	require.Equal(t, 10, *next.TimeLimitDays)

	paid := "paid $500"
	settled, err := engine.UpdateStatus(ctx, actor, StatusParams{CaseID: c.ID, Status: StatusSettled, Outcomes: &paid})
	require.NoError(t, err)
	require.Equal(t, "SETTLED", settled.Resolution.ResolutionType)

	correction := "correction: paid $600"
	corrected, err := engine.UpdateStatus(ctx, actor, StatusParams{CaseID: c.ID, Status: StatusSettled, Outcomes: &correction})
	require.NoError(t, err)
	require.Equal(t, "SETTLED", corrected.Resolution.ResolutionType)
	require.Equal(t, f.UserID, corrected.Resolution.ResolvedBy)
	require.Equal(t, correction, corrected.Resolution.Outcomes)

	events, err := engine.Events(ctx, actor, c.ID)
	require.NoError(t, err)
	var types []eventlog.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	require.Equal(t, []eventlog.EventType{
		eventlog.EventCreated,
		eventlog.EventStepUpdated,
		eventlog.EventStepAdvanced,
		eventlog.EventStatusChanged,
	}, types)

	_, err = pool.Exec(ctx, `UPDATE case_events SET new_value = 'x' WHERE case_id = $1`, c.ID)
	require.Error(t, err, "events are append-only")
}

func TestEngine_AdvancePrefersRequestedStageTemplate_Integration(t *testing.T) {
	engine, pool, f := integrationEngine(t)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 1, 5, false)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 2, 10, false)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "INFORMAL", 2, 3, true)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	engine.WithClock(func() time.Time { return now })
	ctx := context.Background()
	actor := identity.Actor{UserID: f.UserID, OrganizationID: f.OrgID}

	c, err := engine.Create(ctx, actor, fixtureParams(f, StageFormal))
	require.NoError(t, err)

	detail, err := engine.Get(ctx, actor, c.ID)
	require.NoError(t, err)
	require.True(t, detail.HasNextStep)

	informal, err := engine.AdvanceStep(ctx, actor, AdvanceParams{CaseID: c.ID, StepNumber: 2, Stage: StageInformal})
	require.NoError(t, err)
	require.Equal(t, StageInformal, informal.Stage)
	require.Equal(t, 3, *informal.TimeLimitDays)
	require.True(t, informal.DueDate.Equal(now.AddDate(0, 0, 3)), "calendar days from the informal template, got %s", informal.DueDate)

	detail, err = engine.Get(ctx, actor, c.ID)
	require.NoError(t, err)
	require.False(t, detail.HasNextStep)

	other, err := engine.Create(ctx, actor, fixtureParams(f, StageFormal))
	require.NoError(t, err)
	formal, err := engine.AdvanceStep(ctx, actor, AdvanceParams{CaseID: other.ID, StepNumber: 2, Stage: StageFormal})
	require.NoError(t, err)
	require.Equal(t, 10, *formal.TimeLimitDays)
}

func TestEngine_DeleteLeavesNoRows_Integration(t *testing.T) {
	engine, pool, f := integrationEngine(t)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 1, 5, false)
	ctx := context.Background()
	actor := identity.Actor{UserID: f.UserID, OrganizationID: f.OrgID}

	c, err := engine.Create(ctx, actor, fixtureParams(f, StageFormal))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO evidence (case_id, file_id, file_name, uploaded_by_id) VALUES ($1, 'f1', 'letter.pdf', $2)`, c.ID, f.UserID)
	require.NoError(t, err)

	require.NoError(t, engine.Delete(ctx, actor, c.ID))

	for _, table := range []string{"reports", "case_events", "evidence", "case_steps"} {
		require.Zero(t, countRows(t, pool, table, c.ID), table)
	}
	var cases int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM cases WHERE id = $1`, c.ID).Scan(&cases))
	require.Zero(t, cases)
}

func TestLister_Integration(t *testing.T) {
	engine, pool, f := integrationEngine(t)
	dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", 1, 0, false)
	ctx := context.Background()
	actor := identity.Actor{UserID: f.UserID, OrganizationID: f.OrgID}
	rep := dbtest.SeedUser(t, pool, f.OrgID, "Marta Representative")

	for i := 0; i < 3; i++ {
		p := fixtureParams(f, StageFormal)
		p.FiledAt = time.Now().Add(time.Duration(i) * time.Minute)
		if i == 2 {
			p.Report.Grievors = []Grievor{{FirstName: "Grace", LastName: "Hopper"}}
			p.AssignedToID = &rep
		}
		_, err := engine.Create(ctx, actor, p)
		require.NoError(t, err)
	}

	lister := NewLister(pool, nil, 2, 10)

	page, err := lister.ListPage(ctx, actor, 1, 0, Filters{})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalCount)
	require.Len(t, page.Items, 2)
	newest := page.Items[0]
	require.Equal(t, "G-003", newest.Case.CaseNumber)
	require.Equal(t, "Marta Representative", *newest.AssigneeName)
	require.NotNil(t, newest.Creator)
	require.Equal(t, f.UserID, newest.Creator.UserID)
	require.NotNil(t, newest.CurrentStep)
	require.Equal(t, 1, newest.CurrentStep.StepNumber)
	require.False(t, newest.Overdue, "zero time limit is never overdue")

	second, err := lister.ListPage(ctx, actor, 2, 0, Filters{})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)

	byGrievor, err := lister.ListPage(ctx, actor, 1, 10, Filters{GrievorName: "grace hop"})
	require.NoError(t, err)
	require.Equal(t, 1, byGrievor.TotalCount)

	byAssignee, err := lister.ListPage(ctx, actor, 1, 10, Filters{AssigneeName: "marta"})
	require.NoError(t, err)
	require.Equal(t, 1, byAssignee.TotalCount)

	byStatus, err := lister.ListPage(ctx, actor, 1, 10, Filters{Status: "act"})
	require.NoError(t, err)
	require.Equal(t, 3, byStatus.TotalCount)

	none, err := lister.ListPage(ctx, actor, 1, 10, Filters{Status: "resolved"})
	require.NoError(t, err)
	require.Zero(t, none.TotalCount)
	require.Empty(t, none.Items)
}
