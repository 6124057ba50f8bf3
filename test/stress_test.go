package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"caseflow/complaint"
	"caseflow/db/dbtest"
	"caseflow/grievance"
	"caseflow/identity"
	"caseflow/sequence"
	"caseflow/test/actors"
	"caseflow/test/chaos"
	"caseflow/test/infra"
	"caseflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors per role")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos       = flag.Bool("chaos", true, "terminate random backends while actors run")
)

func TestAllocateNext_Contiguous(t *testing.T) {
	h := infra.Start(t, *flDSN, 32)
	pool := h.Pool()
	f := dbtest.Seed(t, pool)
	alloc := sequence.NewAllocator(pool)

	const callers = 50
	got := make([]int64, callers)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			n, err := alloc.AllocateNext(ctx, f.OrgID, sequence.KindComplaint)
			got[i] = n
			return err
		})
	}
	require.NoError(t, g.Wait())

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, n := range got {
		require.EqualValues(t, i+1, n, "allocations must form 1..%d with no gaps or repeats", callers)
	}

	// The other counter is untouched.
	n, err := alloc.AllocateNext(context.Background(), f.OrgID, sequence.KindGrievance)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestEngineUnderContention(t *testing.T) {
	if testing.Short() {
		t.Skip("stress run skipped in -short mode")
	}
	seed := *flSeed
	h := infra.Start(t, *flDSN, int32(4**flConcurrency+4))
	pool := h.Pool()

	world := mustSeed(t, pool, seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Filer(gctx, world, stop) })
		g.Go(func() error { return actors.Stepper(gctx, world, stop) })
		g.Go(func() error { return actors.Resolver(gctx, world, stop) })
		g.Go(func() error { return actors.Elevator(gctx, world, stop) })
	}
	g.Go(func() error { return actors.Deleter(gctx, world, stop) })

	killer := chaos.NewKiller(pool, infra.ApplicationName, 2*time.Second, seed)
	if *flChaos {
		go killer.Run(gctx, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	stopped := false
	halt := func() {
		if !stopped {
			close(stop)
			stopped = true
		}
	}
	defer halt()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-gctx.Done():
			break loop
		case <-ticker.C:
			if !checkOracles(t, gctx, pool, seed) {
				halt()
				_ = g.Wait()
				return
			}
		}
	}

	halt()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("actor failed: %v (seed=%d)", err, seed)
	}
	// Final pass once everything has settled.
	if !checkOracles(t, context.Background(), pool, seed) {
		return
	}

	var grieved int64
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM complaints WHERE organization_id = $1 AND case_id IS NOT NULL`,
		world.Actor.OrganizationID).Scan(&grieved))
	// A commit can land after chaos cut the connection, so the database may
	// know of more elevations than the actors saw.
	require.GreaterOrEqual(t, grieved, world.Elevated.Load())
	require.LessOrEqual(t, grieved, int64(len(world.Complaints)))

	t.Logf("seed=%d created=%d advanced=%d elevated=%d tolerated=%d killed=%d",
		seed, world.Created.Load(), world.Advanced.Load(), world.Elevated.Load(), world.Tolerated.Load(), killer.Killed())
}

// checkOracles reports false after failing the test. Connection losses from
// chaos are retried on the next tick.
func checkOracles(t *testing.T, ctx context.Context, pool *pgxpool.Pool, seed int64) bool {
	t.Helper()
	name, row, err := oracles.Run(ctx, pool)
	switch {
	case err != nil && (chaos.ConnectionLost(err) || ctx.Err() != nil):
		return true
	case err != nil:
		t.Errorf("oracle error: %v (seed=%d)", err, seed)
		return false
	case name != "":
		dumpRecent(t, pool)
		t.Errorf("oracle %s failed, first row: %s (seed=%d)", name, row, seed)
		return false
	}
	return true
}

func TestOracles_DeletedElevatedCase(t *testing.T) {
	h := infra.Start(t, *flDSN, 4)
	pool := h.Pool()
	ctx := context.Background()
	w := mustSeed(t, pool, *flSeed)

	res, err := w.Elevator.Convert(ctx, w.Actor, w.Complaints[0])
	require.NoError(t, err)
	require.True(t, res.IsNew)
	require.NoError(t, w.Engine.Delete(ctx, w.Actor, res.CaseID))

	var status string
	var caseID *string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status, case_id FROM complaints WHERE id = $1`, w.Complaints[0]).Scan(&status, &caseID))
	require.Equal(t, "GRIEVED", status)
	require.Nil(t, caseID)

	name, row, err := oracles.Run(ctx, pool)
	require.NoError(t, err)
	require.Empty(t, name, "oracle failed, first row: %s", row)

	second, err := w.Elevator.Convert(ctx, w.Actor, w.Complaints[1])
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE complaints SET status = 'OPEN' WHERE id = $1`, w.Complaints[1])
	require.NoError(t, err)
	name, _, err = oracles.Run(ctx, pool)
	require.NoError(t, err)
	require.Equal(t, "linked_complaint_is_grieved", name, "a linked open complaint for case %s must be caught", second.CaseID)
}

func mustSeed(t *testing.T, pool *pgxpool.Pool, seed int64) *actors.World {
	t.Helper()
	ctx := context.Background()
	f := dbtest.Seed(t, pool)
	for step := 1; step <= 3; step++ {
		dbtest.SeedTemplate(t, pool, f.AgreementID, "INDIVIDUAL", "FORMAL", step, 5*step, step%2 == 0)
	}
	logger, _ := test.NewNullLogger()

	w := actors.NewWorld(seed)
	w.Engine = grievance.NewEngine(pool, grievance.Deps{Log: logger})
	w.Elevator = complaint.NewCoordinator(pool, nil, w.Engine, nil, nil, logger)
	w.Actor = identity.Actor{UserID: f.UserID, OrganizationID: f.OrgID}
	w.UnitID = f.UnitID
	w.AgreementID = f.AgreementID

	svc := complaint.NewService(pool, nil, nil)
	for i := 0; i < 10; i++ {
		c, err := svc.Create(ctx, w.Actor, complaint.CreateParams{
			BargainingUnitID: f.UnitID,
			AgreementID:      &f.AgreementID,
			Complainant:      grievance.Grievor{FirstName: "Complainant", LastName: fmt.Sprint(i)},
			Statement:        "overtime bypassed",
		})
		require.NoError(t, err)
		w.Complaints = append(w.Complaints, c.ID)
	}
	return w
}

func dumpRecent(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()
	dumps := []struct {
		name string
		sql  string
	}{
		{"cases", `SELECT id, case_number, status, current_step_number, updated_at FROM cases ORDER BY updated_at DESC LIMIT 20`},
		{"case_steps", `SELECT case_id, step_number, status, completed_date FROM case_steps ORDER BY updated_at DESC LIMIT 20`},
		{"case_events", `SELECT case_id, event_type, previous_value, new_value, created_at FROM case_events ORDER BY created_at DESC LIMIT 20`},
		{"complaints", `SELECT id, complaint_number, status, case_id FROM complaints ORDER BY updated_at DESC LIMIT 20`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", cols[i].Name, vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
