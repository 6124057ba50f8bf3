package steptemplate

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"caseflow/apperr"
)

// queuedQuerier answers QueryRow calls in order.
type queuedQuerier struct {
	rows  []pgx.Row
	sql   []string
	calls [][]any
}

func (q *queuedQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (q *queuedQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (q *queuedQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = append(q.sql, sql)
	q.calls = append(q.calls, args)
	row := q.rows[0]
	q.rows = q.rows[1:]
	return row
}

type templateRow struct {
	tpl Template
	err error
}

func (r templateRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.tpl.ID
	*(dest[1].(*string)) = r.tpl.AgreementID
	*(dest[2].(*string)) = r.tpl.Type
	*(dest[3].(*string)) = r.tpl.Stage
	*(dest[4].(*int)) = r.tpl.StepNumber
	*(dest[5].(*int)) = r.tpl.TimeLimitDays
	*(dest[6].(*bool)) = r.tpl.IsCalendarDays
	*(dest[7].(*[]string)) = r.tpl.RequiredParticipants
	*(dest[8].(*[]string)) = r.tpl.RequiredDocuments
	*(dest[9].(*string)) = r.tpl.Description
	return nil
}

type boolRow struct {
	v   bool
	err error
}

func (b boolRow) Scan(dest ...any) error {
	if b.err != nil {
		return b.err
	}
	*(dest[0].(*bool)) = b.v
	return nil
}

func quietResolver() *Resolver {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewResolver(log)
}

func TestResolve_DirectMatch(t *testing.T) {
	q := &queuedQuerier{rows: []pgx.Row{
		templateRow{tpl: Template{ID: "t1", Type: "INDIVIDUAL", Stage: "INFORMAL", StepNumber: 1, TimeLimitDays: 10}},
	}}
	tpl, err := quietResolver().Resolve(context.Background(), q, "agr", "INDIVIDUAL", "INFORMAL")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tpl.StepNumber != 1 || tpl.Stage != "INFORMAL" || tpl.FallbackFrom != "" {
		t.Fatalf("unexpected template %+v", tpl)
	}
	if len(q.calls) != 1 {
		t.Fatalf("expected a single query, got %d", len(q.calls))
	}
}

func TestResolve_FallbackReportsRequestedStage(t *testing.T) {
	q := &queuedQuerier{rows: []pgx.Row{
		templateRow{err: pgx.ErrNoRows},
		templateRow{tpl: Template{ID: "t2", Type: "INDIVIDUAL", Stage: "FORMAL", StepNumber: 2}},
	}}
	tpl, err := quietResolver().Resolve(context.Background(), q, "agr", "INDIVIDUAL", "INFORMAL")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tpl.StepNumber != 2 {
		t.Fatalf("expected step 2, got %d", tpl.StepNumber)
	}
	if tpl.Stage != "INFORMAL" {
		t.Fatalf("expected requested stage INFORMAL, got %s", tpl.Stage)
	}
	if tpl.FallbackFrom != "FORMAL" {
		t.Fatalf("expected fallback source FORMAL, got %q", tpl.FallbackFrom)
	}
}

func TestResolve_NoTemplatesIsConfigurationMissing(t *testing.T) {
	q := &queuedQuerier{rows: []pgx.Row{
		templateRow{err: pgx.ErrNoRows},
		templateRow{err: pgx.ErrNoRows},
	}}
	_, err := quietResolver().Resolve(context.Background(), q, "agr", "POLICY", "FORMAL")
	if !errors.Is(err, apperr.ErrConfigurationMissing) {
		t.Fatalf("expected configuration missing, got %v", err)
	}
}

func TestResolve_StoreErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	q := &queuedQuerier{rows: []pgx.Row{templateRow{err: boom}}}
	_, err := quietResolver().Resolve(context.Background(), q, "agr", "POLICY", "FORMAL")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal kind, got %s", apperr.KindOf(err))
	}
}

func TestNextExists_AsksForFollowingStepInAnyStage(t *testing.T) {
	q := &queuedQuerier{rows: []pgx.Row{boolRow{v: true}}}
	ok, err := quietResolver().NextExists(context.Background(), q, "agr", "GROUP", 2)
	if err != nil || !ok {
		t.Fatalf("expected true, got %v %v", ok, err)
	}
	if len(q.calls[0]) != 3 || q.calls[0][2] != 3 {
		t.Fatalf("expected (agreement, type, 3), got %v", q.calls[0])
	}
	if strings.Contains(q.sql[0], "stage") {
		t.Fatalf("next step lookup must not filter by stage: %s", q.sql[0])
	}
}

func TestNextExists_StoreError(t *testing.T) {
	boom := errors.New("boom")
	q := &queuedQuerier{rows: []pgx.Row{boolRow{err: boom}}}
	if _, err := quietResolver().NextExists(context.Background(), q, "agr", "GROUP", 2); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		row      templateRow
		wantKind apperr.Kind
		wantErr  error
		want     int
	}{
		{
			name: "found",
			row:  templateRow{tpl: Template{ID: "t2", Type: "INDIVIDUAL", Stage: "INFORMAL", StepNumber: 2, TimeLimitDays: 3}},
			want: 2,
		},
		{
			name:     "missing step is configuration missing",
			row:      templateRow{err: pgx.ErrNoRows},
			wantKind: apperr.KindConfigurationMissing,
			wantErr:  apperr.ErrConfigurationMissing,
		},
		{
			name:     "store error stays internal",
			row:      templateRow{err: boom},
			wantKind: apperr.KindInternal,
			wantErr:  boom,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &queuedQuerier{rows: []pgx.Row{tc.row}}
			tpl, err := quietResolver().Lookup(context.Background(), q, "agr", "INDIVIDUAL", "INFORMAL", 2)

			args := q.calls[0]
			if len(args) != 4 || args[2] != 2 || args[3] != "INFORMAL" {
				t.Fatalf("expected (agreement, type, step, stage), got %v", args)
			}
			if !strings.Contains(q.sql[0], "ORDER BY (stage = $4) DESC") {
				t.Fatalf("requested stage must be preferred: %s", q.sql[0])
			}
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if apperr.KindOf(err) != tc.wantKind {
					t.Fatalf("expected kind %s, got %s", tc.wantKind, apperr.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if tpl.StepNumber != tc.want || tpl.Stage != "INFORMAL" {
				t.Fatalf("unexpected template %+v", tpl)
			}
		})
	}
}
