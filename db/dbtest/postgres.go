package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"caseflow/migrations"
)

// Open connects to DATABASE_URL and applies migrations. The test is skipped
// when DATABASE_URL is empty.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := migrations.Up(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return pool
}

// Fixture is a fresh organization with one member, one bargaining unit and
// one agreement.
type Fixture struct {
	OrgID       string
	UserID      string
	UnitID      string
	AgreementID string
}

func Seed(t testing.TB, pool *pgxpool.Pool) Fixture {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	var f Fixture
	if err := pool.QueryRow(ctx, `INSERT INTO organizations (name) VALUES ($1) RETURNING id`, "Local "+suffix).Scan(&f.OrgID); err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	f.UserID = SeedUser(t, pool, f.OrgID, "Rosa Steward "+suffix)
	if err := pool.QueryRow(ctx, `INSERT INTO bargaining_units (organization_id, name) VALUES ($1, $2) RETURNING id`,
		f.OrgID, "Unit "+suffix).Scan(&f.UnitID); err != nil {
		t.Fatalf("seed unit: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO agreements (organization_id, bargaining_unit_id, name) VALUES ($1, $2, $3) RETURNING id`,
		f.OrgID, f.UnitID, "Agreement "+suffix).Scan(&f.AgreementID); err != nil {
		t.Fatalf("seed agreement: %v", err)
	}
	return f
}

func SeedUser(t testing.TB, pool *pgxpool.Pool, orgID, fullName string) string {
	t.Helper()
	var id string
	email := uuid.NewString() + "@example.com"
	if err := pool.QueryRow(context.Background(),
		`INSERT INTO users (organization_id, full_name, email) VALUES ($1, $2, $3) RETURNING id`,
		orgID, fullName, email).Scan(&id); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func SeedTemplate(t testing.TB, pool *pgxpool.Pool, agreementID, caseType, stage string, step, limitDays int, calendar bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO step_templates (agreement_id, type, stage, step_number, time_limit_days, is_calendar_days, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agreementID, caseType, stage, step, limitDays, calendar, "step")
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
}
