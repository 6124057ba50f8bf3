package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Harness owns the database for one suite run.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

var ErrNoDatabase = errors.New("infra: no database available (set " + DSNEnv + " or DATABASE_URL, or start docker)")

// NewHarness reuses a configured database in an isolated schema or boots a
// container. It returns ErrNoDatabase when neither is possible.
func NewHarness(ctx context.Context, overrideDSN string, maxConns int32, opts ...PoolOption) (*Harness, error) {
	configured := overrideDSN != "" || os.Getenv(DSNEnv) != "" || os.Getenv("DATABASE_URL") != ""
	if !configured && !DockerAvailable(ctx) {
		return nil, ErrNoDatabase
	}

	container, dsn, shared, err := StartPostgres16(ctx, overrideDSN)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	pool, teardown, err := OpenIsolated(ctx, dsn, shared, maxConns, opts...)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &Harness{container: container, pool: pool, dsn: dsn, teardown: teardown}, nil
}

// Start is NewHarness for tests: it skips when no database is available and
// registers cleanup.
func Start(t testing.TB, overrideDSN string, maxConns int32, opts ...PoolOption) *Harness {
	t.Helper()
	h, err := NewHarness(context.Background(), overrideDSN, maxConns, opts...)
	if errors.Is(err, ErrNoDatabase) {
		t.Skip(err.Error())
	}
	if err != nil {
		t.Fatalf("harness: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

func (h *Harness) DSN() string {
	return h.dsn
}

func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}
