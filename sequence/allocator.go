// Package sequence allocates per-organization, human-facing case and
// complaint numbers.
package sequence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/apperr"
	"caseflow/db"
)

type Kind int

const (
	KindGrievance Kind = iota + 1
	KindComplaint
)

func (k Kind) String() string {
	switch k {
	case KindGrievance:
		return "grievance"
	case KindComplaint:
		return "complaint"
	default:
		return "unknown"
	}
}

// ParseKind accepts the lower-case names used on the wire.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "grievance", "case":
		return KindGrievance, nil
	case "complaint":
		return KindComplaint, nil
	default:
		return 0, apperr.Newf(apperr.KindValidation, "unknown sequence kind %q", s)
	}
}

// column maps a closed kind to its counter column. Callers never supply
// column names.
func (k Kind) column() (string, error) {
	switch k {
	case KindGrievance:
		return "grievance_seq", nil
	case KindComplaint:
		return "complaint_seq", nil
	default:
		return "", fmt.Errorf("sequence: unsupported kind %d", int(k))
	}
}

// Allocator hands out strictly increasing numbers per (organization, kind).
// The increment is a single upsert so the counter row lock serializes
// concurrent callers.
type Allocator struct {
	pool db.TxBeginner
}

func NewAllocator(pool db.TxBeginner) *Allocator {
	return &Allocator{pool: pool}
}

// AllocateNext runs the increment in its own transaction.
func (a *Allocator) AllocateNext(ctx context.Context, orgID string, kind Kind) (int64, error) {
	return db.InTxResult(ctx, a.pool, func(tx pgx.Tx) (int64, error) {
		return a.AllocateNextTx(ctx, tx, orgID, kind)
	})
}

// AllocateNextTx increments inside the caller's transaction. The value is
// only durable once that transaction commits.
func (a *Allocator) AllocateNextTx(ctx context.Context, q db.Querier, orgID string, kind Kind) (int64, error) {
	if orgID == "" {
		return 0, apperr.New(apperr.KindUnauthenticated, "organization required")
	}
	col, err := kind.column()
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		INSERT INTO sequence_counters (organization_id, %[1]s)
		VALUES ($1, 1)
		ON CONFLICT (organization_id) DO UPDATE
		SET %[1]s = sequence_counters.%[1]s + 1,
		    updated_at = now()
		RETURNING %[1]s
	`, col)

	var next int64
	if err := q.QueryRow(ctx, query, orgID).Scan(&next); err != nil {
		return 0, apperr.FromStore(fmt.Errorf("sequence: allocate %s: %w", kind, err), "number allocation contended, try again")
	}
	return next, nil
}
