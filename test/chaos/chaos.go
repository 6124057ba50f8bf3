// Package chaos injects connection failures while actors run.
package chaos

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Killer terminates a random backend tagged with appName every so often.
// The engine must leave no partial writes behind when its connection dies
// mid-transaction.
type Killer struct {
	pool    *pgxpool.Pool
	appName string
	every   time.Duration
	rng     *rand.Rand

	killed atomic.Int64
}

func NewKiller(pool *pgxpool.Pool, appName string, every time.Duration, seed int64) *Killer {
	if every <= 0 {
		every = 2 * time.Second
	}
	return &Killer{pool: pool, appName: appName, every: every, rng: rand.New(rand.NewSource(seed))}
}

// Killed reports how many backends were terminated.
func (k *Killer) Killed() int64 {
	return k.killed.Load()
}

// Run blocks until ctx is done or stop closes.
func (k *Killer) Run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(k.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if k.rng.Intn(5) != 0 {
				continue
			}
			var n int64
			err := k.pool.QueryRow(ctx, `
				SELECT count(*) FROM (
					SELECT pg_terminate_backend(pid) FROM pg_stat_activity
					WHERE datname = current_database()
					  AND application_name = $1
					  AND pid <> pg_backend_pid()
					  AND state IN ('active', 'idle in transaction')
					ORDER BY random() LIMIT 1
				) t`, k.appName).Scan(&n)
			if err == nil {
				k.killed.Add(n)
			}
		}
	}
}

// ConnectionLost reports whether err is what a terminated backend looks like
// to the caller: an admin shutdown, a connection exception, or a transport
// error with no server response.
func ConnectionLost(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "57P01" || strings.HasPrefix(pgErr.Code, "08")
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err) || isClosedConn(err)
}

func isClosedConn(err error) bool {
	msg := err.Error()
	for _, s := range []string{"conn closed", "unexpected eof", "connection reset", "broken pipe"} {
		if strings.Contains(strings.ToLower(msg), s) {
			return true
		}
	}
	return false
}
