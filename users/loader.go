package users

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"

	"caseflow/apperr"
	"caseflow/db"
)

// Lister is the batch read a Loader needs.
type Lister interface {
	ListByIDs(ctx context.Context, q db.Querier, ids []string) ([]User, error)
}

// Loader coalesces per-row user lookups made while rendering one response
// into a single query. Build one per request.
type Loader struct {
	inner *dataloader.Loader[string, User]
}

func NewLoader(q db.Querier, repo Lister) *Loader {
	batch := func(ctx context.Context, ids []string) []*dataloader.Result[User] {
		found, err := repo.ListByIDs(ctx, q, ids)
		if err != nil {
			return failAll(len(ids), err)
		}
		byID := make(map[string]User, len(found))
		for _, u := range found {
			byID[u.ID] = u
		}
		results := make([]*dataloader.Result[User], 0, len(ids))
		for _, id := range ids {
			u, ok := byID[id]
			if !ok {
				results = append(results, &dataloader.Result[User]{Error: apperr.NotFound("user not found")})
				continue
			}
			results = append(results, &dataloader.Result[User]{Data: u})
		}
		return results
	}

	return &Loader{
		inner: dataloader.NewBatchedLoader(batch, dataloader.WithWait[string, User](time.Millisecond)),
	}
}

func (l *Loader) Load(ctx context.Context, id string) (User, error) {
	return l.inner.Load(ctx, id)()
}

// LoadMany returns one user per id. errs, when non-nil, is index-aligned
// with ids.
func (l *Loader) LoadMany(ctx context.Context, ids []string) ([]User, []error) {
	return l.inner.LoadMany(ctx, ids)()
}

func failAll(n int, err error) []*dataloader.Result[User] {
	out := make([]*dataloader.Result[User], n)
	for i := range out {
		out[i] = &dataloader.Result[User]{Error: err}
	}
	return out
}
