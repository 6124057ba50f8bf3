package identity

import (
	"context"

	"caseflow/apperr"
)

// Actor is the (user, organization) pair asserted by the identity provider.
// The engine trusts it and performs no authentication of its own.
type Actor struct {
	UserID         string
	OrganizationID string
}

// Require fails with Unauthenticated when either half of the pair is missing.
func (a Actor) Require() error {
	if a.UserID == "" || a.OrganizationID == "" {
		return apperr.New(apperr.KindUnauthenticated, "sign in to continue")
	}
	return nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the actor stored by the transport middleware.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
