package actorcontext

import (
	"context"

	"github.com/smallbiznis/freightpay/internal/authorization"
)

// Actor is the identity a request acts as.
type Actor struct {
	UID   string
	Role  authorization.Role
	Email string
}

type actorKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext returns the actor from context, if set.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.UID == "" {
		return Actor{}, false
	}
	return actor, true
}
