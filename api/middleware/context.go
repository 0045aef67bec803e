package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

type actorKey struct{}

// Actor is the authenticated caller. VendorID is set only for vendor tokens.
type Actor struct {
	Subject  string
	Role     enums.ActorRole
	VendorID uuid.UUID
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// SubjectFromContext returns the token subject, e.g. "telegram-bot".
func SubjectFromContext(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.Subject
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	actor, _ := ActorFromContext(ctx)
	return actor.Role
}

// WithActor injects the caller identity; used by Auth and by tests that skip token parsing.
func WithActor(ctx context.Context, subject string, role enums.ActorRole) context.Context {
	return WithActorIdentity(ctx, Actor{Subject: subject, Role: role})
}

func WithActorIdentity(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}
