package service

import "context"

type actorKey struct{}

// WithActor returns a context carrying the id of the user performing writes.
// It is recorded in history entries and versions.
func WithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor id of ctx, zero when none is set.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorKey{}).(int64)
	return id
}
