package shared

import "context"

// Actor identifies the authenticated user performing an operation.
// It is threaded explicitly through service calls; nothing in the
// domain layer reads it from ambient state.
type Actor struct {
	ID    int64
	Email string
	Name  string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context for the HTTP layer.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return
// is false when the request was not authenticated.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
