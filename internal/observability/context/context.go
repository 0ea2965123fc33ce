package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}

// WithRequestID stores the inbound request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithActor records who is performing the current mutation.
func WithActor(ctx context.Context, actor string) context.Context {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor or "system" when none is set.
func ActorFromContext(ctx context.Context) string {
	if ctx == nil {
		return "system"
	}
	if value, ok := ctx.Value(actorKey{}).(string); ok && value != "" {
		return value
	}
	return "system"
}
