package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rpggio/fabtrack/internal/domain/access"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type actorKey struct{}

// ActorResolver resolves the calling actor from a bearer token.
type ActorResolver interface {
	ResolveActor(ctx context.Context, token string) (access.Actor, error)
}

// StaticKeys resolves tokens from a fixed table.
type StaticKeys map[string]access.Actor

// ResolveActor implements ActorResolver.
func (k StaticKeys) ResolveActor(_ context.Context, token string) (access.Actor, error) {
	actor, ok := k[token]
	if !ok {
		return access.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor access.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor from context, if present.
func ActorFromContext(ctx context.Context) (access.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(access.Actor)
	return actor, ok
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			actor, err := resolver.ResolveActor(r.Context(), token)
			if err != nil || actor.ID == "" {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// FixedActorMiddleware attaches actor to every request. Used when auth is disabled.
func FixedActorMiddleware(actor access.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
