package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nextsuite/authcore/pkg/directory"
	"github.com/nextsuite/authcore/pkg/httputil"
	"github.com/nextsuite/authcore/pkg/observability"
)

type actorKey struct{}

// ActorFromContext returns the resolved actor for the request, if any
func ActorFromContext(ctx context.Context) (*directory.User, bool) {
	user, ok := ctx.Value(actorKey{}).(*directory.User)
	return user, ok
}

// WithActor returns a context carrying the actor, for tests and internal
// callers
func WithActor(ctx context.Context, user *directory.User) context.Context {
	return context.WithValue(ctx, actorKey{}, user)
}

// ActorMiddleware resolves the authenticated principal from the
// X-Actor-ID header set by the fronting gateway. Inactive accounts are
// rejected the same way as unknown ones.
func ActorMiddleware(users directory.UserDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-Actor-ID")
			if raw == "" {
				httputil.WriteUnauthorized(w, "missing actor identity")
				return
			}

			actorID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				httputil.WriteUnauthorized(w, "invalid actor identity")
				return
			}

			user, err := users.GetUser(r.Context(), actorID)
			if err != nil {
				if errors.Is(err, directory.ErrNotFound) {
					httputil.WriteUnauthorized(w, "unknown actor")
					return
				}
				httputil.WriteInternalError(w, errors.New("failed to resolve actor"))
				return
			}
			if !user.IsActive {
				httputil.WriteUnauthorized(w, "unknown actor")
				return
			}

			ctx := WithActor(r.Context(), user)
			ctx = observability.WithActorID(ctx, user.ID)
			if user.OrganizationID != nil {
				ctx = observability.WithOrgID(ctx, *user.OrganizationID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
