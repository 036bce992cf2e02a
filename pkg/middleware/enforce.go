package middleware

import (
	"net/http"
	"strconv"

	"github.com/nextsuite/authcore/pkg/authz"
	"github.com/nextsuite/authcore/pkg/httputil"
)

// Error codes distinguishing the two 403 families
const (
	CodeFeatureNotAvailable = "feature_not_available"
	CodePermissionDenied    = "permission_denied"
)

// RequireAccess gates a route on a module/action pair. The requested
// organization is taken from the X-Org-ID header; non-GET methods enforce
// with write intent so mismatched ids are corrected rather than rejected.
func RequireAccess(enforcer authz.Evaluator, module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := ActorFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "missing actor identity")
				return
			}

			var orgID int64
			if raw := r.Header.Get("X-Org-ID"); raw != "" {
				parsed, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					httputil.WriteBadRequest(w, "invalid organization id")
					return
				}
				orgID = parsed
			}

			var opts []authz.Option
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				opts = append(opts, authz.WithWriteIntent())
			}

			decision, err := enforcer.Enforce(r.Context(), user, orgID, module, action, opts...)
			if err != nil {
				WriteAuthzError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(authz.WithDecision(r.Context(), decision)))
		})
	}
}

// WriteAuthzError maps a denial to its HTTP response. Cross-tenant reads
// answer 404 so resource existence in other tenants stays hidden; the two
// 403 families carry distinct codes.
func WriteAuthzError(w http.ResponseWriter, err error) {
	authzErr, ok := authz.AsError(err)
	if !ok {
		httputil.WriteInternalError(w, err)
		return
	}

	switch authzErr.Kind {
	case authz.KindTenantContextMissing:
		httputil.WriteBadRequest(w, authzErr.Message)
	case authz.KindCrossTenantAccess:
		httputil.WriteNotFound(w, "not found")
	case authz.KindEntitlementDenied:
		httputil.WriteCodedError(w, http.StatusForbidden, CodeFeatureNotAvailable, authzErr.Message)
	case authz.KindPermissionDenied:
		httputil.WriteCodedError(w, http.StatusForbidden, CodePermissionDenied, authzErr.Message)
	default:
		httputil.WriteForbidden(w, "access denied")
	}
}
