// Package tenant resolves and carries the organization a request operates as.
// It is the single source of truth for "which tenant am I operating as": a
// pure function of the user and the requested organization id, plus a
// request-scoped Scope value discarded when the operation ends. The scope is
// always passed by argument, never held in a process-wide global.
package tenant

import (
	"context"
	"errors"

	"github.com/nextsuite/authcore/pkg/directory"
)

// Intent distinguishes reads from writes for cross-tenant handling: a read
// against another tenant must look like a missing resource, a write is
// silently corrected to the caller's own organization.
type Intent int

const (
	IntentRead Intent = iota
	IntentWrite
)

var (
	// ErrNoTenant means no organization id could be resolved: a platform
	// operator omitted the explicit id.
	ErrNoTenant = errors.New("tenant: no organization context")

	// ErrCrossTenant means a non-platform caller addressed another tenant's
	// data on a read path. Callers must surface this as not-found, never
	// forbidden.
	ErrCrossTenant = errors.New("tenant: cross-tenant access")
)

// Scope is the resolved tenant context for one operation. Corrected reports
// whether the requested organization differed from the resolved one and was
// silently replaced (write paths only).
type Scope struct {
	OrgID     int64
	User      *directory.User
	Platform  bool
	Corrected bool
}

// Resolve computes the organization an operation runs against.
//
// Platform accounts (super admin, or no home organization) operate against
// any explicitly supplied organization; omitting the id is a hard failure.
// Everyone else always operates against their own organization: a different
// requested id is corrected for writes and rejected as ErrCrossTenant for
// reads, so resource existence in other tenants is never disclosed.
func Resolve(user *directory.User, requestedOrgID int64, intent Intent) (Scope, error) {
	if user == nil {
		return Scope{}, ErrNoTenant
	}

	if user.Platform() {
		if requestedOrgID == 0 {
			return Scope{}, ErrNoTenant
		}
		return Scope{OrgID: requestedOrgID, User: user, Platform: true}, nil
	}

	own := *user.OrganizationID
	if requestedOrgID == 0 || requestedOrgID == own {
		return Scope{OrgID: own, User: user}, nil
	}

	if intent == IntentWrite {
		return Scope{OrgID: own, User: user, Corrected: true}, nil
	}
	return Scope{}, ErrCrossTenant
}

// scopeKey carries a Scope through a request context
type scopeKey struct{}

// NewContext returns a context carrying the resolved scope for the remainder
// of the operation.
func NewContext(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext retrieves the resolved scope, if any
func FromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeKey{}).(Scope)
	return scope, ok
}
