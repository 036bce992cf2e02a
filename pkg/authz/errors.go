// Package authz is the enforcement core: it orders tenant resolution, the
// entitlement gate, RBAC bypass rules, and the permission lookup into a
// single decision per request.
package authz

import (
	"errors"
	"fmt"
)

// Kind classifies why access was denied
type Kind string

const (
	// KindTenantContextMissing means no organization could be established
	// for the actor
	KindTenantContextMissing Kind = "tenant_context_missing"

	// KindCrossTenantAccess means the actor asked to read another tenant's
	// resources
	KindCrossTenantAccess Kind = "cross_tenant_access"

	// KindEntitlementDenied means the organization's subscription does not
	// include the module, or a lookup failure forced the gate closed
	KindEntitlementDenied Kind = "entitlement_denied"

	// KindPermissionDenied means the actor's role lacks the permission
	KindPermissionDenied Kind = "permission_denied"
)

// Error is a denied decision. Kind drives the caller-facing mapping; the
// message is safe to return to the actor.
type Error struct {
	Kind    Kind
	Module  string
	Action  string
	Message string

	// Err is the underlying cause, for logs only. It may reference
	// resources the actor must not learn about.
	Err error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("access denied (%s)", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error from err, if it is one
func AsError(err error) (*Error, bool) {
	var authzErr *Error
	if errors.As(err, &authzErr) {
		return authzErr, true
	}
	return nil, false
}

// IsDenied reports whether err is a denial of the given kind
func IsDenied(err error, kind Kind) bool {
	authzErr, ok := AsError(err)
	return ok && authzErr.Kind == kind
}

func denied(kind Kind, module, action, message string, cause error) *Error {
	return &Error{Kind: kind, Module: module, Action: action, Message: message, Err: cause}
}
