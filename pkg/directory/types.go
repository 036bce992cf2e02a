// Package directory holds the user and organization records the authorization
// core consumes. Users are provisioned by an upstream authentication layer;
// this package only reads them.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/nextsuite/authcore/pkg/rbac"
)

// ErrNotFound is returned when a user or organization does not exist
var ErrNotFound = errors.New("directory: not found")

// User represents a user or service account resolved by the upstream
// authentication step. OrganizationID is nil only for platform-level
// accounts and is immutable after creation.
type User struct {
	ID             int64      `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Role           rbac.Role  `json:"role"`
	OrganizationID *int64     `json:"organization_id,omitempty"`
	IsSuperAdmin   bool       `json:"is_super_admin"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
}

// GetRole implements rbac.Subject
func (u *User) GetRole() rbac.Role { return u.Role }

// SuperAdmin implements rbac.Subject
func (u *User) SuperAdmin() bool { return u.IsSuperAdmin }

// Platform reports whether the user is a platform-level account that may
// operate across organizations (super admin, or no home organization).
func (u *User) Platform() bool {
	return u.IsSuperAdmin || u.OrganizationID == nil
}

// Organization is the unit of tenant isolation. EnabledModules is the legacy
// denormalized module map kept as a migration bridge; it is consulted only
// when no structured entitlement rows exist for a module.
type Organization struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	PlanKey        string         `json:"plan_key,omitempty"`
	StateCode      string         `json:"state_code,omitempty"`
	EnabledModules map[string]any `json:"enabled_modules,omitempty"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// UserDirectory resolves user records. Supplied by the authentication layer.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*User, error)
}

// OrgDirectory resolves organization records, including the plan reference
// and the legacy module map the entitlement resolver falls back to.
type OrgDirectory interface {
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
}
