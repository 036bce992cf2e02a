// Package entitlement resolves whether an organization's subscription has a
// module or submodule enabled, merging plan defaults, organization-level
// overrides, trial windows, and the fixed always-on and RBAC-only exception
// sets.
package entitlement

import (
	"context"
	"fmt"
	"time"
)

// Status is the stored entitlement status for a module or submodule
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
	StatusTrial    Status = "trial"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusEnabled, StatusDisabled, StatusTrial:
		return true
	}
	return false
}

// Source identifies which layer of the precedence chain produced a resolution
type Source string

const (
	SourceAlwaysOn    Source = "always_on"
	SourceRBACOnly    Source = "rbac_only"
	SourceSubOverride Source = "submodule_override"
	SourceOverride    Source = "override"
	SourcePlan        Source = "plan"
	SourceLegacy      Source = "legacy_map"
	SourceNone        Source = "none"
)

// Resolution is the outcome of resolving one (org, module, submodule) key.
// It carries the raw stored status; whether the key is effectively enabled
// is a pure function of current time via EnabledAt, so a cached trial
// degrades to disabled at the exact expiry instant without a write.
type Resolution struct {
	Status         Status     `json:"status"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	Source         Source     `json:"source"`
	RBACOnly       bool       `json:"rbac_only,omitempty"`
}

// EnabledAt reports whether the resolution grants access at the given time.
// A trial counts as enabled strictly before its expiry.
func (r Resolution) EnabledAt(now time.Time) bool {
	switch r.Status {
	case StatusEnabled:
		return true
	case StatusTrial:
		return r.TrialExpiresAt != nil && now.Before(*r.TrialExpiresAt)
	}
	return false
}

// OrgEntitlement is an explicit organization-level status override for a
// module. Absence means fall back to the plan default, then the legacy map.
type OrgEntitlement struct {
	OrgID          int64      `json:"org_id"`
	Module         string     `json:"module"`
	Status         Status     `json:"status"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	Source         string     `json:"source"`
	UpdatedBy      *int64     `json:"updated_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// OrgSubentitlement is the same shape at submodule grain. Absence falls back
// to the parent module's resolution.
type OrgSubentitlement struct {
	OrgID          int64      `json:"org_id"`
	Module         string     `json:"module"`
	Submodule      string     `json:"submodule"`
	Status         Status     `json:"status"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
	Source         string     `json:"source"`
	UpdatedBy      *int64     `json:"updated_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Event is an immutable audit row for one entitlement status transition.
// Append-only: events are never mutated or deleted, and are exempt from
// audit retention.
type Event struct {
	ID        string    `json:"id"`
	OrgID     int64     `json:"org_id"`
	Module    string    `json:"module"`
	Submodule string    `json:"submodule,omitempty"`
	OldStatus Status    `json:"old_status,omitempty"`
	NewStatus Status    `json:"new_status,omitempty"`
	Source    string    `json:"source"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ModuleView is one row of the merged effective-entitlement listing for an
// organization: the resolved status plus which layer produced it.
type ModuleView struct {
	Module     string     `json:"module"`
	Status     Status     `json:"status"`
	Enabled    bool       `json:"enabled"`
	Source     Source     `json:"source"`
	TrialEnds  *time.Time `json:"trial_expires_at,omitempty"`
}

// Store persists organization entitlement rows and their change events.
// This is the only state the authorization core owns.
type Store interface {
	// GetOrgEntitlement returns the override row for (org, module), or
	// (nil, nil) when absent.
	GetOrgEntitlement(ctx context.Context, orgID int64, module string) (*OrgEntitlement, error)

	// GetOrgSubentitlement returns the override row for (org, module,
	// submodule), or (nil, nil) when absent.
	GetOrgSubentitlement(ctx context.Context, orgID int64, module, submodule string) (*OrgSubentitlement, error)

	// ListOrgEntitlements returns all module-level override rows for an org
	ListOrgEntitlements(ctx context.Context, orgID int64) ([]OrgEntitlement, error)

	// UpsertOrgEntitlement creates or replaces a module-level override
	UpsertOrgEntitlement(ctx context.Context, ent *OrgEntitlement) error

	// DeleteOrgEntitlement removes a module-level override
	DeleteOrgEntitlement(ctx context.Context, orgID int64, module string) error

	// UpsertOrgSubentitlement creates or replaces a submodule-level override
	UpsertOrgSubentitlement(ctx context.Context, ent *OrgSubentitlement) error

	// DeleteOrgSubentitlement removes a submodule-level override
	DeleteOrgSubentitlement(ctx context.Context, orgID int64, module, submodule string) error

	// AppendEvent appends an immutable change event
	AppendEvent(ctx context.Context, event *Event) error

	// ListEvents returns change events for an org, newest first
	ListEvents(ctx context.Context, orgID int64, limit, offset int) ([]Event, error)
}

// CacheKey identifies one cached resolution
type CacheKey struct {
	OrgID     int64
	Module    string
	Submodule string
}

// String renders the cache key in the canonical wire form
func (k CacheKey) String() string {
	if k.Submodule == "" {
		return fmt.Sprintf("entitlement:%d:%s", k.OrgID, k.Module)
	}
	return fmt.Sprintf("entitlement:%d:%s:%s", k.OrgID, k.Module, k.Submodule)
}

// Cache is the injected read-mostly cache over resolver results. Get and Set
// must be safe for concurrent use; InvalidateOrg must be atomic per key and
// immediately visible to subsequent reads on any goroutine.
type Cache interface {
	Get(ctx context.Context, key CacheKey) (Resolution, bool)
	Set(ctx context.Context, key CacheKey, res Resolution)
	InvalidateOrg(ctx context.Context, orgID int64) error
	Close() error
}
