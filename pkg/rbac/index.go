package rbac

import (
	"strings"
)

// moduleAction keys the override table
type moduleAction struct {
	Module string
	Action string
}

// Index maps (module, action) pairs to canonical permission names and checks
// a role's effective permission set, including wildcard grants.
type Index struct {
	// grants holds the effective permission set per role, exact names and
	// wildcard forms ("crm.*") mixed.
	grants map[Role]map[string]struct{}

	// overrides carries historical naming exceptions where the canonical
	// "{module}_{action}" derivation does not hold.
	overrides map[moduleAction]string
}

// NewIndex builds a permission index from per-role grant lists and an
// override table. Both maps are copied; the index is immutable afterwards
// and safe for concurrent use.
func NewIndex(grants map[Role][]string, overrides map[ModuleAction]string) *Index {
	idx := &Index{
		grants:    make(map[Role]map[string]struct{}, len(grants)),
		overrides: make(map[moduleAction]string, len(overrides)),
	}
	for role, perms := range grants {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		idx.grants[role] = set
	}
	for ma, name := range overrides {
		idx.overrides[moduleAction{Module: ma.Module, Action: ma.Action}] = name
	}
	return idx
}

// ModuleAction identifies a (module, action) pair in the override table
type ModuleAction struct {
	Module string
	Action string
}

// CanonicalPermission computes the permission name for a (module, action)
// pair: the override table entry when present, otherwise "{module}_{action}".
func (idx *Index) CanonicalPermission(module, action string) string {
	if name, ok := idx.overrides[moduleAction{Module: module, Action: action}]; ok {
		return name
	}
	return module + "_" + action
}

// Has reports whether the role's effective permission set satisfies the
// requested (module, action). Exact-name lookup and wildcard lookup are both
// evaluated: a granted "{module}.*" satisfies any action on that module.
func (idx *Index) Has(role Role, module, action string) bool {
	set, ok := idx.grants[role]
	if !ok {
		return false
	}

	if _, ok := set[idx.CanonicalPermission(module, action)]; ok {
		return true
	}

	// Wildcard grant for the whole module.
	if _, ok := set[module+".*"]; ok {
		return true
	}

	return false
}

// Grants returns a copy of the role's effective permission set, for admin
// and debugging surfaces.
func (idx *Index) Grants(role Role) []string {
	set, ok := idx.grants[role]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// MatchesWildcard reports whether a granted permission name is a wildcard
// grant covering the given canonical permission. Exposed so front-end-facing
// checks evaluate wildcards identically to this index and policy cannot
// drift between the two.
func MatchesWildcard(granted, requested string) bool {
	prefix, ok := strings.CutSuffix(granted, ".*")
	if !ok {
		return false
	}
	return strings.HasPrefix(requested, prefix+"_") || strings.HasPrefix(requested, prefix+".")
}

// BuiltinGrants returns the default per-role grant lists. Module keys follow
// the catalog; org admins and super admins rarely reach the index because of
// the bypass rules, but carry full wildcard sets for the paths that do not
// bypass (secondary evaluators).
func BuiltinGrants() map[Role][]string {
	return map[Role][]string{
		RoleViewer: {
			"dashboard_view",
			"crm_read",
			"inventory_read",
			"billing_read",
			"reports_read",
		},
		RoleMember: {
			"dashboard_view",
			"crm_read", "crm_write",
			"inventory_read", "inventory_write",
			"billing_read", "billing_write",
			"reports_read",
			"service_read", "service_write",
		},
		RoleManager: {
			"dashboard_view",
			"crm.*",
			"inventory.*",
			"billing.*",
			"reports.*",
			"service.*",
			"payroll_read",
			"users_read",
		},
		RoleOrgAdmin: {
			"dashboard.*",
			"crm.*",
			"inventory.*",
			"billing.*",
			"reports.*",
			"service.*",
			"payroll.*",
			"users.*",
			"settings.*",
		},
		RoleSuperAdmin: {
			"dashboard.*",
			"crm.*",
			"inventory.*",
			"billing.*",
			"reports.*",
			"service.*",
			"payroll.*",
			"users.*",
			"settings.*",
			"platform.*",
		},
	}
}

// LegacyOverrides returns the historical naming exceptions carried over from
// the pre-consolidation permission tables.
func LegacyOverrides() map[ModuleAction]string {
	return map[ModuleAction]string{
		{Module: "dashboard", Action: "read"}:  "dashboard_view",
		{Module: "reports", Action: "export"}:  "reports_download",
		{Module: "billing", Action: "approve"}: "billing_authorize",
	}
}
