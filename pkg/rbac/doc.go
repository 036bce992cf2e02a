// Package rbac encodes the role hierarchy and permission index for the
// authorization core.
//
// # Roles
//
// Roles form a closed enumeration with a strict numeric level order:
//
//	viewer(10) < member(20) < manager(30) < org_admin(40) < super_admin(100)
//
// The level order exists for exactly one purpose: deciding whether one role
// may manage a user holding another role (CanManage, strictly greater).
// It is never consulted for resource access; feature access always goes
// through entitlements and the permission index.
//
// # Bypasses
//
// Two bypasses skip the permission lookup, never the entitlement gate:
//
//   - platform super admins bypass RBAC everywhere, including RBAC-only modules
//   - org admins bypass RBAC within their own organization
//
// # Permissions
//
// The canonical permission name for a (module, action) pair is
// "{module}_{action}" unless the override table carries a historical
// exception. A grant of "{module}.*" satisfies every action on that module.
//
//	idx := rbac.NewIndex(rbac.BuiltinGrants(), rbac.LegacyOverrides())
//	idx.Has(rbac.RoleMember, "crm", "read")
//
// # Related Packages
//
//   - pkg/authz: the orchestrator that consults this package after the
//     entitlement gate passes
//   - pkg/directory: the User record carrying the role
package rbac
