package rbac

// Role represents a user's role within an organization
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleMember     Role = "member"
	RoleManager    Role = "manager"
	RoleOrgAdmin   Role = "org_admin"
	RoleSuperAdmin Role = "super_admin"
)

// roleLevels is the total order over the role enumeration. Levels are used
// only by CanManage, never for feature access.
var roleLevels = map[Role]int{
	RoleViewer:     10,
	RoleMember:     20,
	RoleManager:    30,
	RoleOrgAdmin:   40,
	RoleSuperAdmin: 100,
}

// AllRoles returns the closed role enumeration in ascending level order
func AllRoles() []Role {
	return []Role{RoleViewer, RoleMember, RoleManager, RoleOrgAdmin, RoleSuperAdmin}
}

// Valid reports whether r is part of the closed enumeration
func (r Role) Valid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the numeric level of the role, 0 for unknown roles
func (r Role) Level() int {
	return roleLevels[r]
}

// CanManage reports whether a user with actorRole may manage a user with
// targetRole. Strictly greater: a role can never manage an equal or higher
// role, which rules out lateral and upward privilege changes. Unknown roles
// never manage and are never managed.
func CanManage(actorRole, targetRole Role) bool {
	if !actorRole.Valid() || !targetRole.Valid() {
		return false
	}
	return actorRole.Level() > targetRole.Level()
}

// Subject is the minimal view of a user the role authority needs. It is
// satisfied by directory.User.
type Subject interface {
	GetRole() Role
	SuperAdmin() bool
}

// BypassKind identifies which rule short-circuited the permission lookup
type BypassKind string

const (
	BypassNone       BypassKind = ""
	BypassSuperAdmin BypassKind = "super_admin"
	BypassOrgAdmin   BypassKind = "org_admin"
)

// BypassesRBAC reports whether the subject skips the permission lookup and
// which rule applied. Neither bypass touches entitlement evaluation: a
// disabled module stays disabled for a super admin too.
func BypassesRBAC(s Subject) (BypassKind, bool) {
	if s.SuperAdmin() || s.GetRole() == RoleSuperAdmin {
		return BypassSuperAdmin, true
	}
	if s.GetRole() == RoleOrgAdmin {
		return BypassOrgAdmin, true
	}
	return BypassNone, false
}
