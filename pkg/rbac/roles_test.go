package rbac

import "testing"

type testSubject struct {
	role       Role
	superAdmin bool
}

func (s testSubject) GetRole() Role    { return s.role }
func (s testSubject) SuperAdmin() bool { return s.superAdmin }

func TestRoleLevels(t *testing.T) {
	ordered := []Role{RoleViewer, RoleMember, RoleManager, RoleOrgAdmin, RoleSuperAdmin}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1].Level() >= ordered[i].Level() {
			t.Errorf("expected %s < %s, got %d >= %d",
				ordered[i-1], ordered[i], ordered[i-1].Level(), ordered[i].Level())
		}
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleManager.Valid() {
		t.Error("manager should be valid")
	}
	if Role("superuser").Valid() {
		t.Error("unknown role should be invalid")
	}
	if Role("").Valid() {
		t.Error("empty role should be invalid")
	}
}

func TestCanManage(t *testing.T) {
	tests := []struct {
		name   string
		actor  Role
		target Role
		want   bool
	}{
		{"admin manages manager", RoleOrgAdmin, RoleManager, true},
		{"admin manages member", RoleOrgAdmin, RoleMember, true},
		{"manager manages member", RoleManager, RoleMember, true},
		{"equal roles cannot manage", RoleManager, RoleManager, false},
		{"admin cannot manage admin", RoleOrgAdmin, RoleOrgAdmin, false},
		{"lower cannot manage higher", RoleMember, RoleManager, false},
		{"super admin manages admin", RoleSuperAdmin, RoleOrgAdmin, true},
		{"unknown actor role", Role("ghost"), RoleMember, false},
		{"unknown target role", RoleOrgAdmin, Role("ghost"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanManage(tt.actor, tt.target); got != tt.want {
				t.Errorf("CanManage(%s, %s) = %v, want %v", tt.actor, tt.target, got, tt.want)
			}
		})
	}
}

func TestBypassesRBAC(t *testing.T) {
	tests := []struct {
		name     string
		subject  testSubject
		wantKind BypassKind
		wantOK   bool
	}{
		{"super admin flag", testSubject{role: RoleMember, superAdmin: true}, BypassSuperAdmin, true},
		{"super admin role", testSubject{role: RoleSuperAdmin}, BypassSuperAdmin, true},
		{"org admin", testSubject{role: RoleOrgAdmin}, BypassOrgAdmin, true},
		{"manager", testSubject{role: RoleManager}, BypassNone, false},
		{"member", testSubject{role: RoleMember}, BypassNone, false},
		{"viewer", testSubject{role: RoleViewer}, BypassNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := BypassesRBAC(tt.subject)
			if kind != tt.wantKind || ok != tt.wantOK {
				t.Errorf("BypassesRBAC() = (%q, %v), want (%q, %v)", kind, ok, tt.wantKind, tt.wantOK)
			}
		})
	}
}
