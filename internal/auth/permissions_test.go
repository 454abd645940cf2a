package auth

import "testing"

func TestHasPermission_Admin(t *testing.T) {
	for _, perm := range PermissionsForRole(RoleAdmin) {
		if !HasPermission(RoleAdmin, perm) {
			t.Errorf("admin should have %s", perm)
		}
	}
	if len(PermissionsForRole(RoleAdmin)) != 13 {
		t.Errorf("admin permissions = %d, want 13", len(PermissionsForRole(RoleAdmin)))
	}
}

func TestHasPermission_Roles(t *testing.T) {
	tests := []struct {
		role      Role
		should    []Permission
		shouldNot []Permission
	}{
		{
			role:      RoleTourManager,
			should:    []Permission{PermToursCreate, PermToursRead, PermToursUpdate, PermToursDelete, PermToursSchedule, PermUsersRead, PermRobotsRead},
			shouldNot: []Permission{PermRobotsUpdate, PermRobotsControl, PermUsersCreate},
		},
		{
			role:      RoleRobotOperator,
			should:    []Permission{PermRobotsRead, PermRobotsUpdate, PermRobotsControl, PermUsersRead, PermToursRead},
			shouldNot: []Permission{PermToursCreate, PermToursSchedule, PermUsersControl},
		},
		{
			role:      RoleContentManager,
			should:    []Permission{PermToursRead, PermToursUpdate},
			shouldNot: []Permission{PermRobotsRead, PermToursDelete},
		},
		{
			role:      RoleUser,
			shouldNot: []Permission{PermRobotsRead, PermToursRead, PermUsersRead},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			for _, perm := range tt.should {
				if !HasPermission(tt.role, perm) {
					t.Errorf("%s should have %s", tt.role, perm)
				}
			}
			for _, perm := range tt.shouldNot {
				if HasPermission(tt.role, perm) {
					t.Errorf("%s should NOT have %s", tt.role, perm)
				}
			}
		})
	}
}

func TestHasPermission_UnknownRole(t *testing.T) {
	if HasPermission("owner", PermRobotsRead) {
		t.Error("unknown role should have no permissions")
	}
	if PermissionsForRole("owner") != nil {
		t.Error("PermissionsForRole(unknown) should be nil")
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleRobotOperator)
	perms[0] = "tampered"

	if PermissionsForRole(RoleRobotOperator)[0] == "tampered" {
		t.Error("PermissionsForRole() should return a copy")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false", r)
		}
	}
	if IsValidRole("panel") {
		t.Error("IsValidRole(panel) = true")
	}
}
