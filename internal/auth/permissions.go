package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermUsersCreate  Permission = "create:users"
	PermUsersRead    Permission = "read:users"
	PermUsersUpdate  Permission = "update:users"
	PermUsersDelete  Permission = "delete:users"
	PermUsersControl Permission = "control:users"

	PermRobotsRead    Permission = "read:robots"
	PermRobotsUpdate  Permission = "update:robots"
	PermRobotsControl Permission = "control:robots"

	PermToursCreate   Permission = "create:tours"
	PermToursRead     Permission = "read:tours"
	PermToursUpdate   Permission = "update:tours"
	PermToursDelete   Permission = "delete:tours"
	PermToursSchedule Permission = "schedule:tours"
)

var (
	userPerms  = []Permission{PermUsersCreate, PermUsersRead, PermUsersUpdate, PermUsersDelete, PermUsersControl}
	robotPerms = []Permission{PermRobotsRead, PermRobotsUpdate, PermRobotsControl}
	tourPerms  = []Permission{PermToursCreate, PermToursRead, PermToursUpdate, PermToursDelete, PermToursSchedule}
)

// rolePermissions maps each role to its granted permissions.
// Admin is not listed: HasPermission grants it everything.
var rolePermissions = map[Role][]Permission{
	RoleTourManager:    append(append([]Permission{}, tourPerms...), PermUsersRead, PermRobotsRead),
	RoleRobotOperator:  append(append([]Permission{}, robotPerms...), PermUsersRead, PermToursRead),
	RoleContentManager: {PermToursRead, PermToursUpdate},
	RoleUser:           {},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	if role == RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	if role == RoleAdmin {
		all := make([]Permission, 0, len(userPerms)+len(robotPerms)+len(tourPerms))
		all = append(all, userPerms...)
		all = append(all, robotPerms...)
		return append(all, tourPerms...)
	}
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
