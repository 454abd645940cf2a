package auth

import "errors"

// Role is a dashboard user's tier.
type Role string

const (
	// RoleAdmin holds every permission and may always drive the robot.
	RoleAdmin Role = "admin"

	// RoleTourManager plans and schedules tours.
	RoleTourManager Role = "tourManager"

	// RoleRobotOperator drives the robot while holding control.
	RoleRobotOperator Role = "robotOperator"

	// RoleContentManager maintains tour narration.
	RoleContentManager Role = "contentManager"

	// RoleUser is a registered account with no staff permissions.
	RoleUser Role = "user"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RoleAdmin, RoleTourManager, RoleRobotOperator, RoleContentManager, RoleUser}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Principal is the identity a token is issued for.
type Principal struct {
	ID   string
	Role Role

	// HasControl marks the single robot operator currently allowed to
	// move the robot and start tours.
	HasControl bool
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
	ErrNoControl    = errors.New("robot control not held")
)
