package portal

import "strings"

// Role is the portal role carried by a principal.
type Role string

const (
	// RoleNone is used as a required role when a resource only needs a session.
	RoleNone  Role = ""
	RoleOwner Role = "owner"
	RoleTeam  Role = "team"
	RoleUser  Role = "user"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleTeam, RoleUser:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// ParseRole converts a stored role value. Unknown values map to RoleUser,
// the least privileged role.
func ParseRole(s string) Role {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if role.IsValid() {
		return role
	}
	return RoleUser
}
