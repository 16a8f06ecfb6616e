package guard

import "strings"

// Role is the employee role carried by an authenticated user
type Role string

const (
	// RoleEmployee is the default, non admin role
	RoleEmployee Role = "employee"
	// RoleManager manages a department
	RoleManager Role = "manager"
	// RoleAdmin can reach admin only routes
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAdmin reports whether the role grants admin only routes
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleEmployee: 0,
		RoleManager:  1,
		RoleAdmin:    2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []Role {
	return []Role{
		RoleEmployee,
		RoleManager,
		RoleAdmin,
	}
}

// ParseRole parses a role name, ignoring case and surrounding space.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	return role, role.IsValid()
}
