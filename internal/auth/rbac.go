package auth

import "strings"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole maps a stored or submitted role onto the closed role set.
func ParseRole(role string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(RoleAdmin):
		return RoleAdmin, true
	case string(RoleUser):
		return RoleUser, true
	default:
		return "", false
	}
}

// NormalizeRole is ParseRole with unknown values falling back to RoleUser.
func NormalizeRole(role string) Role {
	if parsed, ok := ParseRole(role); ok {
		return parsed
	}
	return RoleUser
}

func HasRole(role string, allowed ...Role) bool {
	if len(allowed) == 0 {
		return false
	}
	current := NormalizeRole(role)
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

func IsAdmin(role string) bool {
	return NormalizeRole(role) == RoleAdmin
}

// Policy is the access requirement declared for a single route.
// The zero value is a public route.
type Policy struct {
	Authenticated bool
	Roles         []Role
}

// Public marks a route that needs no identity.
func Public() Policy {
	return Policy{}
}

// Authenticated requires a verified identity of any role.
func Authenticated() Policy {
	return Policy{Authenticated: true}
}

// RequireRoles requires a verified identity holding one of roles.
func RequireRoles(roles ...Role) Policy {
	return Policy{Authenticated: true, Roles: roles}
}

// Allows reports whether an identity with role satisfies the role set.
// An empty role set admits every authenticated role.
func (p Policy) Allows(role string) bool {
	if len(p.Roles) == 0 {
		return true
	}
	return HasRole(role, p.Roles...)
}
