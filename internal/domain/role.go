package domain

import "strings"

// Role membership role, totally ordered by privilege
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	RoleManager  Role = "MANAGER"
	RoleAdmin    Role = "ADMIN"
	RoleOwner    Role = "OWNER"
)

var roleRank = map[Role]int{
	RoleCustomer: 1,
	RoleStaff:    2,
	RoleManager:  3,
	RoleAdmin:    4,
	RoleOwner:    5,
}

// ParseRole accepts any casing; ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := roleRank[r]
	return r, ok
}

// Rank 0 for unknown roles, so they never satisfy any minimum.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r is min or more privileged.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}
