package domain

import "time"

// Role enumerates actor roles supplied by the identity provider.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// User is a read-only identity record used for permission checks.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// IsStaff reports whether the user is an agent or an admin.
func (u *User) IsStaff() bool {
	return u != nil && (u.Role == RoleAgent || u.Role == RoleAdmin)
}

// IsAdmin reports whether the user is an admin.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
