package domain

import "time"

// SubjectType differentiates member vs staff sessions.
type SubjectType string

const (
	SubjectTypeMember SubjectType = "MEMBER"
	SubjectTypeStaff  SubjectType = "STAFF"
)

// Role is the dashboard role carried by a session.
type Role string

const (
	RoleClient    Role = "CLIENT"
	RoleReception Role = "RECEPTION"
	RoleManager   Role = "MANAGER"
	RoleSysAdmin  Role = "SYS_ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleReception, RoleManager, RoleSysAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to gym personnel.
func (r Role) IsStaff() bool {
	return r == RoleReception || r == RoleManager || r == RoleSysAdmin
}

// Token represents issued session token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	Role      Role
	ExpiresAt time.Time
	IssuedAt  time.Time
}
