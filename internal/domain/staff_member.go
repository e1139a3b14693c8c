package domain

import (
	"errors"
	"time"
)

// StaffMember models reception, management and administration personnel.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrStaffNotFound is returned when no staff account matches.
var ErrStaffNotFound = errors.New("staff member not found")
