package domain

import (
	"errors"
	"time"
)

// MembershipStatus is the entitlement state reported by the membership system.
type MembershipStatus string

const (
	MembershipActive         MembershipStatus = "ACTIVE"
	MembershipExpired        MembershipStatus = "EXPIRED"
	MembershipSuspended      MembershipStatus = "SUSPENDED"
	MembershipPendingPayment MembershipStatus = "PENDING_PAYMENT"
)

// Member is a gym member identity. Credentials reference it by ID only.
type Member struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Membership is a member's access entitlement.
type Membership struct {
	MemberID  string
	Status    MembershipStatus
	ExpiresAt time.Time
	PlanPrice float64
}

// MembershipReport is the answer of the membership oracle for one subject.
type MembershipReport struct {
	Member     Member
	Membership Membership
}

// GrantsAccessAt reports whether the membership allows entry at t.
func (m Membership) GrantsAccessAt(t time.Time) bool {
	return m.Status == MembershipActive && m.ExpiresAt.After(t)
}

// ErrMemberNotFound is returned when the membership system does not know a subject.
var ErrMemberNotFound = errors.New("member not found")
