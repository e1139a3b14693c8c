package dto

import (
	"time"

	"github.com/gymcore/access-service/internal/domain"
)

// MemberRegisterRequest payload for new members.
type MemberRegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for member and staff login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaffCreateRequest payload for new staff accounts.
type StaffCreateRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	Role      domain.Role `json:"role"`
}

// AccountResponse describes a member or staff account.
type AccountResponse struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}
