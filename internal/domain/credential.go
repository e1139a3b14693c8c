package domain

import "time"

// DefaultValidityWindow is the lifetime of a credential unless configured otherwise.
const DefaultValidityWindow = 30 * time.Second

// Credential is the decoded content of a presented access code.
type Credential struct {
	SubjectID string
	IssuedAt  time.Time
	Nonce     string
}

// ExpiresAt derives the expiry from the signed issuance time.
func (c Credential) ExpiresAt(window time.Duration) time.Time {
	return c.IssuedAt.Add(window)
}

// IssuedCredential is handed to the member's device after issuance.
type IssuedCredential struct {
	Encoded   string
	SubjectID string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
