package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gymcore/access-service/internal/domain"
)

// ErrSubjectNotFound is returned when credentials are requested for an unknown subject.
var ErrSubjectNotFound = errors.New("subject not found")

// MembershipLookup resolves a subject in the membership system.
type MembershipLookup interface {
	GetStatus(ctx context.Context, subjectID string) (*domain.MembershipReport, error)
}

// Issuer mints credentials. It keeps no per-subject state: a previous credential simply
// expires at the end of its window.
type Issuer struct {
	codec   *Codec
	members MembershipLookup
	window  time.Duration
	now     func() time.Time
	random  io.Reader
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// WithRandom overrides the nonce entropy source.
func WithRandom(r io.Reader) IssuerOption {
	return func(i *Issuer) { i.random = r }
}

// NewIssuer builds an issuer. A non-positive window falls back to the 30 second default.
func NewIssuer(codec *Codec, members MembershipLookup, window time.Duration, opts ...IssuerOption) *Issuer {
	if window <= 0 {
		window = domain.DefaultValidityWindow
	}
	issuer := &Issuer{
		codec:   codec,
		members: members,
		window:  window,
		now:     time.Now,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Window returns the validity window of issued credentials.
func (i *Issuer) Window() time.Duration {
	return i.window
}

// Issue returns a fresh credential for subjectID.
// Non-active memberships still get a credential; the validator is the security gate.
func (i *Issuer) Issue(ctx context.Context, subjectID string) (*domain.IssuedCredential, error) {
	if subjectID == "" {
		return nil, ErrSubjectNotFound
	}
	if i.members != nil {
		if _, err := i.members.GetStatus(ctx, subjectID); err != nil {
			if errors.Is(err, domain.ErrMemberNotFound) {
				return nil, ErrSubjectNotFound
			}
			return nil, fmt.Errorf("lookup subject: %w", err)
		}
	}

	nonce, err := NewNonce(i.random)
	if err != nil {
		return nil, err
	}
	issuedAt := time.UnixMilli(i.now().UnixMilli()).UTC()

	encoded, err := i.codec.Encode(subjectID, issuedAt, nonce)
	if err != nil {
		return nil, err
	}

	return &domain.IssuedCredential{
		Encoded:   encoded,
		SubjectID: subjectID,
		Nonce:     nonce,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(i.window),
	}, nil
}

// NewNonce reads NonceBytes of entropy from r and returns them base64url encoded.
func NewNonce(r io.Reader) (string, error) {
	buf := make([]byte, NonceBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
