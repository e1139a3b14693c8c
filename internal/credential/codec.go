// Package credential mints and verifies the rotating access codes members show at reception.
//
// An encoded credential is a compact HS256 JWS whose claims carry the subject id, the issuance
// time in unix milliseconds and a random nonce. It is self-contained: decoding needs only the
// server secret.
package credential

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/gymcore/access-service/internal/domain"
)

const (
	// MinSecretBytes is the shortest signing key NewCodec accepts.
	MinSecretBytes = 32
	// NonceBytes is the entropy of a freshly issued nonce.
	NonceBytes = 16

	maxEncodedLen = 2048
)

var (
	ErrMalformed         = errors.New("credential malformed")
	ErrSignatureMismatch = errors.New("credential signature mismatch")
	ErrWeakSecret        = fmt.Errorf("credential secret must be at least %d bytes", MinSecretBytes)
)

type claims struct {
	IssuedAtMillis int64 `json:"iat_ms"`
	jwt.RegisteredClaims
}

// Codec serializes credentials into signed strings and back.
type Codec struct {
	secret []byte
	parser *jwt.Parser
}

// NewCodec builds a codec around the server-held secret.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	return &Codec{
		secret: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// Encode signs (subjectID, issuedAt, nonce). Issuance time is kept at millisecond precision.
func (c *Codec) Encode(subjectID string, issuedAt time.Time, nonce string) (string, error) {
	if subjectID == "" || nonce == "" {
		return "", fmt.Errorf("%w: subject and nonce are required", ErrMalformed)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		IssuedAtMillis: issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: subjectID,
			ID:      nonce,
		},
	})
	encoded, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return encoded, nil
}

// Decode verifies the signature of raw and returns its content.
// The error is always ErrMalformed or ErrSignatureMismatch (possibly wrapped).
func (c *Codec) Decode(raw string) (domain.Credential, error) {
	if raw == "" || len(raw) > maxEncodedLen {
		return domain.Credential{}, ErrMalformed
	}

	var cl claims
	if _, err := c.parser.ParseWithClaims(raw, &cl, c.keyFunc); err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return domain.Credential{}, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
		}
		return domain.Credential{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if cl.Subject == "" || cl.IssuedAtMillis <= 0 {
		return domain.Credential{}, fmt.Errorf("%w: missing subject or issuance time", ErrMalformed)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(cl.ID)
	if err != nil || len(nonce) < NonceBytes {
		return domain.Credential{}, fmt.Errorf("%w: nonce too short", ErrMalformed)
	}

	return domain.Credential{
		SubjectID: cl.Subject,
		IssuedAt:  time.UnixMilli(cl.IssuedAtMillis).UTC(),
		Nonce:     cl.ID,
	}, nil
}

func (c *Codec) keyFunc(_ *jwt.Token) (interface{}, error) {
	return c.secret, nil
}
