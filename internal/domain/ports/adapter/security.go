package adapter

import (
	"errors"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil only when password matches hash.
	Compare(hash, password string) error
}

type TOTPVerifier interface {
	Validate(code, secret string, at time.Time) bool
}

// TokenIssuer signs and parses purpose-scoped login tokens.
type TokenIssuer interface {
	Issue(c model.TokenClaims) (string, error)
	// Parse verifies signature and expiry and rejects tokens minted for a
	// different purpose. Errors wrap ErrTokenExpired or ErrTokenInvalid.
	Parse(token string, purpose model.TokenPurpose) (*model.TokenClaims, error)
}
