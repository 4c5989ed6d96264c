package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
)

var _ adapter.TokenIssuer = (*TokenIssuer)(nil)

type portalClaims struct {
	Purpose  string `json:"purpose"`
	Username string `json:"username,omitempty"`
	Scope    string `json:"scope,omitempty"`
	CSRF     string `json:"csrf"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 tokens whose purpose claim pins them to one login step.
type TokenIssuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, now func() time.Time) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, now: now}, nil
}

func (i *TokenIssuer) Issue(c model.TokenClaims) (string, error) {
	if c.ID == "" || c.Subject == "" || c.Purpose == "" {
		return "", errors.New("token id, subject and purpose are required")
	}
	claims := portalClaims{
		Purpose:  string(c.Purpose),
		Username: c.Username,
		Scope:    c.Scope,
		CSRF:     c.CSRF,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.ID,
			Issuer:    i.issuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			NotBefore: jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *TokenIssuer) Parse(token string, purpose model.TokenPurpose) (*model.TokenClaims, error) {
	var claims portalClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", adapter.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", adapter.ErrTokenInvalid, err)
	}
	if claims.Purpose != string(purpose) {
		return nil, fmt.Errorf("%w: purpose %q, want %q", adapter.ErrTokenInvalid, claims.Purpose, purpose)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing jti or sub", adapter.ErrTokenInvalid)
	}
	out := &model.TokenClaims{
		ID:       claims.ID,
		Subject:  claims.Subject,
		Username: claims.Username,
		Purpose:  model.TokenPurpose(claims.Purpose),
		Scope:    claims.Scope,
		CSRF:     claims.CSRF,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
