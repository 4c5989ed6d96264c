package model

import (
	"strings"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
)

const ScopeAdmin = "admin"

// AdminPrincipal is an operator account. TOTPSecret is held in plain base32
// in memory; storage layers seal it at rest.
type AdminPrincipal struct {
	ID           string
	Username     string
	PasswordHash string
	TOTPSecret   string
	CreatedAt    time.Time
}

func (a *AdminPrincipal) IsZero() bool { return a == nil || a.ID == "" }

func NewAdminPrincipal(id, username, passwordHash, totpSecret string, now time.Time) (*AdminPrincipal, error) {
	username = strings.TrimSpace(username)
	if id == "" || username == "" {
		return nil, domain.Validationf("admin id and username are required")
	}
	if passwordHash == "" || totpSecret == "" {
		return nil, domain.Validationf("admin password and totp secret are required")
	}
	return &AdminPrincipal{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		TOTPSecret:   strings.ToUpper(strings.ReplaceAll(totpSecret, " ", "")),
		CreatedAt:    now,
	}, nil
}

// TokenPurpose scopes a signed token to one step of the login flow.
type TokenPurpose string

const (
	PurposeTOTP   TokenPurpose = "totp"   // issued after password, redeemable once for an access token
	PurposeAccess TokenPurpose = "access" // authenticated admin session
)

// AuthState is the position of a login in the two-step flow.
type AuthState string

const (
	AuthAnonymous     AuthState = "ANONYMOUS"
	AuthAwaitingTOTP  AuthState = "AWAITING_TOTP"
	AuthAuthenticated AuthState = "AUTHENTICATED"
)

var authTransitions = map[AuthState][]AuthState{
	AuthAnonymous:     {AuthAwaitingTOTP},
	AuthAwaitingTOTP:  {AuthAuthenticated, AuthAnonymous},
	AuthAuthenticated: {AuthAnonymous},
}

func (s AuthState) CanTransitionTo(next AuthState) bool {
	for _, n := range authTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// StateOf maps a token purpose to the state its holder is in.
func StateOf(p TokenPurpose) AuthState {
	switch p {
	case PurposeTOTP:
		return AuthAwaitingTOTP
	case PurposeAccess:
		return AuthAuthenticated
	default:
		return AuthAnonymous
	}
}

// TokenClaims is the content of a signed login token.
type TokenClaims struct {
	ID        string // jti
	Subject   string // admin id
	Username  string
	Purpose   TokenPurpose
	Scope     string
	CSRF      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AdminSession is the authenticated principal attached to a request.
type AdminSession struct {
	AdminID   string
	Username  string
	Scope     string
	TokenID   string
	CSRFToken string
	ExpiresAt time.Time
}

func (s *AdminSession) HasScope(scope string) bool {
	return s != nil && s.AdminID != "" && s.Scope == scope
}

// SystemActor is the principal used by operator tooling that runs outside
// an HTTP session.
func SystemActor() *AdminSession {
	return &AdminSession{AdminID: "system", Username: "portalctl", Scope: ScopeAdmin}
}

// TempGrant is returned after a correct password.
type TempGrant struct {
	TempToken string
	CSRFToken string
	ExpiresAt time.Time
}

// AccessGrant is returned after a correct TOTP code.
type AccessGrant struct {
	AccessToken string
	CSRFToken   string
	ExpiresAt   time.Time
	Admin       *AdminPrincipal
}
