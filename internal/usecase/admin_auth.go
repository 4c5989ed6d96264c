package usecase

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
)

// Compile-time check
var _ AdminAuthUseCase = (*adminAuthUC)(nil)

// AdminAuthUseCase is the two-step admin login: password, then TOTP bound to
// a short-lived single-use temp token and its CSRF nonce.
type AdminAuthUseCase interface {
	LoginStep1(ctx context.Context, username, password string) (*model.TempGrant, error)
	LoginStep2(ctx context.Context, tempToken, csrfToken, totpCode string) (*model.AccessGrant, error)
	// Authenticate resolves an access token. mutating requests must also
	// present the matching CSRF token.
	Authenticate(ctx context.Context, accessToken, csrfToken string, mutating bool) (*model.AdminSession, error)
	Logout(ctx context.Context, s *model.AdminSession) error
	ListAdmins(ctx context.Context, actor *model.AdminSession) ([]*model.AdminPrincipal, error)
	// Enroll creates an admin account; used by provisioning tooling.
	Enroll(ctx context.Context, username, password, totpSecret string) (*model.AdminPrincipal, error)
}

type AdminAuthConfig struct {
	TempTokenTTL  time.Duration
	AccessTTL     time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
}

type adminAuthUC struct {
	base
	cfg     AdminAuthConfig
	admins  repository.AdminRepository
	used    repository.TokenStore
	hasher  adapter.PasswordHasher
	totp    adapter.TOTPVerifier
	tokens  adapter.TokenIssuer
	limiter adapter.AttemptLimiter
	log     *zerolog.Logger

	dummyHash string
}

func NewAdminAuthUseCase(cfg AdminAuthConfig, admins repository.AdminRepository, used repository.TokenStore, hasher adapter.PasswordHasher, totp adapter.TOTPVerifier, tokens adapter.TokenIssuer, limiter adapter.AttemptLimiter, logger *zerolog.Logger, opts ...Option) *adminAuthUC {
	if cfg.TempTokenTTL < 2*time.Minute || cfg.TempTokenTTL > 5*time.Minute {
		cfg.TempTokenTTL = 5 * time.Minute
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = 15 * time.Minute
	}
	l := logger.With().Str("component", "AdminAuthEngine").Logger()
	// Unknown usernames still pay for a bcrypt comparison.
	dummy, _ := hasher.Hash("portal-timing-equalizer")
	return &adminAuthUC{
		base:      newBase(opts),
		cfg:       cfg,
		admins:    admins,
		used:      used,
		hasher:    hasher,
		totp:      totp,
		tokens:    tokens,
		limiter:   limiter,
		log:       &l,
		dummyHash: dummy,
	}
}

func nonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (u *adminAuthUC) allow(ctx context.Context, key string) bool {
	if u.limiter == nil {
		return true
	}
	ok, err := u.limiter.Allow(ctx, key, u.cfg.MaxAttempts, u.cfg.AttemptWindow)
	if err != nil {
		// Fail open: a limiter outage must not lock every admin out.
		logging.With(ctx, u.log).Warn().Err(err).Msg("attempt limiter unavailable")
		return true
	}
	return ok
}

func (u *adminAuthUC) LoginStep1(ctx context.Context, username, password string) (*model.TempGrant, error) {
	defer logging.TraceDuration(u.log, "AdminAuthEngine.LoginStep1")()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.Validationf("username and password are required")
	}
	if !u.allow(ctx, "login:password:"+strings.ToLower(username)) {
		metrics.IncAdminLogin("password", "throttled")
		return nil, domain.ErrTooManyAttempts
	}

	admin, err := u.admins.FindByUsername(ctx, nil, username)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if admin == nil {
		_ = u.hasher.Compare(u.dummyHash, password)
		metrics.IncAdminLogin("password", "denied")
		return nil, domain.ErrInvalidCredentials
	}
	if err := u.hasher.Compare(admin.PasswordHash, password); err != nil {
		metrics.IncAdminLogin("password", "denied")
		logging.With(ctx, u.log).Info().Str("username", admin.Username).Msg("password rejected")
		return nil, domain.ErrInvalidCredentials
	}

	csrf, err := nonce()
	if err != nil {
		return nil, err
	}
	now := u.now()
	exp := now.Add(u.cfg.TempTokenTTL)
	tok, err := u.tokens.Issue(model.TokenClaims{
		ID:        uuid.NewString(),
		Subject:   admin.ID,
		Username:  admin.Username,
		Purpose:   model.PurposeTOTP,
		CSRF:      csrf,
		IssuedAt:  now,
		ExpiresAt: exp,
	})
	if err != nil {
		return nil, err
	}
	metrics.IncAdminLogin("password", "ok")
	return &model.TempGrant{TempToken: tok, CSRFToken: csrf, ExpiresAt: exp}, nil
}

func (u *adminAuthUC) LoginStep2(ctx context.Context, tempToken, csrfToken, totpCode string) (*model.AccessGrant, error) {
	defer logging.TraceDuration(u.log, "AdminAuthEngine.LoginStep2")()

	claims, err := u.tokens.Parse(tempToken, model.PurposeTOTP)
	if errors.Is(err, adapter.ErrTokenExpired) {
		metrics.IncAdminLogin("totp", "expired")
		return nil, domain.NotFoundf("login session expired, start again")
	}
	if err != nil {
		metrics.IncAdminLogin("totp", "denied")
		return nil, domain.Authf("invalid login session")
	}
	if csrfToken == "" || subtle.ConstantTimeCompare([]byte(csrfToken), []byte(claims.CSRF)) != 1 {
		metrics.IncAdminLogin("totp", "denied")
		return nil, domain.Authf("csrf token mismatch")
	}
	totpCode = strings.TrimSpace(totpCode)
	if len(totpCode) != 6 || strings.Trim(totpCode, "0123456789") != "" {
		return nil, domain.Validationf("totp code must be 6 digits")
	}
	if used, err := u.used.IsConsumed(ctx, claims.ID); err != nil {
		return nil, err
	} else if used {
		metrics.IncAdminLogin("totp", "replayed")
		return nil, domain.Authf("login session already used")
	}
	if !u.allow(ctx, "login:totp:"+claims.Subject) {
		metrics.IncAdminLogin("totp", "throttled")
		return nil, domain.ErrTooManyAttempts
	}

	admin, err := u.admins.FindByID(ctx, nil, claims.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	now := u.now()
	if !u.totp.Validate(totpCode, admin.TOTPSecret, now) {
		metrics.IncAdminLogin("totp", "denied")
		logging.With(logging.WithAdminID(ctx, admin.ID), u.log).Info().Msg("totp rejected")
		return nil, domain.Authf("invalid totp code")
	}

	// The temp token is spent only by a correct code; exactly one concurrent
	// redeemer wins the consume.
	ttl := claims.ExpiresAt.Sub(now) + time.Minute
	won, err := u.used.Consume(ctx, claims.ID, ttl)
	if err != nil {
		return nil, err
	}
	if !won {
		metrics.IncAdminLogin("totp", "replayed")
		return nil, domain.Authf("login session already used")
	}

	csrf, err := nonce()
	if err != nil {
		return nil, err
	}
	exp := now.Add(u.cfg.AccessTTL)
	tok, err := u.tokens.Issue(model.TokenClaims{
		ID:        uuid.NewString(),
		Subject:   admin.ID,
		Username:  admin.Username,
		Purpose:   model.PurposeAccess,
		Scope:     model.ScopeAdmin,
		CSRF:      csrf,
		IssuedAt:  now,
		ExpiresAt: exp,
	})
	if err != nil {
		return nil, err
	}
	metrics.IncAdminLogin("totp", "ok")
	logging.With(logging.WithAdminID(ctx, admin.ID), u.log).Info().Msg("admin logged in")
	return &model.AccessGrant{AccessToken: tok, CSRFToken: csrf, ExpiresAt: exp, Admin: admin}, nil
}

func (u *adminAuthUC) Authenticate(ctx context.Context, accessToken, csrfToken string, mutating bool) (*model.AdminSession, error) {
	if accessToken == "" {
		return nil, domain.ErrUnauthenticated
	}
	claims, err := u.tokens.Parse(accessToken, model.PurposeAccess)
	if err != nil {
		return nil, domain.Authf("invalid or expired access token")
	}
	if model.StateOf(claims.Purpose) != model.AuthAuthenticated || claims.Scope != model.ScopeAdmin {
		return nil, domain.Authf("token does not grant admin access")
	}
	if revoked, err := u.used.IsConsumed(ctx, claims.ID); err != nil {
		return nil, err
	} else if revoked {
		return nil, domain.Authf("session has been logged out")
	}
	if mutating && (csrfToken == "" || subtle.ConstantTimeCompare([]byte(csrfToken), []byte(claims.CSRF)) != 1) {
		return nil, domain.Authf("csrf token mismatch")
	}
	return &model.AdminSession{
		AdminID:   claims.Subject,
		Username:  claims.Username,
		Scope:     claims.Scope,
		TokenID:   claims.ID,
		CSRFToken: claims.CSRF,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

func (u *adminAuthUC) Logout(ctx context.Context, s *model.AdminSession) error {
	if !s.HasScope(model.ScopeAdmin) {
		return domain.ErrUnauthenticated
	}
	ttl := s.ExpiresAt.Sub(u.now()) + time.Minute
	if _, err := u.used.Consume(ctx, s.TokenID, ttl); err != nil {
		return err
	}
	logging.With(logging.WithAdminID(ctx, s.AdminID), u.log).Info().Msg("admin logged out")
	return nil
}

func (u *adminAuthUC) ListAdmins(ctx context.Context, actor *model.AdminSession) ([]*model.AdminPrincipal, error) {
	if !actor.HasScope(model.ScopeAdmin) {
		return nil, domain.ErrUnauthenticated
	}
	return u.admins.List(ctx, nil)
}

func (u *adminAuthUC) Enroll(ctx context.Context, username, password, totpSecret string) (*model.AdminPrincipal, error) {
	if len(password) < 8 {
		return nil, domain.Validationf("password must be at least 8 characters")
	}
	hash, err := u.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	a, err := model.NewAdminPrincipal(uuid.NewString(), username, hash, totpSecret, u.now())
	if err != nil {
		return nil, err
	}
	if existing, err := u.admins.FindByUsername(ctx, nil, a.Username); err == nil && existing != nil {
		return nil, domain.ErrAdminExists
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if err := u.admins.Save(ctx, nil, a); err != nil {
		return nil, err
	}
	logging.With(logging.WithAdminID(ctx, a.ID), u.log).Info().Str("username", a.Username).Msg("admin enrolled")
	return a, nil
}
