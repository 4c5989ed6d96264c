package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
)

// Compile-time check
var _ SessionManager = (*sessionManager)(nil)

// SessionManager starts the timed session of a PENDING code, either on an
// explicit request or when the network controller reports the device online.
type SessionManager interface {
	// StartSession is idempotent: a code that is already ACTIVE returns its
	// existing session without error.
	StartSession(ctx context.Context, code string) (*model.AccessCode, error)
	// Attach is StartSession driven by the network controller, which also
	// knows the device MAC.
	Attach(ctx context.Context, code, macAddress string) (*model.AccessCode, error)
}

type sessionManager struct {
	base
	codes CodeRegistry
	guard ExclusionGuard
	log   *zerolog.Logger
}

func NewSessionManager(codes CodeRegistry, guard ExclusionGuard, logger *zerolog.Logger, opts ...Option) *sessionManager {
	l := logger.With().Str("component", "SessionManager").Logger()
	return &sessionManager{base: newBase(opts), codes: codes, guard: guard, log: &l}
}

func (s *sessionManager) StartSession(ctx context.Context, code string) (*model.AccessCode, error) {
	return s.start(ctx, code, "")
}

func (s *sessionManager) Attach(ctx context.Context, code, macAddress string) (*model.AccessCode, error) {
	if macAddress == "" {
		return nil, domain.Validationf("mac address is required")
	}
	if _, err := model.CanonicalMAC(macAddress); err != nil {
		return nil, err
	}
	return s.start(ctx, code, macAddress)
}

func (s *sessionManager) start(ctx context.Context, code, mac string) (*model.AccessCode, error) {
	defer logging.TraceDuration(s.log, "SessionManager.start")()

	cur, err := s.codes.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if mac == "" {
		mac = cur.MACAddress
	}
	if blocked, err := s.guard.IsConnectionExcluded(ctx, mac); err != nil {
		return nil, err
	} else if blocked {
		return nil, domain.Forbiddenf("this device is not allowed to connect")
	}

	if cur.Status == model.CodeActive {
		return s.existing(ctx, cur)
	}

	started, err := s.codes.MarkActive(ctx, cur.Code, s.now())
	if errors.Is(err, domain.ErrCodeNotPending) && started != nil && started.Status == model.CodeActive {
		// Lost the race to a concurrent start; the winner's session stands.
		return s.existing(ctx, started)
	}
	if errors.Is(err, domain.ErrCodeNotPending) {
		return nil, domain.Conflictf("access code is %s, activate it before starting a session", statusOf(started, cur))
	}
	return started, err
}

// existing returns an already running session, or a conflict once it has
// run out.
func (s *sessionManager) existing(ctx context.Context, c *model.AccessCode) (*model.AccessCode, error) {
	if c.ElapsedAt(s.now()) {
		return nil, domain.Conflictf("session for this access code has expired")
	}
	logging.With(logging.WithCode(ctx, c.Code), s.log).Debug().Msg("session already active")
	return c, nil
}

func statusOf(latest, fallback *model.AccessCode) model.CodeStatus {
	if latest != nil {
		return latest.Status
	}
	return fallback.Status
}
