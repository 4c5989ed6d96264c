//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/memory"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/security"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXP"

// countingLimiter allows limit attempts per key.
type countingLimiter struct {
	mu   sync.Mutex
	seen map[string]int
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = map[string]int{}
	}
	l.seen[key]++
	return l.seen[key] <= limit, nil
}

type authFixture struct {
	clock *fakeClock
	uc    *adminAuthUC
	totp  *security.TOTP
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	clock := newFakeClock()
	log := zerolog.Nop()
	issuer, err := security.NewTokenIssuer("0123456789abcdef0123456789abcdef", "portal-test", clock.Now)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	totp := security.NewTOTP()
	uc := NewAdminAuthUseCase(AdminAuthConfig{TempTokenTTL: 5 * time.Minute, AccessTTL: time.Hour, MaxAttempts: 3, AttemptWindow: time.Minute},
		memory.NewAdminRepo(), memory.NewTokenStore().WithClock(clock.Now), security.NewHasher(4), totp, issuer,
		&countingLimiter{}, &log, WithClock(clock.Now))
	if _, err := uc.Enroll(context.Background(), "root", "correct horse", testTOTPSecret); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	return &authFixture{clock: clock, uc: uc, totp: totp}
}

func (f *authFixture) code(t *testing.T) string {
	t.Helper()
	c, err := f.totp.Code(testTOTPSecret, f.clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	return c
}

// wrongCode returns a six digit code that differs from the valid one.
func (f *authFixture) wrongCode(t *testing.T) string {
	c := []byte(f.code(t))
	c[0] = '0' + (c[0]-'0'+5)%10
	return string(c)
}

func TestAdminAuth_LoginFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("should grant an access token after password and totp", func(t *testing.T) {
		// --- Arrange ---
		f := newAuthFixture(t)

		// --- Act ---
		temp, err := f.uc.LoginStep1(ctx, "root", "correct horse")
		if err != nil {
			t.Fatalf("step1: %v", err)
		}
		grant, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.code(t))
		if err != nil {
			t.Fatalf("step2: %v", err)
		}
		sess, err := f.uc.Authenticate(ctx, grant.AccessToken, grant.CSRFToken, true)

		// --- Assert ---
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if sess.Username != "root" || !sess.HasScope(model.ScopeAdmin) {
			t.Fatalf("unexpected session %+v", sess)
		}
		if grant.CSRFToken == temp.CSRFToken {
			t.Fatal("access csrf must differ from login csrf")
		}
	})

	t.Run("should give the same answer for unknown users and bad passwords", func(t *testing.T) {
		f := newAuthFixture(t)
		_, errUser := f.uc.LoginStep1(ctx, "nobody", "correct horse")
		_, errPass := f.uc.LoginStep1(ctx, "root", "wrong")
		if !errors.Is(errUser, domain.ErrInvalidCredentials) || !errors.Is(errPass, domain.ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials, got %v / %v", errUser, errPass)
		}
	})

	t.Run("should throttle repeated password attempts", func(t *testing.T) {
		f := newAuthFixture(t)
		for i := 0; i < 3; i++ {
			_, _ = f.uc.LoginStep1(ctx, "root", "wrong")
		}
		if _, err := f.uc.LoginStep1(ctx, "root", "correct horse"); !errors.Is(err, domain.ErrTooManyAttempts) {
			t.Fatalf("expected throttling, got %v", err)
		}
	})

	t.Run("should not accept a temp token as an access token", func(t *testing.T) {
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		if _, err := f.uc.Authenticate(ctx, temp.TempToken, temp.CSRFToken, false); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
	})
}

func TestAdminAuth_LoginStep2(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject a replayed temp token", func(t *testing.T) {
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.code(t)); err != nil {
			t.Fatalf("step2: %v", err)
		}
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.code(t)); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected replay to fail, got %v", err)
		}
	})

	t.Run("should let one of many concurrent redeemers win", func(t *testing.T) {
		// --- Arrange ---
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		code := f.code(t)

		// --- Act ---
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, code); err == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		// --- Assert ---
		if wins != 1 {
			t.Fatalf("expected one winner, got %d", wins)
		}
	})

	t.Run("should treat an expired temp token as a missing login", func(t *testing.T) {
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		f.clock.Advance(6 * time.Minute)
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.code(t)); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("should reject a csrf mismatch", func(t *testing.T) {
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, "forged", f.code(t)); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
	})

	t.Run("should keep the temp token usable after a wrong code", func(t *testing.T) {
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.wrongCode(t)); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.code(t)); err != nil {
			t.Fatalf("retry with correct code: %v", err)
		}
	})

	t.Run("should validate the code format", func(t *testing.T) {
		f := newAuthFixture(t)
		temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
		if _, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, "12ab56"); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestAdminAuth_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	temp, _ := f.uc.LoginStep1(ctx, "root", "correct horse")
	grant, err := f.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, f.code(t))
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	t.Run("should allow reads without csrf", func(t *testing.T) {
		if _, err := f.uc.Authenticate(ctx, grant.AccessToken, "", false); err != nil {
			t.Fatalf("authenticate: %v", err)
		}
	})

	t.Run("should require csrf on mutations", func(t *testing.T) {
		if _, err := f.uc.Authenticate(ctx, grant.AccessToken, "", true); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if _, err := f.uc.Authenticate(ctx, grant.AccessToken, "wrong", true); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
	})

	t.Run("should revoke the token on logout", func(t *testing.T) {
		sess, err := f.uc.Authenticate(ctx, grant.AccessToken, grant.CSRFToken, true)
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if err := f.uc.Logout(ctx, sess); err != nil {
			t.Fatalf("logout: %v", err)
		}
		if _, err := f.uc.Authenticate(ctx, grant.AccessToken, "", false); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected revoked token to fail, got %v", err)
		}
	})

	t.Run("should reject expired access tokens", func(t *testing.T) {
		g := newAuthFixture(t)
		temp, _ := g.uc.LoginStep1(ctx, "root", "correct horse")
		grant, _ := g.uc.LoginStep2(ctx, temp.TempToken, temp.CSRFToken, g.code(t))
		g.clock.Advance(2 * time.Hour)
		if _, err := g.uc.Authenticate(ctx, grant.AccessToken, "", false); !errors.Is(err, domain.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
	})
}

func TestAdminAuth_Enroll(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	if _, err := f.uc.Enroll(ctx, "ROOT", "another password", testTOTPSecret); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate username, got %v", err)
	}
	if _, err := f.uc.Enroll(ctx, "ops", "short", testTOTPSecret); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	admins, err := f.uc.ListAdmins(ctx, admin)
	if err != nil || len(admins) != 1 {
		t.Fatalf("expected one admin, got %d %v", len(admins), err)
	}
}
