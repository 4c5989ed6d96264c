package security

import (
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
)

var _ adapter.TOTPVerifier = (*TOTP)(nil)

// TOTP validates RFC 6238 codes: 30s step, SHA1, six digits, one step of skew.
type TOTP struct {
	opts totp.ValidateOpts
}

func NewTOTP() *TOTP {
	return &TOTP{opts: totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}}
}

func (t *TOTP) Validate(code, secret string, at time.Time) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, t.opts)
	return err == nil && ok
}

// Code returns the code for secret at the given time. Used by tooling and tests.
func (t *TOTP) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, t.opts)
}

// GenerateTOTPKey creates a new base32 secret and its otpauth:// URL for
// enrolling an authenticator app.
func GenerateTOTPKey(issuer, account string) (secret, url string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}
