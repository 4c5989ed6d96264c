package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
)

type TxStatus string

const (
	TxPending    TxStatus = "PENDING"    // charge requested; awaiting the provider outcome
	TxSuccessful TxStatus = "SUCCESSFUL" // provider confirmed; exactly one code minted
	TxFailed     TxStatus = "FAILED"     // provider declined or the charge was abandoned
)

func (s TxStatus) Terminal() bool { return s == TxSuccessful || s == TxFailed }

// Transaction records one mobile-money purchase attempt.
type Transaction struct {
	ID            string // UUID, also the provider reference
	PhoneNumber   string // E.164 with leading '+'
	PlanID        string
	Provider      string
	AmountMinor   int64
	Currency      string
	Status        TxStatus
	AccessCode    *string // set only when SUCCESSFUL
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

// NormalizePhone trims whitespace and validates the E.164 shape.
func NormalizePhone(s string) (string, error) {
	p := strings.TrimSpace(s)
	p = strings.ReplaceAll(p, " ", "")
	if !phonePattern.MatchString(p) {
		return "", domain.Validationf("invalid phone number format, expected +<10-15 digits>")
	}
	return p, nil
}
