package model

import (
	"strings"
	"time"
)

type CodeStatus string

const (
	CodeUnused  CodeStatus = "UNUSED"  // issued, never presented
	CodePending CodeStatus = "PENDING" // presented by a client, session not started
	CodeActive  CodeStatus = "ACTIVE"  // session running until SessionExpiresAt
	CodeExpired CodeStatus = "EXPIRED" // terminal
)

// codeTransitions is the closed set of legal status moves.
var codeTransitions = map[CodeStatus][]CodeStatus{
	CodeUnused:  {CodePending},
	CodePending: {CodeActive, CodeExpired},
	CodeActive:  {CodeExpired},
	CodeExpired: nil,
}

func (s CodeStatus) Valid() bool {
	_, ok := codeTransitions[s]
	return ok
}

func (s CodeStatus) CanTransitionTo(next CodeStatus) bool {
	for _, n := range codeTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s CodeStatus) Terminal() bool { return s == CodeExpired }

// ParseCodeStatus accepts any letter case. Unknown values yield false.
func ParseCodeStatus(s string) (CodeStatus, bool) {
	st := CodeStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// AccessCode is a bearer credential granting a time-boxed session.
type AccessCode struct {
	Code             string
	PlanID           string
	DurationHours    int // snapshot of the plan at issue time
	Status           CodeStatus
	MACAddress       string
	TransactionID    *string // set when minted by a payment
	IssuedAt         time.Time
	PendingAt        *time.Time
	ActivatedAt      *time.Time
	SessionExpiresAt *time.Time
}

func (c *AccessCode) Duration() time.Duration { return time.Duration(c.DurationHours) * time.Hour }

// Remaining is the session time left at now. Zero unless the code is ACTIVE.
func (c *AccessCode) Remaining(now time.Time) time.Duration {
	if c.Status != CodeActive || c.SessionExpiresAt == nil {
		return 0
	}
	if d := c.SessionExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ElapsedAt reports whether an ACTIVE session has run out at now.
func (c *AccessCode) ElapsedAt(now time.Time) bool {
	return c.Status == CodeActive && c.SessionExpiresAt != nil && !now.Before(*c.SessionExpiresAt)
}

// Session is the time-boxed grant produced by activating a code.
func (c *AccessCode) Session() (Session, bool) {
	if c.ActivatedAt == nil || c.SessionExpiresAt == nil {
		return Session{}, false
	}
	return Session{Code: c.Code, StartedAt: *c.ActivatedAt, EndsAt: *c.SessionExpiresAt}, true
}

type Session struct {
	Code      string
	StartedAt time.Time
	EndsAt    time.Time
}

// CodeUpdate carries the fields written together with a status change.
// Nil fields are left untouched.
type CodeUpdate struct {
	Status           CodeStatus
	MACAddress       *string
	PendingAt        *time.Time
	ActivatedAt      *time.Time
	SessionExpiresAt *time.Time
}

// Apply writes u onto c.
func (u CodeUpdate) Apply(c *AccessCode) {
	c.Status = u.Status
	if u.MACAddress != nil {
		c.MACAddress = *u.MACAddress
	}
	if u.PendingAt != nil {
		t := *u.PendingAt
		c.PendingAt = &t
	}
	if u.ActivatedAt != nil {
		t := *u.ActivatedAt
		c.ActivatedAt = &t
	}
	if u.SessionExpiresAt != nil {
		t := *u.SessionExpiresAt
		c.SessionExpiresAt = &t
	}
}

// CodeAlphabet avoids ambiguous characters like O/0, I/1.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NormalizeCode upper-cases a user supplied code and strips separators, so
// "abcd-efgh-jkmn" and "ABCDEFGHJKMN" name the same code.
func NormalizeCode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WellFormedCode reports whether s (already normalized) uses only the code
// alphabet and has the given length.
func WellFormedCode(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(CodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
