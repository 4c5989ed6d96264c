package model

import (
	"net"
	"strings"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
)

type ExclusionType string

const (
	ExcludePhone ExclusionType = "PHONE"
	ExcludeMAC   ExclusionType = "MAC"
)

// Exclusion blocks a phone number or device from paying and/or connecting.
type Exclusion struct {
	ID                    string
	Type                  ExclusionType
	Value                 string // canonical form, see CanonicalValue
	Reason                string
	ExcludeFromPayment    bool
	ExcludeFromConnection bool
	CreatedAt             time.Time
}

func ParseExclusionType(s string) (ExclusionType, bool) {
	t := ExclusionType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t == ExcludePhone || t == ExcludeMAC
}

// CanonicalValue normalizes v so exact-match lookups work: phones keep only
// '+' and digits, MACs become upper-case colon separated.
func CanonicalValue(t ExclusionType, v string) (string, error) {
	v = strings.TrimSpace(v)
	switch t {
	case ExcludePhone:
		return NormalizePhone(v)
	case ExcludeMAC:
		return CanonicalMAC(v)
	default:
		return "", domain.Validationf("exclusion type must be PHONE or MAC")
	}
}

// CanonicalMAC accepts the usual separators and returns AA:BB:CC:DD:EE:FF.
func CanonicalMAC(v string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(v))
	if err != nil || len(hw) != 6 {
		return "", domain.Validationf("invalid MAC address %q", v)
	}
	return strings.ToUpper(hw.String()), nil
}

// NewExclusion validates and constructs an exclusion. At least one scope flag
// must be set, otherwise the entry would block nothing.
func NewExclusion(id string, t ExclusionType, value, reason string, fromPayment, fromConnection bool, now time.Time) (*Exclusion, error) {
	if t != ExcludePhone && t != ExcludeMAC {
		return nil, domain.Validationf("exclusion type must be PHONE or MAC")
	}
	canon, err := CanonicalValue(t, value)
	if err != nil {
		return nil, err
	}
	if !fromPayment && !fromConnection {
		return nil, domain.Validationf("exclusion must apply to payment, connection or both")
	}
	return &Exclusion{
		ID:                    id,
		Type:                  t,
		Value:                 canon,
		Reason:                strings.TrimSpace(reason),
		ExcludeFromPayment:    fromPayment,
		ExcludeFromConnection: fromConnection,
		CreatedAt:             now,
	}, nil
}
