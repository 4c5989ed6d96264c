package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
)

// Plan is a purchasable internet-access package. Plans are immutable once
// codes reference them.
type Plan struct {
	ID            string
	Name          string
	DurationHours int
	PriceMinor    int64 // in minor units (cents), to avoid float errors
	Currency      string
	CreatedAt     time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

func (p *Plan) Duration() time.Duration { return time.Duration(p.DurationHours) * time.Hour }

// PriceMajor is the price in major currency units, for display only.
func (p *Plan) PriceMajor() float64 { return float64(p.PriceMinor) / 100 }

// NewPlan validates and constructs a plan.
func NewPlan(id, name string, durationHours int, priceMinor int64, currency string) (*Plan, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(name) == "" {
		return nil, domain.Validationf("plan id and name are required")
	}
	if durationHours <= 0 {
		return nil, domain.Validationf("plan duration must be positive")
	}
	if priceMinor < 0 {
		return nil, domain.Validationf("plan price must not be negative")
	}
	if currency == "" {
		currency = "USD"
	}
	return &Plan{
		ID:            id,
		Name:          name,
		DurationHours: durationHours,
		PriceMinor:    priceMinor,
		Currency:      strings.ToUpper(currency),
		CreatedAt:     time.Now(),
	}, nil
}

// DefaultPlans is the catalog seeded into fresh installations.
func DefaultPlans() []*Plan {
	mk := func(id, name string, hours int, minor int64) *Plan {
		p, _ := NewPlan(id, name, hours, minor, "USD")
		return p
	}
	return []*Plan{
		mk("1", "1 Hour", 1, 50),
		mk("2", "1 Day", 24, 200),
		mk("3", "1 Week", 168, 1000),
	}
}

// FormatMinor renders minor units as a decimal string, e.g. 250 -> "2.50".
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
