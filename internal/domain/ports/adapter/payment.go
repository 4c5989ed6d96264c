package adapter

import (
	"context"
	"errors"
)

var (
	// ErrGatewayUnavailable wraps transport failures and provider 5xx answers.
	// The outcome of the charge is unknown; callers must not guess it.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrChargeNotFound means the provider has no record of the reference.
	ErrChargeNotFound = errors.New("charge not found at provider")
)

type ChargeStatus string

const (
	ChargePending    ChargeStatus = "PENDING"
	ChargeSuccessful ChargeStatus = "SUCCESSFUL"
	ChargeFailed     ChargeStatus = "FAILED"
)

// ChargeRequest asks the provider to debit a payer's mobile-money wallet.
type ChargeRequest struct {
	Reference   string // our transaction id; must be a UUID for MoMo
	PhoneNumber string // E.164 with '+'
	AmountMinor int64
	Currency    string
	Description string
}

// ChargeResult is the provider's view of a charge.
type ChargeResult struct {
	Status     ChargeStatus
	ProviderID string // provider financial transaction id, when known
	Reason     string // provider failure reason, when FAILED
}

// PaymentGateway is the hex port for mobile-money providers.
type PaymentGateway interface {
	Name() string
	// RequestToPay submits a charge. Success means the provider accepted the
	// request, not that the payer approved it.
	RequestToPay(ctx context.Context, req ChargeRequest) error
	// ChargeStatus queries the outcome of a previously submitted charge.
	ChargeStatus(ctx context.Context, reference string) (ChargeResult, error)
}
