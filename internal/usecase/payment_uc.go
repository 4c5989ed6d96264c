// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// errLostRace aborts a settlement whose PENDING -> SUCCESSFUL swap was won
// by another caller.
var errLostRace = errors.New("transaction settled concurrently")

// PaymentUseCase turns mobile-money charges into access codes, minting
// exactly one code per successful transaction.
type PaymentUseCase interface {
	// Initiate records a PENDING transaction and submits the charge. On a
	// gateway timeout the transaction is returned together with an
	// UpstreamTimeout error and stays PENDING for later verification.
	Initiate(ctx context.Context, phone, planID string) (*model.Transaction, error)
	// Verify polls the gateway for a PENDING transaction and settles it.
	// Terminal transactions are returned as stored without a gateway call.
	Verify(ctx context.Context, transactionID string) (*VerifyResult, error)
	// Abandon fails a PENDING transaction the provider never resolved.
	Abandon(ctx context.Context, transactionID, reason string) (*model.Transaction, error)
	PendingOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*model.Transaction, error)
	List(ctx context.Context, actor *model.AdminSession, offset, limit int) ([]*model.Transaction, int, error)
}

type VerifyResult struct {
	Transaction *model.Transaction
	Code        *model.AccessCode // set when SUCCESSFUL
}

type PaymentConfig struct {
	GatewayTimeout time.Duration
	Currency       string
}

type paymentUC struct {
	base
	cfg     PaymentConfig
	txs     repository.TransactionRepository
	plans   repository.PlanRepository
	codes   CodeRegistry
	codeRep repository.AccessCodeRepository
	guard   ExclusionGuard
	gateway adapter.PaymentGateway
	tm      repository.TransactionManager
	log     *zerolog.Logger
}

func NewPaymentUseCase(cfg PaymentConfig, txs repository.TransactionRepository, plans repository.PlanRepository, codes CodeRegistry, codeRepo repository.AccessCodeRepository, guard ExclusionGuard, gateway adapter.PaymentGateway, tm repository.TransactionManager, logger *zerolog.Logger, opts ...Option) *paymentUC {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	l := logger.With().Str("component", "PaymentReconciler").Str("provider", gateway.Name()).Logger()
	return &paymentUC{
		base:    newBase(opts),
		cfg:     cfg,
		txs:     txs,
		plans:   plans,
		codes:   codes,
		codeRep: codeRepo,
		guard:   guard,
		gateway: gateway,
		tm:      tm,
		log:     &l,
	}
}

// unavailable reports whether err means the gateway did not answer, either
// in time or at all before the caller went away. The charge outcome is then
// unknown and must be left PENDING.
func unavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, adapter.ErrGatewayUnavailable)
}

func (u *paymentUC) Initiate(ctx context.Context, phone, planID string) (*model.Transaction, error) {
	defer logging.TraceDuration(u.log, "PaymentReconciler.Initiate")()

	phone, err := model.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	plan, err := u.plans.FindByID(ctx, nil, planID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Validationf("unknown plan %q", planID)
	}
	if err != nil {
		return nil, err
	}
	if blocked, err := u.guard.IsPaymentExcluded(ctx, phone); err != nil {
		return nil, err
	} else if blocked {
		return nil, domain.Forbiddenf("this phone number is not allowed to make payments")
	}

	now := u.now()
	currency := plan.Currency
	if u.cfg.Currency != "" {
		currency = u.cfg.Currency
	}
	t := &model.Transaction{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		PlanID:      plan.ID,
		Provider:    u.gateway.Name(),
		AmountMinor: plan.PriceMinor,
		Currency:    currency,
		Status:      model.TxPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := u.txs.Save(ctx, nil, t); err != nil {
		return nil, err
	}
	// The charge may already be with the provider once the request leaves,
	// so a client hanging up must not decide the transaction's outcome.
	ctx = logging.WithTxID(context.WithoutCancel(ctx), t.ID)
	l := logging.With(ctx, u.log)

	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	defer cancel()
	err = u.gateway.RequestToPay(gctx, adapter.ChargeRequest{
		Reference:   t.ID,
		PhoneNumber: phone,
		AmountMinor: t.AmountMinor,
		Currency:    t.Currency,
		Description: fmt.Sprintf("WiFi access: %s", plan.Name),
	})
	switch {
	case err == nil:
		metrics.IncPayment("initiated")
		l.Info().Str("plan_id", plan.ID).Msg("charge requested")
		return t, nil
	case unavailable(err):
		metrics.IncPayment("timeout")
		l.Warn().Err(err).Msg("gateway did not answer charge request; transaction left pending")
		return t, domain.Wrap(domain.KindUpstreamTimeout, "payment gateway unresponsive, check the transaction status later", err)
	default:
		reason := err.Error()
		if _, cerr := u.txs.CompleteIfPending(ctx, nil, t.ID, model.TxFailed, reason, u.now()); cerr != nil {
			l.Error().Err(cerr).Msg("failed to record rejected charge")
		}
		t.Status = model.TxFailed
		t.FailureReason = reason
		metrics.IncPayment("failed")
		l.Warn().Err(err).Msg("charge request rejected")
		return t, fmt.Errorf("request to pay: %w", err)
	}
}

func (u *paymentUC) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	defer logging.TraceDuration(u.log, "PaymentReconciler.Verify")()

	t, err := u.txs.FindByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return u.result(ctx, t)
	}
	ctx = logging.WithTxID(context.WithoutCancel(ctx), t.ID)

	gctx, cancel := context.WithTimeout(ctx, u.cfg.GatewayTimeout)
	res, err := u.gateway.ChargeStatus(gctx, t.ID)
	cancel()
	switch {
	case errors.Is(err, adapter.ErrChargeNotFound):
		// The request never reached the provider; still pending until abandoned.
		return &VerifyResult{Transaction: t}, nil
	case err != nil && unavailable(err):
		metrics.IncPayment("timeout")
		return &VerifyResult{Transaction: t}, domain.Wrap(domain.KindUpstreamTimeout, "payment gateway unresponsive, try again later", err)
	case err != nil:
		return nil, fmt.Errorf("charge status: %w", err)
	}

	switch res.Status {
	case adapter.ChargeSuccessful:
		return u.settle(ctx, t)
	case adapter.ChargeFailed:
		return u.fail(ctx, t.ID, res.Reason)
	default:
		return &VerifyResult{Transaction: t}, nil
	}
}

// settle swaps PENDING -> SUCCESSFUL and mints the code in one storage
// transaction. Only the caller that wins the swap mints; a mint that fails
// after the swap is retried by result on the next verification.
func (u *paymentUC) settle(ctx context.Context, t *model.Transaction) (*VerifyResult, error) {
	plan, err := u.plans.FindByID(ctx, nil, t.PlanID)
	if err != nil {
		return nil, err
	}

	var minted *model.AccessCode
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.txs.CompleteIfPending(ctx, tx, t.ID, model.TxSuccessful, "", u.now())
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		c, err := u.claimCode(ctx, tx, t.ID, plan)
		if err != nil {
			return err
		}
		minted = c
		return nil
	})
	if errors.Is(err, errLostRace) {
		latest, ferr := u.txs.FindByID(ctx, nil, t.ID)
		if ferr != nil {
			return nil, ferr
		}
		return u.result(ctx, latest)
	}
	if err != nil {
		return nil, err
	}

	metrics.IncPayment("successful")
	metrics.AddPaymentRevenue(t.Currency, t.AmountMinor)
	logging.With(logging.WithCode(ctx, minted.Code), u.log).Info().Msg("payment settled, access code minted")

	latest, err := u.txs.FindByID(ctx, nil, t.ID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Transaction: latest, Code: minted}, nil
}

func (u *paymentUC) fail(ctx context.Context, id, reason string) (*VerifyResult, error) {
	if reason == "" {
		reason = "declined by provider"
	}
	ok, err := u.txs.CompleteIfPending(ctx, nil, id, model.TxFailed, reason, u.now())
	if err != nil {
		return nil, err
	}
	if ok {
		metrics.IncPayment("failed")
		logging.With(ctx, u.log).Info().Str("reason", reason).Msg("payment failed")
	}
	latest, err := u.txs.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	return u.result(ctx, latest)
}

// claimCode links the payment's code to a SUCCESSFUL transaction, minting
// one only when none exists yet.
func (u *paymentUC) claimCode(ctx context.Context, tx repository.Tx, transactionID string, plan *model.Plan) (*model.AccessCode, error) {
	c, err := u.codeRep.FindByTransaction(ctx, tx, transactionID)
	if errors.Is(err, domain.ErrCodeNotFound) {
		c, err = u.codes.Mint(ctx, tx, plan, transactionID)
		if errors.Is(err, domain.ErrConflict) {
			// Another verification minted it first.
			if found, ferr := u.codeRep.FindByTransaction(ctx, tx, transactionID); ferr == nil {
				c, err = found, nil
			}
		}
	}
	if err != nil {
		return nil, err
	}
	if err := u.txs.SetAccessCode(ctx, tx, transactionID, c.Code); err != nil {
		return nil, err
	}
	return c, nil
}

// repair finishes a settlement whose mint failed after the status swap.
func (u *paymentUC) repair(ctx context.Context, t *model.Transaction) (*model.AccessCode, error) {
	plan, err := u.plans.FindByID(ctx, nil, t.PlanID)
	if err != nil {
		return nil, err
	}
	var c *model.AccessCode
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		c, err = u.claimCode(ctx, tx, t.ID, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	logging.With(logging.WithCode(ctx, c.Code), u.log).Warn().Msg("settled payment had no access code, minted it")
	return c, nil
}

func (u *paymentUC) result(ctx context.Context, t *model.Transaction) (*VerifyResult, error) {
	res := &VerifyResult{Transaction: t}
	if t.Status == model.TxSuccessful && t.AccessCode == nil {
		c, err := u.repair(ctx, t)
		if err != nil {
			return nil, err
		}
		t.AccessCode = &c.Code
		res.Code = c
		return res, nil
	}
	if t.Status == model.TxSuccessful && t.AccessCode != nil {
		c, err := u.codeRep.FindByCode(ctx, nil, *t.AccessCode)
		if err != nil {
			return nil, err
		}
		res.Code = c
	}
	return res, nil
}

func (u *paymentUC) Abandon(ctx context.Context, transactionID, reason string) (*model.Transaction, error) {
	res, err := u.fail(logging.WithTxID(ctx, transactionID), transactionID, reason)
	if err != nil {
		return nil, err
	}
	return res.Transaction, nil
}

func (u *paymentUC) PendingOlderThan(ctx context.Context, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	return u.txs.ListPendingOlderThan(ctx, nil, olderThan, limit)
}

func (u *paymentUC) List(ctx context.Context, actor *model.AdminSession, offset, limit int) ([]*model.Transaction, int, error) {
	if !actor.HasScope(model.ScopeAdmin) {
		return nil, 0, domain.ErrUnauthenticated
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items, err := u.txs.List(ctx, nil, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := u.txs.Count(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
