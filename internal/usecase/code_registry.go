package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/metrics"
)

// Compile-time check
var _ CodeRegistry = (*codeRegistry)(nil)

// CodeRegistry owns the access code lifecycle
// UNUSED -> PENDING -> ACTIVE -> EXPIRED. Every status change is a
// compare-and-swap on the stored status.
type CodeRegistry interface {
	GenerateBatch(ctx context.Context, actor *model.AdminSession, planID string, quantity int) (*GeneratedBatch, error)
	Activate(ctx context.Context, code, macAddress string) (*model.AccessCode, error)
	CheckAccess(ctx context.Context, code string) (*AccessStatus, error)
	MarkActive(ctx context.Context, code string, start time.Time) (*model.AccessCode, error)
	SweepExpired(ctx context.Context) (SweepResult, error)
	// Mint issues one UNUSED code inside tx on behalf of a successful payment.
	Mint(ctx context.Context, tx repository.Tx, plan *model.Plan, transactionID string) (*model.AccessCode, error)
	Get(ctx context.Context, code string) (*model.AccessCode, error)
	List(ctx context.Context, actor *model.AdminSession, f repository.CodeFilter) ([]*model.AccessCode, error)
}

type CodeRegistryConfig struct {
	Length     int
	MaxBatch   int
	PendingTTL time.Duration // 0 disables PENDING expiry
}

type GeneratedBatch struct {
	Plan      *model.Plan
	Codes     []*model.AccessCode
	Remaining int64 // codes of this length still unissued
}

type AccessStatus struct {
	Code      *model.AccessCode
	Remaining time.Duration
	ExpiresAt *time.Time
}

type SweepResult struct {
	ActiveExpired  int
	PendingExpired int
}

func (r SweepResult) Total() int { return r.ActiveExpired + r.PendingExpired }

type codeRegistry struct {
	base
	cfg   CodeRegistryConfig
	codes repository.AccessCodeRepository
	plans repository.PlanRepository
	tm    repository.TransactionManager
	log   *zerolog.Logger
}

func NewCodeRegistry(cfg CodeRegistryConfig, codes repository.AccessCodeRepository, plans repository.PlanRepository, tm repository.TransactionManager, logger *zerolog.Logger, opts ...Option) *codeRegistry {
	if cfg.Length <= 0 {
		cfg.Length = 12
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	l := logger.With().Str("component", "CodeRegistry").Logger()
	return &codeRegistry{base: newBase(opts), cfg: cfg, codes: codes, plans: plans, tm: tm, log: &l}
}

func (r *codeRegistry) GenerateBatch(ctx context.Context, actor *model.AdminSession, planID string, quantity int) (*GeneratedBatch, error) {
	defer logging.TraceDuration(r.log, "CodeRegistry.GenerateBatch")()

	if !actor.HasScope(model.ScopeAdmin) {
		return nil, domain.ErrUnauthenticated
	}
	if quantity < 1 || quantity > r.cfg.MaxBatch {
		return nil, domain.Validationf("quantity must be between 1 and %d", r.cfg.MaxBatch)
	}
	plan, err := r.plans.FindByID(ctx, nil, planID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Validationf("unknown plan %q", planID)
	}
	if err != nil {
		return nil, err
	}

	now := r.now()
	out := make([]*model.AccessCode, 0, quantity)
	err = r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		out = out[:0]
		for i := 0; i < quantity; i++ {
			c, err := insertUniqueCode(ctx, r.codes, tx, r.cfg.Length, func(s string) *model.AccessCode {
				return &model.AccessCode{
					Code:          s,
					PlanID:        plan.ID,
					DurationHours: plan.DurationHours,
					Status:        model.CodeUnused,
					IssuedAt:      now,
				}
			})
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts, err := r.codes.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	issued := 0
	for _, n := range counts {
		issued += n
	}

	metrics.AddCodesGenerated("admin", len(out))
	logging.With(ctx, r.log).Info().
		Str("plan_id", plan.ID).
		Int("quantity", len(out)).
		Msg("access codes generated")

	return &GeneratedBatch{Plan: plan, Codes: out, Remaining: codeSpace(r.cfg.Length) - int64(issued)}, nil
}

func (r *codeRegistry) normalize(code string) (string, error) {
	c := model.NormalizeCode(code)
	if c == "" {
		return "", domain.Validationf("access code is required")
	}
	if !model.WellFormedCode(c, r.cfg.Length) {
		return "", domain.ErrCodeNotFound
	}
	return c, nil
}

func (r *codeRegistry) Activate(ctx context.Context, code, macAddress string) (*model.AccessCode, error) {
	defer logging.TraceDuration(r.log, "CodeRegistry.Activate")()

	c, err := r.normalize(code)
	if err != nil {
		return nil, err
	}
	upd := model.CodeUpdate{Status: model.CodePending}
	if macAddress != "" {
		mac, err := model.CanonicalMAC(macAddress)
		if err != nil {
			return nil, err
		}
		upd.MACAddress = &mac
	}

	cur, err := r.codes.FindByCode(ctx, nil, c)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.CodeUnused {
		return nil, domain.ErrCodeUsed
	}

	now := r.now()
	upd.PendingAt = &now
	ok, err := r.codes.Transition(ctx, nil, c, model.CodeUnused, upd)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrCodeUsed
	}
	upd.Apply(cur)
	metrics.IncCodeTransition(string(model.CodeUnused), string(model.CodePending))
	logging.With(logging.WithCode(ctx, c), r.log).Info().Msg("access code activated")
	return cur, nil
}

func (r *codeRegistry) CheckAccess(ctx context.Context, code string) (*AccessStatus, error) {
	c, err := r.normalize(code)
	if err != nil {
		return nil, err
	}
	cur, err := r.codes.FindByCode(ctx, nil, c)
	if err != nil {
		return nil, err
	}

	now := r.now()
	switch {
	case cur.ElapsedAt(now):
		r.expire(ctx, cur, model.CodeActive)
	case cur.Status == model.CodePending && r.pendingStale(cur, now):
		r.expire(ctx, cur, model.CodePending)
	}
	return &AccessStatus{Code: cur, Remaining: cur.Remaining(now), ExpiresAt: cur.SessionExpiresAt}, nil
}

func (r *codeRegistry) pendingStale(c *model.AccessCode, now time.Time) bool {
	return r.cfg.PendingTTL > 0 && c.PendingAt != nil && c.PendingAt.Add(r.cfg.PendingTTL).Before(now)
}

// expire performs the lazy transition observed on read. When another writer
// moved the code first, c is refreshed with whatever it stored.
func (r *codeRegistry) expire(ctx context.Context, c *model.AccessCode, from model.CodeStatus) {
	ok, err := r.codes.Transition(ctx, nil, c.Code, from, model.CodeUpdate{Status: model.CodeExpired})
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("lazy expiry failed")
		return
	}
	if ok {
		c.Status = model.CodeExpired
		metrics.IncCodeTransition(string(from), string(model.CodeExpired))
		metrics.AddCodesExpired(1)
		return
	}
	latest, err := r.codes.FindByCode(ctx, nil, c.Code)
	if err != nil {
		logging.With(ctx, r.log).Warn().Err(err).Msg("reload after lost expiry failed")
		return
	}
	*c = *latest
}

func (r *codeRegistry) MarkActive(ctx context.Context, code string, start time.Time) (*model.AccessCode, error) {
	defer logging.TraceDuration(r.log, "CodeRegistry.MarkActive")()

	c, err := r.normalize(code)
	if err != nil {
		return nil, err
	}
	cur, err := r.codes.FindByCode(ctx, nil, c)
	if err != nil {
		return nil, err
	}
	if cur.Status != model.CodePending {
		return cur, domain.ErrCodeNotPending
	}

	exp := start.Add(cur.Duration())
	upd := model.CodeUpdate{Status: model.CodeActive, ActivatedAt: &start, SessionExpiresAt: &exp}
	ok, err := r.codes.Transition(ctx, nil, c, model.CodePending, upd)
	if err != nil {
		return nil, err
	}
	if !ok {
		latest, ferr := r.codes.FindByCode(ctx, nil, c)
		if ferr != nil {
			return nil, ferr
		}
		return latest, domain.ErrCodeNotPending
	}
	upd.Apply(cur)
	metrics.IncCodeTransition(string(model.CodePending), string(model.CodeActive))
	logging.With(logging.WithCode(ctx, c), r.log).Info().Time("expires_at", exp).Msg("session started")
	return cur, nil
}

func (r *codeRegistry) SweepExpired(ctx context.Context) (SweepResult, error) {
	defer logging.TraceDuration(r.log, "CodeRegistry.SweepExpired")()

	now := r.now()
	var res SweepResult
	n, err := r.codes.ExpireActive(ctx, nil, now)
	if err != nil {
		return res, err
	}
	res.ActiveExpired = n
	if r.cfg.PendingTTL > 0 {
		n, err = r.codes.ExpirePending(ctx, nil, now.Add(-r.cfg.PendingTTL))
		if err != nil {
			return res, err
		}
		res.PendingExpired = n
	}
	metrics.AddCodesExpired(res.Total())
	return res, nil
}

func (r *codeRegistry) Mint(ctx context.Context, tx repository.Tx, plan *model.Plan, transactionID string) (*model.AccessCode, error) {
	now := r.now()
	c, err := insertUniqueCode(ctx, r.codes, tx, r.cfg.Length, func(s string) *model.AccessCode {
		id := transactionID
		return &model.AccessCode{
			Code:          s,
			PlanID:        plan.ID,
			DurationHours: plan.DurationHours,
			Status:        model.CodeUnused,
			TransactionID: &id,
			IssuedAt:      now,
		}
	})
	if err != nil {
		return nil, err
	}
	metrics.AddCodesGenerated("payment", 1)
	return c, nil
}

func (r *codeRegistry) Get(ctx context.Context, code string) (*model.AccessCode, error) {
	c, err := r.normalize(code)
	if err != nil {
		return nil, err
	}
	return r.codes.FindByCode(ctx, nil, c)
}

func (r *codeRegistry) List(ctx context.Context, actor *model.AdminSession, f repository.CodeFilter) ([]*model.AccessCode, error) {
	if !actor.HasScope(model.ScopeAdmin) {
		return nil, domain.ErrUnauthenticated
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return r.codes.List(ctx, nil, f)
}
