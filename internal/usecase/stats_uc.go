package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	Summary(ctx context.Context, actor *model.AdminSession) (*Stats, error)
}

type Stats struct {
	CodesByStatus map[model.CodeStatus]int
	Transactions  int
	// Revenue in minor units for the current calendar week (from Monday),
	// month and year, UTC.
	RevenueWeek  int64
	RevenueMonth int64
	RevenueYear  int64
}

type statsUC struct {
	base
	codes repository.AccessCodeRepository
	txs   repository.TransactionRepository

	log *zerolog.Logger
}

func NewStatsUseCase(codes repository.AccessCodeRepository, txs repository.TransactionRepository, logger *zerolog.Logger, opts ...Option) *statsUC {
	return &statsUC{base: newBase(opts), codes: codes, txs: txs, log: logger}
}

func (s *statsUC) Summary(ctx context.Context, actor *model.AdminSession) (*Stats, error) {
	if !actor.HasScope(model.ScopeAdmin) {
		return nil, domain.ErrUnauthenticated
	}
	counts, err := s.codes.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	total, err := s.txs.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	week, month, year := periodStarts(s.now())
	out := &Stats{CodesByStatus: counts, Transactions: total}
	if out.RevenueWeek, err = s.txs.SumSuccessfulSince(ctx, nil, week); err != nil {
		return nil, err
	}
	if out.RevenueMonth, err = s.txs.SumSuccessfulSince(ctx, nil, month); err != nil {
		return nil, err
	}
	if out.RevenueYear, err = s.txs.SumSuccessfulSince(ctx, nil, year); err != nil {
		return nil, err
	}
	return out, nil
}

// periodStarts mirrors DATE_TRUNC('week'|'month'|'year', now) in UTC.
func periodStarts(now time.Time) (week, month, year time.Time) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	week = day.AddDate(0, 0, -offset)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	year = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return week, month, year
}
