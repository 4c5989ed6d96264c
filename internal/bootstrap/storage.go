// Package bootstrap assembles the storage and coordination backends selected
// by configuration. Both the server and portalctl open storage through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/config"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/adapter"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/ports/repository"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/memory"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/migrate"
	pg "github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/postgres"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/ratelimit"
	red "github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/redis"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/security"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// devEncryptionKey seals TOTP secrets in --dev mode when no key is set.
const devEncryptionKey = "0123456789abcdef0123456789abcdef"

// Storage is the set of repositories and coordination primitives the use
// cases run on. Locker is nil without Redis.
type Storage struct {
	Kind string

	Plans        repository.PlanRepository
	Codes        repository.AccessCodeRepository
	Transactions repository.TransactionRepository
	Exclusions   repository.ExclusionRepository
	Admins       repository.AdminRepository
	Tokens       repository.TokenStore
	TxManager    repository.TransactionManager

	Locker   adapter.Locker
	Attempts adapter.AttemptLimiter

	pool     *pgxpool.Pool
	redis    *red.Client
	attempts *ratelimit.Attempts
	log      *zerolog.Logger
}

// Open connects the configured backends. An empty database URL selects the
// in-memory store, an empty Redis URL selects in-process token and attempt
// tracking.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Storage, error) {
	l := logger.With().Str("component", "Storage").Logger()
	s := &Storage{log: &l}

	if cfg.Database.URL == "" {
		mem := memory.NewStore()
		s.Kind = StorageMemory
		s.Plans, s.Codes, s.Transactions = mem.Plans, mem.Codes, mem.Transactions
		s.Exclusions, s.Admins, s.TxManager = mem.Exclusions, mem.Admins, mem.TxManager
		s.Tokens = mem.Tokens
		l.Warn().Msg("database.url not set; using the in-memory store, state is lost on restart")
	} else if err := s.openPostgres(ctx, cfg); err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		client, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		s.redis = client
		s.Locker = red.NewLocker(client)
		s.Attempts = red.NewRateLimiter(client)
		s.Tokens = red.NewTokenStore(client)
		s.Plans = pg.NewPlanRepoCacheDecorator(s.Plans, client, cfg.Redis.TTL, logger)
	} else {
		if s.Tokens == nil {
			s.Tokens = memory.NewTokenStore()
		}
		s.attempts = ratelimit.NewAttempts()
		s.Attempts = s.attempts
	}

	l.Info().Str("storage", s.Kind).Bool("redis", s.redis != nil).Msg("storage ready")
	return s, nil
}

func (s *Storage) openPostgres(ctx context.Context, cfg *config.Config) error {
	key := cfg.Security.EncryptionKey
	if key == "" {
		if !cfg.Runtime.Dev {
			return errors.New("security.encryption_key is required with a database")
		}
		s.log.Warn().Msg("security.encryption_key not set; using the dev key (INSECURE)")
		key = devEncryptionKey
	}
	sealer, err := security.NewEncryptionService(key)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	if cfg.Database.Migrate {
		if err := migrate.Run(cfg.Database.URL, "up"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		s.log.Info().Msg("migrations applied")
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	s.pool = pool
	s.Kind = StoragePostgres
	s.Plans = pg.NewPostgresPlanRepo(pool)
	s.Codes = pg.NewAccessCodeRepo(pool)
	s.Transactions = pg.NewTransactionRepo(pool)
	s.Exclusions = pg.NewExclusionRepo(pool)
	s.Admins = pg.NewAdminRepo(pool, sealer)
	s.TxManager = pg.NewTxManager(pool)
	return nil
}

// Start runs the storage housekeeping loops until ctx is done.
func (s *Storage) Start(ctx context.Context) {
	if s.pool != nil {
		go pg.ReportPoolStats(ctx, s.pool, 15*time.Second, s.log)
	}
	if s.attempts != nil {
		go s.attempts.Run(ctx)
	}
}

func (s *Storage) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Warn().Err(err).Msg("redis close")
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
