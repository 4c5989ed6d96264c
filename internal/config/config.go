// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"` // per client IP; 0 disables
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"` // empty selects the in-memory store
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"` // apply embedded migrations on boot
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis-backed stores
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // plan cache ttl
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	Issuer        string        `yaml:"issuer"`
	TempTokenTTL  time.Duration `yaml:"temp_token_ttl"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	MaxAttempts   int           `yaml:"max_attempts"` // per username per window
	AttemptWindow time.Duration `yaml:"attempt_window"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
}

type CodesConfig struct {
	Length        int           `yaml:"length"`
	MaxBatch      int           `yaml:"max_batch"`
	PendingTTL    time.Duration `yaml:"pending_ttl"` // negative keeps PENDING codes forever
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type MoMoConfig struct {
	BaseURL           string `yaml:"base_url"`
	SubscriptionKey   string `yaml:"subscription_key"`
	APIUser           string `yaml:"api_user"`
	APIKey            string `yaml:"api_key"`
	TargetEnvironment string `yaml:"target_environment"`
	CallbackURL       string `yaml:"callback_url"`
}

type PaymentConfig struct {
	Provider          string        `yaml:"provider"` // momo|sandbox
	Currency          string        `yaml:"currency"`
	GatewayTimeout    time.Duration `yaml:"gateway_timeout"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`   // pending age before the reconciler polls
	AbandonAfter      time.Duration `yaml:"abandon_after"` // pending age before marking FAILED
	Workers           int           `yaml:"workers"`
	SandboxOutcome    string        `yaml:"sandbox_outcome"` // successful|failed|pending
	MoMo              MoMoConfig    `yaml:"momo"`
}

type NetworkConfig struct {
	ManualStart bool   `yaml:"manual_start"` // expose POST /payments/start-session
	NASSecret   string `yaml:"nas_secret"`   // enables POST /network/attach
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // 32 bytes, seals TOTP secrets at rest
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Codes    CodesConfig    `yaml:"codes"`
	Payment  PaymentConfig  `yaml:"payment"`
	Network  NetworkConfig  `yaml:"network"`
	Security SecurityConfig `yaml:"security"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (optional when missing), loads a
// .env file if present, applies PORTAL_* environment overrides, fills
// defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	// Best effort: a missing .env is normal in production.
	_ = godotenv.Load()

	var cfg Config
	cfg.Network.ManualStart = true
	cfg.Metrics.Enabled = true

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev
	if dev && cfg.Auth.JWTSecret == "" {
		// INSECURE: development only, callers log a warning.
		cfg.Auth.JWTSecret = DevJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.RateLimitBurst <= 0 {
		cfg.HTTP.RateLimitBurst = 20
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "wifi-portal"
	}
	if cfg.Auth.TempTokenTTL <= 0 {
		cfg.Auth.TempTokenTTL = 5 * time.Minute
	}
	if cfg.Auth.AccessTTL <= 0 {
		cfg.Auth.AccessTTL = 24 * time.Hour
	}
	if cfg.Auth.MaxAttempts <= 0 {
		cfg.Auth.MaxAttempts = 5
	}
	if cfg.Auth.AttemptWindow <= 0 {
		cfg.Auth.AttemptWindow = 15 * time.Minute
	}

	if cfg.Codes.Length <= 0 {
		cfg.Codes.Length = 12
	}
	if cfg.Codes.MaxBatch <= 0 {
		cfg.Codes.MaxBatch = 100
	}
	if cfg.Codes.PendingTTL < 0 {
		cfg.Codes.PendingTTL = 0
	} else if cfg.Codes.PendingTTL == 0 {
		cfg.Codes.PendingTTL = 24 * time.Hour
	}
	if cfg.Codes.SweepInterval <= 0 {
		cfg.Codes.SweepInterval = time.Minute
	}

	if cfg.Payment.Provider == "" {
		cfg.Payment.Provider = "sandbox"
	}
	if cfg.Payment.Currency == "" {
		cfg.Payment.Currency = "USD"
	}
	if cfg.Payment.GatewayTimeout <= 0 {
		cfg.Payment.GatewayTimeout = 10 * time.Second
	}
	if cfg.Payment.ReconcileInterval <= 0 {
		cfg.Payment.ReconcileInterval = time.Minute
	}
	if cfg.Payment.StaleAfter <= 0 {
		cfg.Payment.StaleAfter = 2 * time.Minute
	}
	if cfg.Payment.AbandonAfter <= 0 {
		cfg.Payment.AbandonAfter = 24 * time.Hour
	}
	if cfg.Payment.Workers <= 0 {
		cfg.Payment.Workers = 4
	}
	if cfg.Payment.SandboxOutcome == "" {
		cfg.Payment.SandboxOutcome = "successful"
	}
	if cfg.Payment.MoMo.BaseURL == "" {
		cfg.Payment.MoMo.BaseURL = "https://sandbox.momodeveloper.mtn.com"
	}
	if cfg.Payment.MoMo.TargetEnvironment == "" {
		cfg.Payment.MoMo.TargetEnvironment = "sandbox"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if c.Auth.TempTokenTTL < 2*time.Minute || c.Auth.TempTokenTTL > 5*time.Minute {
		errs = append(errs, errors.New("auth.temp_token_ttl must be between 2m and 5m"))
	}
	if c.Codes.Length < 8 || c.Codes.Length > 32 {
		errs = append(errs, errors.New("codes.length must be between 8 and 32"))
	}
	if c.Codes.MaxBatch > 1000 {
		errs = append(errs, errors.New("codes.max_batch must not exceed 1000"))
	}
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) != 32 {
		errs = append(errs, errors.New("security.encryption_key must be exactly 32 bytes"))
	}
	switch c.Payment.Provider {
	case "sandbox":
	case "momo":
		m := c.Payment.MoMo
		if m.SubscriptionKey == "" || m.APIUser == "" || m.APIKey == "" {
			errs = append(errs, errors.New("payment.momo subscription_key, api_user and api_key are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("payment.provider %q is not supported", c.Payment.Provider))
	}
	return errors.Join(errs...)
}

// applyEnv overlays PORTAL_* variables. Only the settings that commonly
// differ per deployment or carry secrets are exposed.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"PORTAL_HTTP_ADDR":               &cfg.HTTP.Addr,
		"PORTAL_LOG_LEVEL":               &cfg.Log.Level,
		"PORTAL_LOG_FORMAT":              &cfg.Log.Format,
		"PORTAL_DATABASE_URL":            &cfg.Database.URL,
		"PORTAL_REDIS_URL":               &cfg.Redis.URL,
		"PORTAL_REDIS_PASSWORD":          &cfg.Redis.Password,
		"PORTAL_JWT_SECRET":              &cfg.Auth.JWTSecret,
		"PORTAL_ENCRYPTION_KEY":          &cfg.Security.EncryptionKey,
		"PORTAL_PAYMENT_PROVIDER":        &cfg.Payment.Provider,
		"PORTAL_PAYMENT_CURRENCY":        &cfg.Payment.Currency,
		"PORTAL_MOMO_BASE_URL":           &cfg.Payment.MoMo.BaseURL,
		"PORTAL_MOMO_SUBSCRIPTION_KEY":   &cfg.Payment.MoMo.SubscriptionKey,
		"PORTAL_MOMO_API_USER":           &cfg.Payment.MoMo.APIUser,
		"PORTAL_MOMO_API_KEY":            &cfg.Payment.MoMo.APIKey,
		"PORTAL_MOMO_TARGET_ENVIRONMENT": &cfg.Payment.MoMo.TargetEnvironment,
		"PORTAL_NAS_SECRET":              &cfg.Network.NASSecret,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(k); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"PORTAL_DATABASE_MIGRATE":     &cfg.Database.Migrate,
		"PORTAL_NETWORK_MANUAL_START": &cfg.Network.ManualStart,
		"PORTAL_METRICS_ENABLED":      &cfg.Metrics.Enabled,
	}
	for k, dst := range bools {
		if v, ok := os.LookupEnv(k); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			*dst = b
		}
	}

	durs := map[string]*time.Duration{
		"PORTAL_CODES_PENDING_TTL":       &cfg.Codes.PendingTTL,
		"PORTAL_PAYMENT_GATEWAY_TIMEOUT": &cfg.Payment.GatewayTimeout,
	}
	for k, dst := range durs {
		if v, ok := os.LookupEnv(k); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			*dst = d
		}
	}
	return nil
}

// DevJWTSecret signs tokens in --dev mode when no secret is configured.
const DevJWTSecret = "dev-only-insecure-jwt-secret-0000"

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
