// Package api is the HTTP boundary of the portal: the captive-portal
// client endpoints, the network controller callback and the admin console.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/ratelimit"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

// PlanCatalog is the read side of the plan use case.
type PlanCatalog interface {
	List(ctx context.Context) ([]*model.Plan, error)
}

// Deps are the use cases the handlers drive.
type Deps struct {
	Plans      PlanCatalog
	Codes      usecase.CodeRegistry
	Sessions   usecase.SessionManager
	Payments   usecase.PaymentUseCase
	Auth       usecase.AdminAuthUseCase
	Exclusions usecase.ExclusionGuard
	Stats      usecase.StatsUseCase
}

type Options struct {
	ManualStart    bool   // mount POST /payments/start-session
	NASSecret      string // mount POST /network/attach when set
	MetricsEnabled bool
	MetricsPath    string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	Dev            bool
}

type Server struct {
	deps    Deps
	opts    Options
	limiter *ratelimit.Keyed
	log     *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "HTTP").Logger()
	s := &Server{deps: deps, opts: opts, log: &l}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS) + 1
		}
		s.limiter = ratelimit.NewKeyed(rate.Limit(opts.RateLimitRPS), burst)
	}
	if s.opts.MetricsPath == "" {
		s.opts.MetricsPath = "/metrics"
	}
	return s
}

// Run evicts idle per-IP limiters until ctx is done.
func (s *Server) Run(ctx context.Context) {
	if s.limiter != nil {
		s.limiter.Run(ctx)
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.opts.MetricsEnabled {
		r.Handle(s.opts.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.opts.RequestTimeout), RateLimit(s.limiter))

		r.Route("/payments", func(r chi.Router) {
			r.Get("/packages", s.handlePackages)
			r.Post("/activate-code", s.handleActivateCode)
			r.Get("/check-code-access", s.handleCheckCodeAccess)
			r.Post("/initiate", s.handleInitiate)
			r.Post("/verify/{transactionID}", s.handleVerify)
			if s.opts.ManualStart {
				r.Post("/start-session", s.handleStartSession)
			}
			r.With(s.requireAdmin).Post("/generate-codes", s.handleGenerateCodes)
		})

		if s.opts.NASSecret != "" {
			r.Method(http.MethodPost, "/network/attach", chain(http.HandlerFunc(s.handleAttach), s.requireNAS))
		}

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Post("/verify-totp", s.handleVerifyTOTP)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/me", s.handleMe)
				r.Post("/logout", s.handleLogout)
				r.Get("/exclusions", s.handleListExclusions)
				r.Post("/exclusions", s.handleAddExclusion)
				r.Delete("/exclusions/{id}", s.handleRemoveExclusion)
				r.Get("/transactions", s.handleListTransactions)
				r.Get("/users", s.handleListAdmins)
				r.Get("/codes", s.handleListCodes)
				r.Get("/stats", s.handleStats)
			})
		})
	})
	return r
}
