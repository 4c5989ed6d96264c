package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminLoginsTotal, exclusionHitsTotal) }

var (
	adminLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_logins_total",
			Help: "Admin login attempts per step and result.",
		},
		[]string{"step", "result"}, // step: 'password', 'totp'; result: 'ok', 'denied', 'throttled'
	)

	exclusionHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exclusion_hits_total",
			Help: "Requests refused because the principal is on the exclusion list.",
		},
		[]string{"type", "scope"},
	)
)

func IncAdminLogin(step, result string) {
	adminLoginsTotal.WithLabelValues(norm(step), norm(result)).Inc()
}

func IncExclusionHit(typ, scope string) {
	exclusionHitsTotal.WithLabelValues(norm(typ), norm(scope)).Inc()
}
