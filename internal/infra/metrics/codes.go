package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(codesGeneratedTotal, codeTransitionsTotal, codesExpiredTotal)
}

var (
	codesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_codes_generated_total",
			Help: "Access codes issued, labeled by source (admin/payment).",
		},
		[]string{"source"},
	)

	codeTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_code_transitions_total",
			Help: "Access code status transitions that won their compare-and-swap.",
		},
		[]string{"from", "to"},
	)

	codesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "access_codes_expired_total",
			Help: "Access codes moved to EXPIRED by the sweep or lazily on read.",
		},
	)
)

func AddCodesGenerated(source string, n int) {
	codesGeneratedTotal.WithLabelValues(norm(source)).Add(float64(n))
}

func IncCodeTransition(from, to string) {
	codeTransitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func AddCodesExpired(n int) {
	if n > 0 {
		codesExpiredTotal.Add(float64(n))
	}
}
