package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(backgroundRunsTotal) }

var backgroundRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_runs_total",
		Help: "Background worker iterations, labeled by job and outcome.",
	},
	[]string{"job", "status"}, // job: 'expiry_sweep', 'payment_reconcile'; status: 'ok', 'error', 'skipped'
)

func IncBackgroundRun(job, status string) {
	backgroundRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
