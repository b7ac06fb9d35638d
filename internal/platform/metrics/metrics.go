package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tlezone"

var (
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Graded submissions by overall verdict.",
	}, []string{"verdict"})

	TestExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "test_executions_total",
		Help:      "Per-test-case verdicts produced by the evaluator.",
	}, []string{"verdict"})

	BackendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "execution_backend_errors_total",
		Help:      "Failed execution backend attempts by error kind.",
	}, []string{"kind"})

	BackendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_backend_request_seconds",
		Help:      "Latency of single execution backend attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	ProgressJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "progress_jobs_total",
		Help:      "Progress tracker jobs by outcome.",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
