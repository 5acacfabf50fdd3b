package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "triage_batches_running",
		Help: "The number of batches currently executing",
	})

	BatchesRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_batches_run_total",
		Help: "The number of batches run since the service was started",
	}, []string{"status"})

	CasesRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "triage_cases_run_total",
		Help: "The number of case executions since the service was started",
	}, []string{"status"})

	AdmissionSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "triage_admission_slots_in_use",
		Help: "The number of admission slots currently held by case executions",
	})

	CaseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "triage_case_duration_seconds",
		Help:    "Observed case execution times",
		Buckets: prometheus.DefBuckets,
	})

	RankingFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "triage_ranking_fallbacks_total",
		Help: "Batches where a dependency cycle forced a fallback to weighted ranking",
	})
)
