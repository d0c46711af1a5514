package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfypanel",
			Subsystem: "session",
			Name:      "submissions_total",
			Help:      "Generation submissions by result",
		},
		[]string{"result"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfypanel",
			Subsystem: "session",
			Name:      "jobs_total",
			Help:      "Resolved generation jobs by outcome",
		},
		[]string{"outcome"},
	)

	jobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "comfypanel",
			Subsystem: "session",
			Name:      "job_duration_seconds",
			Help:      "Time from submission to a resolved outcome",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	galleryWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "comfypanel",
			Subsystem: "session",
			Name:      "gallery_writes_total",
			Help:      "Gallery item creations by result",
		},
		[]string{"result"},
	)

	runsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "comfypanel",
			Subsystem: "session",
			Name:      "runs_in_flight",
			Help:      "Batch runs currently executing",
		},
	)
)

func recordSubmission(result string) {
	submissionsTotal.WithLabelValues(result).Inc()
}

func recordOutcome(o Outcome, seconds float64) {
	jobsTotal.WithLabelValues(o.Status.String()).Inc()
	jobDuration.Observe(seconds)
}

func recordGalleryWrite(err error) {
	if err != nil {
		galleryWritesTotal.WithLabelValues("error").Inc()
		return
	}
	galleryWritesTotal.WithLabelValues("success").Inc()
}
