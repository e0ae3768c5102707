package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// InferenceDurationSeconds is wall time per model call, including the wait for a slot.
	InferenceDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "firewatch",
		Subsystem: "inference",
		Name:      "duration_seconds",
		Help:      "Time spent on one model call, labeled by model and result.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"model", "result"})

	// InferenceInFlight is the number of model calls currently holding a slot.
	InferenceInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "firewatch",
		Subsystem: "inference",
		Name:      "in_flight",
		Help:      "Model calls currently running against the model server.",
	})

	PredictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "inference",
		Name:      "predictions_total",
		Help:      "Predictions returned, labeled by model and winning label.",
	}, []string{"model", "label"})

	ReportOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "reports",
		Name:      "operations_total",
		Help:      "Report store operations, labeled by operation and result.",
	}, []string{"operation", "result"})

	EventPublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "firewatch",
		Subsystem: "events",
		Name:      "publish_errors_total",
		Help:      "Report events that could not be published.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			InferenceDurationSeconds,
			InferenceInFlight,
			PredictionsTotal,
			ReportOperationsTotal,
			EventPublishErrorsTotal,
		)
	})
}

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
