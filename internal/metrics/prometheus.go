// Package metrics exposes forecaster counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records pipeline events
type Recorder struct {
	predictions  *prometheus.CounterVec
	trainings    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastForecast *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered with reg
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		predictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_predictions_total",
				Help: "Predictions served by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		trainings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_trainings_total",
				Help: "Training runs by result",
			},
			[]string{"symbol", "result"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastForecast: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecaster_last_forecast",
				Help: "Most recent next-day close forecast for a symbol",
			},
			[]string{"symbol"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecaster_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
	}
}

// PredictionServed counts one prediction response
func (r *Recorder) PredictionServed(symbol, outcome string) {
	r.predictions.WithLabelValues(symbol, outcome).Inc()
}

// TrainingFinished counts one training run and its duration
func (r *Recorder) TrainingFinished(symbol string, ok bool, elapsed time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
		r.RecordError("training")
	}
	r.trainings.WithLabelValues(symbol, result).Inc()
	r.latency.WithLabelValues("training").Observe(elapsed.Seconds())
}

// RecordForecast stores the latest forecast value of symbol
func (r *Recorder) RecordForecast(symbol string, value float64) {
	r.lastForecast.WithLabelValues(symbol).Set(value)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency
func (r *Recorder) RecordLatency(op string, elapsed time.Duration) {
	r.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}
