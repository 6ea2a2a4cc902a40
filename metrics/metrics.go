// Package metrics exposes prometheus metrics for the demurrage engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "demurrage_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	runsTotal   *prometheus.CounterVec
	runLatency  *prometheus.HistogramVec
	runsSkipped *prometheus.CounterVec

	shipmentsChecked prometheus.Counter
	shipmentsFlagged prometheus.Counter
	shipmentsSkipped prometheus.Counter

	lastSuccess prometheus.Gauge
)

// Init registers the metrics with the default registry. Safe to call more
// than once. Observers are no-ops until Init runs.
func Init() {
	registerOnce.Do(func() {
		runsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total demurrage check runs by trigger and result",
			},
			[]string{"trigger", "result"},
		)
		runLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_duration_seconds",
				Help:    "Demurrage check run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"trigger"},
		)
		runsSkipped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduled_runs_skipped_total",
				Help: "Scheduled firings skipped because a run was in progress",
			},
			[]string{"reason"},
		)
		shipmentsChecked = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "shipments_checked_total",
			Help: "Shipments examined by demurrage check runs",
		})
		shipmentsFlagged = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "shipments_flagged_total",
			Help: "Shipments flagged for demurrage",
		})
		shipmentsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "shipments_skipped_total",
			Help: "Shipments skipped for missing data or calendar problems",
		})
		lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_success_timestamp_seconds",
			Help: "Unix time of the last successful demurrage check",
		})

		prometheus.MustRegister(
			runsTotal,
			runLatency,
			runsSkipped,
			shipmentsChecked,
			shipmentsFlagged,
			shipmentsSkipped,
			lastSuccess,
		)
	})
}

// ObserveRun records one finished batch run.
func ObserveRun(trigger string, success bool, duration time.Duration, checked, flagged, skipped int) {
	if trigger == "" {
		trigger = "unknown"
	}
	result := resultSuccess
	if !success {
		result = resultError
	}
	if runsTotal != nil {
		runsTotal.WithLabelValues(trigger, result).Inc()
	}
	if runLatency != nil {
		runLatency.WithLabelValues(trigger).Observe(duration.Seconds())
	}
	if !success {
		return
	}
	if shipmentsChecked != nil {
		shipmentsChecked.Add(float64(checked))
	}
	if shipmentsFlagged != nil {
		shipmentsFlagged.Add(float64(flagged))
	}
	if shipmentsSkipped != nil {
		shipmentsSkipped.Add(float64(skipped))
	}
	if lastSuccess != nil {
		lastSuccess.SetToCurrentTime()
	}
}

// IncRunSkipped counts a scheduled firing that did not start a run.
func IncRunSkipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if runsSkipped != nil {
		runsSkipped.WithLabelValues(reason).Inc()
	}
}
