// Package metrics provides Prometheus instrumentation for the bridge's
// forwarding pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streambridge"

var (
	// messagesForwarded counts messages successfully published downstream.
	messagesForwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Total number of messages successfully forwarded to a broker",
		},
		[]string{"source", "broker"},
	)

	// messagesDropped counts messages for which no route matched.
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped because no route matched",
		},
		[]string{"source"},
	)

	// sinkErrors counts downstream publish failures.
	sinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Total number of sink publish failures",
		},
		[]string{"broker", "outcome"}, // outcome: ignored, fatal
	)

	// markerCommits counts replay marker writes after successful forwards.
	markerCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_marker_commits_total",
			Help:      "Total number of replay marker commits",
		},
		[]string{"source"},
	)

	// forwardDuration is a histogram of route-and-publish duration per message.
	forwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forward_duration_seconds",
			Help:      "Histogram of per-message forward duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// inFlightTasks is a gauge of currently scheduled forwarding tasks.
	inFlightTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_flight_tasks",
			Help:      "Number of forwarding tasks currently in flight",
		},
	)
)

// Register registers all bridge collectors with the given registerer.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		messagesForwarded,
		messagesDropped,
		sinkErrors,
		markerCommits,
		forwardDuration,
		inFlightTasks,
	)
}

// RecordForwarded increments the forwarded counter for (source, broker).
func RecordForwarded(source, broker string) {
	messagesForwarded.WithLabelValues(source, broker).Inc()
}

// RecordDropped increments the dropped counter for source.
func RecordDropped(source string) {
	messagesDropped.WithLabelValues(source).Inc()
}

// RecordSinkError increments the sink error counter; outcome is "ignored"
// when the error policy swallows the failure and "fatal" otherwise.
func RecordSinkError(broker string, ignored bool) {
	outcome := "fatal"
	if ignored {
		outcome = "ignored"
	}
	sinkErrors.WithLabelValues(broker, outcome).Inc()
}

// RecordMarkerCommit increments the marker commit counter for source.
func RecordMarkerCommit(source string) {
	markerCommits.WithLabelValues(source).Inc()
}

// ObserveForwardDuration records one forward's duration in seconds.
func ObserveForwardDuration(source string, seconds float64) {
	forwardDuration.WithLabelValues(source).Observe(seconds)
}

// TaskStarted increments the in-flight gauge.
func TaskStarted() { inFlightTasks.Inc() }

// TaskFinished decrements the in-flight gauge.
func TaskFinished() { inFlightTasks.Dec() }
