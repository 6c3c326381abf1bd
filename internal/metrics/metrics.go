// Package metrics holds the service's Prometheus collectors. Scraped from
// /metrics on the API process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsOpened counts fresh session documents written (reuse of an
	// active session does not count).
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_sessions_opened_total",
		Help: "Number of attendance sessions opened.",
	})

	// ScansRecorded counts attendance records written, resubmissions
	// included.
	ScansRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_scans_recorded_total",
		Help: "Number of attendance scans recorded.",
	})

	// SweptSessions counts malformed session documents removed by sweeps.
	SweptSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_swept_sessions_total",
		Help: "Number of invalid session documents removed.",
	})
)
