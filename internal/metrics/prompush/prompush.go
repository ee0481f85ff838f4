// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// A warehouse run is a short-lived batch job, so collected metrics are pushed
// to a Pushgateway on Flush instead of being exposed on a scrape endpoint.
// The metrics "job" label becomes the Pushgateway grouping key.
package prompush

import (
	"fmt"

	"dwh/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	statementCounter  *prometheus.CounterVec // dwh_statement_total
	statementDuration *prometheus.SummaryVec // dwh_statement_duration_seconds
	rowsCounter       *prometheus.CounterVec // dwh_rows_total
	runCounter        *prometheus.CounterVec // dwh_run_total
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name; defaults to "dwh".
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "dwh"
	}

	reg := prometheus.NewRegistry()

	statementCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StatementTotal,
			Help: "Warehouse statements executed, partitioned by stage, statement and status.",
		},
		[]string{"stage", "statement", "status"},
	)
	statementDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StatementDuration,
			Help:       "Statement latency in seconds, partitioned by stage and statement.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"stage", "statement"},
	)
	rowsCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows written per table as reported by the warehouse.",
		},
		[]string{"table"},
	)
	runCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RunTotal,
			Help: "Finished pipeline runs by outcome (ok, partial, aborted).",
		},
		[]string{"outcome"},
	)

	for _, c := range []struct {
		what string
		c    prometheus.Collector
	}{
		{"statement counter", statementCounter},
		{"statement summary", statementDuration},
		{"rows counter", rowsCounter},
		{"run counter", runCounter},
	} {
		if err := reg.Register(c.c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", c.what, err)
		}
	}

	return &Backend{
		gatewayURL:        gatewayURL,
		jobName:           jobName,
		reg:               reg,
		statementCounter:  statementCounter,
		statementDuration: statementDuration,
		rowsCounter:       rowsCounter,
		runCounter:        runCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StatementTotal:
		if b.statementCounter == nil {
			return
		}
		b.statementCounter.WithLabelValues(labels["stage"], labels["statement"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowsCounter == nil {
			return
		}
		b.rowsCounter.WithLabelValues(labels["table"]).Add(delta)

	case metrics.RunTotal:
		if b.runCounter == nil {
			return
		}
		b.runCounter.WithLabelValues(labels["outcome"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StatementDuration || b.statementDuration == nil {
		return
	}
	b.statementDuration.WithLabelValues(labels["stage"], labels["statement"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
