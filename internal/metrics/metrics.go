// Package metrics records operational metrics for warehouse runs behind a
// pluggable Backend.
//
// The default backend is a no-op, so instrumented code can always call the
// Record helpers. Concrete systems (Prometheus Pushgateway, DogStatsD) live in
// subpackages and are installed once by the CLI with SetBackend.
package metrics

import "time"

// Metric names shared by every backend.
const (
	StatementTotal    = "dwh_statement_total"
	StatementDuration = "dwh_statement_duration_seconds"
	RowsTotal         = "dwh_rows_total"
	RunTotal          = "dwh_run_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStatement counts one executed statement and observes its latency.
func RecordStatement(job, stage, name string, err error, d time.Duration) {
	lbls := Labels{
		"job":       job,
		"stage":     stage,
		"statement": name,
		"status":    status(err),
	}
	backend.IncCounter(StatementTotal, 1, lbls)
	backend.ObserveHistogram(StatementDuration, d.Seconds(), lbls)
}

// RecordRows adds n rows written to table. Non-positive counts are ignored;
// the warehouse reports -1 or 0 for statements without a row count.
func RecordRows(job, table string, n int64) {
	if n <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(n), Labels{
		"job":   job,
		"table": table,
	})
}

// RecordRun counts a finished pipeline run by its outcome.
func RecordRun(job, outcome string) {
	backend.IncCounter(RunTotal, 1, Labels{
		"job":     job,
		"outcome": outcome,
	})
}
