package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"dwh/internal/statements"
	"dwh/internal/warehouse"
)

// Run outcomes.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
	// OutcomeAborted means the run stopped before its last statement,
	// usually because the context was cancelled.
	OutcomeAborted = "aborted"
)

// StageReport counts what happened in one stage.
type StageReport struct {
	Stage    statements.Stage
	Executed int
	Failed   int
	Rows     int64
}

// Report summarises a run. Statement failures do not abort a run; they are
// collected here.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Stages   []StageReport
	Failures []*warehouse.StatementError
	// Err is why the run stopped early; nil when every statement was attempted.
	Err error
}

func (r *Report) stage(s statements.Stage) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == s {
			return &r.Stages[i]
		}
	}
	r.Stages = append(r.Stages, StageReport{Stage: s})
	return &r.Stages[len(r.Stages)-1]
}

func (r *Report) record(s statements.Stage, rows int64, err *warehouse.StatementError) {
	sr := r.stage(s)
	sr.Executed++
	if err != nil {
		sr.Failed++
		r.Failures = append(r.Failures, err)
		return
	}
	sr.Rows += rows
}

// Failed reports whether any statement failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// Outcome is OutcomeAborted when the run stopped early, OutcomePartial when
// any statement failed and OutcomeOK otherwise.
func (r *Report) Outcome() string {
	switch {
	case r.Err != nil:
		return OutcomeAborted
	case r.Failed():
		return OutcomePartial
	default:
		return OutcomeOK
	}
}

// Log writes the end-of-run summary: one line per stage, one per failure and
// a closing line with the outcome.
func (r *Report) Log(log zerolog.Logger) {
	for _, s := range r.Stages {
		log.Info().
			Str("stage", string(s.Stage)).
			Int("executed", s.Executed).
			Int("failed", s.Failed).
			Int64("rows", s.Rows).
			Msg("stage summary")
	}
	for _, f := range r.Failures {
		log.Error().
			Str("stage", string(f.Statement.Stage)).
			Str("statement", f.Statement.Name).
			Str("sqlstate", f.SQLState).
			Err(f.Err).
			Msg("statement failed during run")
	}
	ev := log.Info()
	switch {
	case r.Err != nil:
		ev = log.Error().Err(r.Err)
	case r.Failed():
		ev = log.Warn()
	}
	ev.Str("outcome", r.Outcome()).
		Int("failures", len(r.Failures)).
		Dur("elapsed", r.Finished.Sub(r.Started)).
		Msg("run finished")
}
