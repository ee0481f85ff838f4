// Package transform reshapes the staging tables into the star schema.
package transform

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"dwh/internal/statements"
	"dwh/internal/warehouse"
)

// Execer executes one library statement. *warehouse.Executor implements it.
type Execer interface {
	Exec(ctx context.Context, st statements.Statement) (int64, error)
}

// Runner executes transform statements in order.
type Runner struct {
	exec Execer
	log  zerolog.Logger
}

func New(exec Execer, log zerolog.Logger) *Runner {
	return &Runner{exec: exec, log: log.With().Str("component", "transform").Logger()}
}

// Result is the outcome of one transform statement.
type Result struct {
	Statement statements.Statement
	Rows      int64
	Err       *warehouse.StatementError
}

// Run executes every statement regardless of earlier failures and returns
// the failures in order, or nil when all succeeded.
func (r *Runner) Run(ctx context.Context, stmts []statements.Statement) []*warehouse.StatementError {
	var failed []*warehouse.StatementError
	for _, res := range r.RunAll(ctx, stmts) {
		if res.Err != nil {
			failed = append(failed, res.Err)
		}
	}
	return failed
}

// RunAll is Run with per-statement results. A cancelled context stops the
// run; the statement that was not started is reported with the context error.
func (r *Runner) RunAll(ctx context.Context, stmts []statements.Statement) []Result {
	results := make([]Result, 0, len(stmts))
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			return append(results, Result{Statement: st, Err: &warehouse.StatementError{Statement: st, Err: err}})
		}
		n, err := r.exec.Exec(ctx, st)
		if err != nil {
			var serr *warehouse.StatementError
			if !errors.As(err, &serr) {
				serr = &warehouse.StatementError{Statement: st, Err: err}
			}
			r.log.Warn().Str("table", st.Target).Err(err).Msg("transform failed; continuing")
			results = append(results, Result{Statement: st, Err: serr})
			continue
		}
		r.log.Info().Str("table", st.Target).Int64("rows", n).Msg("table populated")
		results = append(results, Result{Statement: st, Rows: n})
	}
	return results
}
