// Package loader bulk-copies the raw JSON sources into the staging tables.
//
// Loads append: the loader never truncates, so running it twice without
// dropping the staging tables doubles their contents.
package loader

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

// Loader binds load requests and runs them through an Execer.
type Loader struct {
	exec Execer
	log  zerolog.Logger
}

func New(exec Execer, log zerolog.Logger) *Loader {
	return &Loader{exec: exec, log: log.With().Str("component", "loader").Logger()}
}

// Load binds and executes a single request. A bind failure is a
// *statements.ConfigError and nothing is executed; a warehouse failure is a
// *warehouse.StatementError.
func (l *Loader) Load(ctx context.Context, req statements.LoadRequest) (int64, error) {
	st, err := req.Bind()
	if err != nil {
		return 0, err
	}
	return l.run(ctx, st)
}

func (l *Loader) run(ctx context.Context, st statements.Statement) (int64, error) {
	n, err := l.exec.Exec(ctx, st)
	if err != nil {
		l.log.Warn().Str("table", st.Target).Err(err).Msg("load failed; continuing with the next source")
		return 0, err
	}
	l.log.Info().Str("table", st.Target).Int64("rows", n).Msg("staging table loaded")
	return n, nil
}

// Result is the outcome of one load in LoadAll.
type Result struct {
	Kind  statements.LoadKind
	Table string
	Rows  int64
	Err   *warehouse.StatementError
}

// LoadAll binds every request before executing any of them; a bind failure
// returns a *statements.ConfigError and leaves the warehouse untouched.
// The bound loads then run in order and a failing load does not stop the next.
func (l *Loader) LoadAll(ctx context.Context, reqs []statements.LoadRequest) ([]Result, error) {
	stmts, err := statements.BindAll(reqs)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(stmts))
	for i, st := range stmts {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := Result{Kind: reqs[i].Kind, Table: st.Target}
		n, err := l.run(ctx, st)
		if err != nil {
			var serr *warehouse.StatementError
			if !errors.As(err, &serr) {
				serr = &warehouse.StatementError{Statement: st, Err: err}
			}
			res.Err = serr
		}
		res.Rows = n
		results = append(results, res)
	}
	return results, nil
}
