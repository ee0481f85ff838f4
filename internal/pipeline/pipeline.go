// Package pipeline drives a warehouse run: drop, create, load and transform,
// in that order, on a single connection.
//
// Configuration problems (an unbindable load request, a table that cannot
// be rendered) abort the run before the first statement executes. Once
// statements run, each one is isolated: a failure is recorded in the Report
// and the run continues.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"dwh/internal/loader"
	"dwh/internal/metrics"
	"dwh/internal/schema"
	"dwh/internal/statements"
	"dwh/internal/transform"
	"dwh/internal/warehouse"
)

var now = time.Now

// Driver sequences the statement sets of one run.
type Driver struct {
	exec   *warehouse.Executor
	cat    *schema.Catalog
	loads  []statements.LoadRequest
	log    zerolog.Logger
	job    string
	runID  string
	loader *loader.Loader
	xform  *transform.Runner
}

// Options tune a Driver. Zero values pick defaults.
type Options struct {
	// Job labels metrics; defaults to "dwh".
	Job string
	// RunID tags every log line; defaults to a random UUID.
	RunID string
}

// New prepares a run on conn. loads are the bulk-load requests in execution
// order.
func New(conn warehouse.Conn, cat *schema.Catalog, loads []statements.LoadRequest, log zerolog.Logger, opts Options) *Driver {
	if opts.Job == "" {
		opts.Job = "dwh"
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	log = log.With().Str("run_id", opts.RunID).Logger()
	exec := warehouse.NewExecutor(conn, log, opts.Job)
	return &Driver{
		exec:   exec,
		cat:    cat,
		loads:  loads,
		log:    log,
		job:    opts.Job,
		runID:  opts.RunID,
		loader: loader.New(exec, log),
		xform:  transform.New(exec, log),
	}
}

// RunID identifies this driver's runs in logs.
func (d *Driver) RunID() string { return d.runID }

// Run executes the full pipeline: drop all, create staging, create star,
// load, transform.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	// Bind everything first so a configuration error leaves the warehouse
	// untouched.
	if _, err := statements.BindAll(d.loads); err != nil {
		return nil, err
	}
	ddl, err := d.ddl()
	if err != nil {
		return nil, err
	}

	rep := d.newReport()
	if err := d.runDDL(ctx, rep, ddl); err != nil {
		return d.finish(rep, err), err
	}
	err = d.runETL(ctx, rep)
	return d.finish(rep, err), err
}

// CreateTables drops every table and recreates the staging and star tables.
func (d *Driver) CreateTables(ctx context.Context) (*Report, error) {
	ddl, err := d.ddl()
	if err != nil {
		return nil, err
	}
	rep := d.newReport()
	err = d.runDDL(ctx, rep, ddl)
	return d.finish(rep, err), err
}

// ETL loads the staging tables and populates the star schema. The tables
// must already exist.
func (d *Driver) ETL(ctx context.Context) (*Report, error) {
	if _, err := statements.BindAll(d.loads); err != nil {
		return nil, err
	}
	rep := d.newReport()
	err := d.runETL(ctx, rep)
	return d.finish(rep, err), err
}

func (d *Driver) ddl() ([][]statements.Statement, error) {
	drop, err := statements.Drop(d.cat)
	if err != nil {
		return nil, err
	}
	staging, err := statements.CreateStaging(d.cat)
	if err != nil {
		return nil, err
	}
	star, err := statements.CreateStar(d.cat)
	if err != nil {
		return nil, err
	}
	return [][]statements.Statement{drop, staging, star}, nil
}

func (d *Driver) newReport() *Report {
	rep := &Report{RunID: d.runID, Started: now()}
	d.log.Info().Msg("run started")
	return rep
}

// finish closes the report. A non-nil err means the run stopped early.
func (d *Driver) finish(rep *Report, err error) *Report {
	rep.Finished = now()
	rep.Err = err
	metrics.RecordRun(d.job, rep.Outcome())
	return rep
}

func (d *Driver) runDDL(ctx context.Context, rep *Report, sets [][]statements.Statement) error {
	for _, set := range sets {
		for _, st := range set {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := d.exec.Exec(ctx, st)
			rep.record(st.Stage, n, asStatementError(st, err))
		}
	}
	return nil
}

func (d *Driver) runETL(ctx context.Context, rep *Report) error {
	results, err := d.loader.LoadAll(ctx, d.loads)
	for _, r := range results {
		rep.record(statements.StageLoad, r.Rows, r.Err)
	}
	if err != nil {
		return err
	}

	for _, r := range d.xform.RunAll(ctx, statements.Transforms()) {
		rep.record(statements.StageTransform, r.Rows, r.Err)
	}
	return ctx.Err()
}

func asStatementError(st statements.Statement, err error) *warehouse.StatementError {
	if err == nil {
		return nil
	}
	var serr *warehouse.StatementError
	if errors.As(err, &serr) {
		return serr
	}
	return &warehouse.StatementError{Statement: st, Err: err}
}
