package main

import (
	"context"

	"github.com/spf13/cobra"

	"dwh/internal/cluster"
	"dwh/internal/pipeline"
	"dwh/internal/schema"
	"dwh/internal/statements"
	"dwh/internal/warehouse"
)

// openWarehouse gates on cluster status and opens the warehouse session. It
// is replaced in tests.
var openWarehouse = func(ctx context.Context, a *app) (warehouse.Conn, cluster.Description, error) {
	mgr, err := newManager(ctx, a)
	if err != nil {
		return nil, cluster.Description{}, err
	}
	d, err := mgr.EnsureAvailable(ctx)
	if err != nil {
		return nil, cluster.Description{}, err
	}

	params := cluster.ConnectionParams(d, a.cfg.Cluster)
	a.log.Info().Str("dsn", params.Redacted()).Msg("connecting to warehouse")
	conn, err := warehouse.Connect(ctx, params)
	if err != nil {
		return nil, cluster.Description{}, err
	}
	return conn, d, nil
}

type runFunc func(ctx context.Context, d *pipeline.Driver) (*pipeline.Report, error)

func newCreateTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Drop and recreate the staging and star-schema tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd, func(ctx context.Context, d *pipeline.Driver) (*pipeline.Report, error) {
				return d.CreateTables(ctx)
			})
		},
	}
}

func newETLCmd(a *app) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Bulk-load the S3 data into staging and populate the star schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd, func(ctx context.Context, d *pipeline.Driver) (*pipeline.Report, error) {
				if verify {
					if err := a.verifySources(ctx); err != nil {
						return nil, err
					}
				}
				return d.ETL(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&verify, "verify-sources", false, "check the S3 locations exist before loading")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Full run: drop, create, load and transform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runPipeline(cmd, func(ctx context.Context, d *pipeline.Driver) (*pipeline.Report, error) {
				return d.Run(ctx)
			})
		},
	}
}

// runPipeline performs the shared command flow: configuration, status gate,
// connection, the requested driver entry point and the run summary.
func (a *app) runPipeline(cmd *cobra.Command, run runFunc) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	defer a.teardown()

	ctx := cmd.Context()
	conn, desc, err := openWarehouse(ctx, a)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("close warehouse connection")
		}
	}()

	loads := statements.LoadRequests(statements.Sources{
		Events:          a.cfg.S3.LogData,
		EventsJSONPaths: a.cfg.S3.LogJSONPath,
		Songs:           a.cfg.S3.SongData,
	}, desc.RoleARN(), a.cfg.AWS.Region)

	d := pipeline.New(conn, schema.Default(), loads, a.log, pipeline.Options{Job: a.cfg.Metrics.Job})
	rep, err := run(ctx, d)
	if rep != nil {
		rep.Log(a.log)
	}
	if err != nil {
		return err
	}
	if rep.Failed() {
		return &partialRunError{RunID: rep.RunID, Failures: len(rep.Failures)}
	}
	return nil
}
