package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"dwh/internal/cluster"
	"dwh/internal/source"
)

// newS3 is replaced in tests.
var newS3 = func(ctx context.Context, a *app) (source.S3API, error) {
	awsCfg, err := cluster.LoadAWSConfig(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg), nil
}

func newSourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Check that the configured S3 bulk-load locations hold data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.teardown()

			results, err := a.checkSources(cmd.Context())
			if err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), results)
			return sourcesErr(results)
		},
	}
}

func (a *app) checkSources(ctx context.Context) ([]source.Result, error) {
	api, err := newS3(ctx, a)
	if err != nil {
		return nil, err
	}
	uris := []string{a.cfg.S3.LogData, a.cfg.S3.LogJSONPath, a.cfg.S3.SongData}
	return source.NewChecker(api, a.log).Verify(ctx, uris), nil
}

// verifySources fails when any bulk-load location is unusable.
func (a *app) verifySources(ctx context.Context) error {
	results, err := a.checkSources(ctx)
	if err != nil {
		return err
	}
	return sourcesErr(results)
}

func sourcesErr(results []source.Result) error {
	var missing []string
	for _, r := range results {
		if !r.OK() {
			missing = append(missing, r.URI)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &sourcesError{Missing: missing}
}

func printSources(w io.Writer, results []source.Result) {
	for _, r := range results {
		state := "ok"
		switch {
		case r.Err != nil:
			state = "error: " + r.Err.Error()
		case !r.Exists:
			state = "missing"
		}
		fmt.Fprintf(w, "%-60s %s\n", r.URI, state)
	}
}
