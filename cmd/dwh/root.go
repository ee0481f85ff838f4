package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dwh/internal/config"
	"dwh/internal/logging"
	"dwh/internal/metrics"
	"dwh/internal/metrics/datadog"
	"dwh/internal/metrics/prompush"
)

// app carries the state shared by every command: the persistent flags and,
// once setup has run, the configuration and logger.
type app struct {
	cfgPath string
	envFile string
	verbose bool

	cfg *config.Config
	log zerolog.Logger

	flushMetrics bool
}

func newApp() *app {
	return &app{log: zerolog.Nop()}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "dwh",
		Short: "Provision the Sparkify Redshift cluster and load its star schema",
		Long: `dwh manages the Sparkify data warehouse: it creates and deletes the
Redshift cluster with its IAM role, (re)creates the staging and star-schema
tables, bulk-loads the S3 event and song data and populates the star schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "dwh.yaml", "path to the YAML configuration file")
	pf.StringVar(&a.envFile, "env-file", ".env", "optional dotenv file loaded before environment overrides")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging (prints every statement)")

	root.AddCommand(
		newCreateClusterCmd(a),
		newDeleteClusterCmd(a),
		newStatusCmd(a),
		newCreateTablesCmd(a),
		newETLCmd(a),
		newRunCmd(a),
		newSourcesCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads and validates the configuration, builds the logger and selects
// the metrics backend. Every command that touches AWS or the warehouse calls
// it first and defers teardown.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgPath, a.envFile)
	if err != nil {
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			return fmt.Errorf("%w: %w", errBadConfig, err)
		}
		printIssues(cmd.ErrOrStderr(), cfgErr.Issues)
		return err
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	a.log = logging.New(level, cfg.Log.Format, cmd.ErrOrStderr())
	for _, iss := range config.Validate(cfg) {
		a.log.Warn().Str("path", iss.Path).Msg(iss.Message)
	}

	a.setupMetrics()
	return nil
}

// setupMetrics installs the configured backend. A backend that cannot be
// built leaves the nop backend in place; metrics never fail a command.
func (a *app) setupMetrics() {
	m := a.cfg.Metrics
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case "prompush":
		b, err = prompush.NewBackend(m.Job, m.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  m.DatadogNamespace,
			GlobalTags: m.Tags,
		})
	case "", "none":
		a.log.Debug().Msg("metrics disabled")
		return
	default:
		a.log.Warn().Str("backend", m.Backend).Msg("unknown metrics backend; metrics disabled")
		return
	}
	if err != nil {
		a.log.Warn().Err(err).Str("backend", m.Backend).Msg("metrics backend init failed; using nop")
		return
	}
	a.log.Info().Str("backend", m.Backend).Str("job", m.Job).Msg("metrics enabled")
	metrics.SetBackend(b)
	a.flushMetrics = true
}

func (a *app) teardown() {
	if !a.flushMetrics {
		return
	}
	if err := metrics.Flush(); err != nil {
		a.log.Warn().Err(err).Msg("metrics flush failed")
	}
}

func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}
