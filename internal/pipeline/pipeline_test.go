package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwh/internal/metrics"
	"dwh/internal/schema"
	"dwh/internal/statements"
	"dwh/internal/warehouse"
	"dwh/internal/warehouse/warehousetest"
)

var allTables = []string{
	"staging_events", "staging_songs",
	"factsongplay", "dimuser", "dimsong", "dimartist", "dimtime",
}

func loads() []statements.LoadRequest {
	return statements.LoadRequests(statements.Sources{
		Events:          "s3://udacity-dend/log_data",
		EventsJSONPaths: "s3://udacity-dend/log_json_path.json",
		Songs:           "s3://udacity-dend/song_data",
	}, "arn:aws:iam::123456789012:role/dwhRole", "us-west-2")
}

func newFake() *warehousetest.Conn {
	fake := warehousetest.New()
	fake.CopyRows["staging_events"] = 8056
	fake.CopyRows["staging_songs"] = 14896
	return fake
}

func newDriver(fake *warehousetest.Conn, reqs []statements.LoadRequest) *Driver {
	return New(fake, schema.Default(), reqs, zerolog.Nop(), Options{RunID: "test-run"})
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	t.Parallel()

	fake := newFake()
	rep, err := newDriver(fake, loads()).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Failed())
	assert.Equal(t, OutcomeOK, rep.Outcome())
	assert.Equal(t, "test-run", rep.RunID)

	executed := fake.Executed()
	require.Len(t, executed, 7+7+2+5)
	for i := 0; i < 7; i++ {
		assert.Contains(t, executed[i], "DROP TABLE IF EXISTS")
	}
	for i := 7; i < 14; i++ {
		assert.Contains(t, executed[i], "CREATE TABLE IF NOT EXISTS")
	}
	assert.Contains(t, executed[14], "COPY staging_events")
	assert.Contains(t, executed[15], "COPY staging_songs")
	assert.Contains(t, executed[20], "INSERT INTO factSongPlay")

	require.Len(t, rep.Stages, 4)
	assert.Equal(t, StageReport{Stage: statements.StageLoad, Executed: 2, Rows: 8056 + 14896}, rep.Stages[2])
	assert.Equal(t, 5, rep.Stages[3].Executed)

	tables := fake.Tables()
	for _, tbl := range allTables {
		_, ok := tables[tbl]
		assert.True(t, ok, tbl)
	}
}

func TestDropCreateDropIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := newFake()
	d := newDriver(fake, loads())
	ctx := context.Background()
	cat := schema.Default()

	drop, err := statements.Drop(cat)
	require.NoError(t, err)

	// Dropping an empty warehouse succeeds.
	for _, st := range drop {
		_, err := fake.Exec(ctx, st.SQL)
		require.NoError(t, err)
	}

	rep, err := d.CreateTables(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Failed())
	assert.Len(t, fake.Tables(), 7)

	// A second create on existing tables is a no-op.
	rep, err = d.CreateTables(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Failed())
	assert.Len(t, fake.Tables(), 7)

	for _, st := range drop {
		_, err := fake.Exec(ctx, st.SQL)
		require.NoError(t, err)
	}
	assert.Empty(t, fake.Tables())
}

func TestCreateTablesResetsData(t *testing.T) {
	t.Parallel()

	fake := newFake()
	d := newDriver(fake, loads())
	ctx := context.Background()

	_, err := d.Run(ctx)
	require.NoError(t, err)
	n, _ := fake.Rows("staging_events")
	require.Equal(t, int64(8056), n)

	_, err = d.CreateTables(ctx)
	require.NoError(t, err)
	n, _ = fake.Rows("staging_events")
	assert.Zero(t, n)
}

func TestETLTwiceAppends(t *testing.T) {
	t.Parallel()

	fake := newFake()
	d := newDriver(fake, loads())
	ctx := context.Background()

	_, err := d.CreateTables(ctx)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		rep, err := d.ETL(ctx)
		require.NoError(t, err)
		assert.False(t, rep.Failed())
	}

	events, _ := fake.Rows("staging_events")
	dimUser, _ := fake.Rows("dimuser")
	assert.Equal(t, int64(2*8056), events)
	assert.Equal(t, int64(2), dimUser)
}

func TestFailingDimArtistIsIsolated(t *testing.T) {
	t.Parallel()

	fake := newFake()
	fake.InsertRows["dimuser"] = 96
	d := newDriver(fake, loads())
	ctx := context.Background()

	_, err := d.CreateTables(ctx)
	require.NoError(t, err)
	fake.Fail["dimartist"] = errors.New("value too long for type character varying(18)")

	var buf bytes.Buffer
	rep, err := d.ETL(ctx)
	require.NoError(t, err)
	require.True(t, rep.Failed())
	assert.Equal(t, OutcomePartial, rep.Outcome())
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, schema.DimArtist, rep.Failures[0].Statement.Target)

	tables := fake.Tables()
	assert.Zero(t, tables["dimartist"])
	assert.Equal(t, int64(96), tables["dimuser"])
	assert.Equal(t, int64(1), tables["factsongplay"])
	assert.Equal(t, int64(14896), tables["staging_songs"])

	rep.Log(zerolog.New(&buf))
	assert.Contains(t, buf.String(), `"outcome":"partial"`)
	assert.Contains(t, buf.String(), `"statement":"insert_dimArtist"`)
}

func TestFailedDropDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	fake := newFake()
	fake.Fail["dimtime"] = errors.New("permission denied")

	rep, err := newDriver(fake, loads()).Run(context.Background())
	require.NoError(t, err)
	// drop, create and insert on dimTime fail; everything else runs.
	require.Len(t, rep.Failures, 3)
	assert.Equal(t, 1, rep.Stages[0].Failed)
	assert.Equal(t, 1, rep.Stages[1].Failed)
	assert.Equal(t, 1, rep.Stages[3].Failed)

	n, _ := fake.Rows("factsongplay")
	assert.Equal(t, int64(1), n)
}

func TestConfigErrorLeavesWarehouseUntouched(t *testing.T) {
	t.Parallel()

	reqs := loads()
	reqs[0].Params.JSONPaths = ""

	for name, run := range map[string]func(d *Driver) (*Report, error){
		"run": func(d *Driver) (*Report, error) { return d.Run(context.Background()) },
		"etl": func(d *Driver) (*Report, error) { return d.ETL(context.Background()) },
	} {
		name, run := name, run
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fake := newFake()
			rep, err := run(newDriver(fake, reqs))
			var cerr *statements.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Nil(t, rep)
			assert.Empty(t, fake.Executed())
		})
	}
}

func TestETLWithoutTablesReportsFailures(t *testing.T) {
	t.Parallel()

	fake := newFake()
	rep, err := newDriver(fake, loads()).ETL(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Failures, 7)
	for _, f := range rep.Failures {
		assert.Equal(t, "42P01", f.SQLState)
	}
}

func TestCancelledRun(t *testing.T) {
	t.Parallel()

	fake := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newDriver(fake, loads()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Empty(t, fake.Executed())
}

// runRecorder captures the outcome label of every finished run.
type runRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *runRecorder) IncCounter(name string, _ float64, labels metrics.Labels) {
	if name != metrics.RunTotal {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, labels["outcome"])
}

func (r *runRecorder) ObserveHistogram(string, float64, metrics.Labels) {}
func (r *runRecorder) Flush() error                                   { return nil }

func TestStoppedRunIsReportedAborted(t *testing.T) {
	rec := &runRecorder{}
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(&runRecorder{}) })

	tests := []struct {
		name string
		run  func(ctx context.Context, d *Driver) (*Report, error)
	}{
		{"run", func(ctx context.Context, d *Driver) (*Report, error) { return d.Run(ctx) }},
		{"create tables", func(ctx context.Context, d *Driver) (*Report, error) { return d.CreateTables(ctx) }},
		{"etl", func(ctx context.Context, d *Driver) (*Report, error) { return d.ETL(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.outcomes = nil
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var buf bytes.Buffer
			d := New(newFake(), schema.Default(), loads(), zerolog.New(&buf), Options{RunID: "test-run"})
			rep, err := tt.run(ctx, d)
			require.ErrorIs(t, err, context.Canceled)
			require.NotNil(t, rep)
			assert.ErrorIs(t, rep.Err, context.Canceled)
			assert.Equal(t, OutcomeAborted, rep.Outcome())
			assert.Equal(t, []string{OutcomeAborted}, rec.outcomes)

			buf.Reset()
			rep.Log(zerolog.New(&buf))
			assert.Contains(t, buf.String(), `"level":"error"`)
			assert.Contains(t, buf.String(), `"outcome":"aborted"`)
			assert.Contains(t, buf.String(), `"error":"context canceled"`)
			assert.Contains(t, buf.String(), `"message":"run finished"`)
		})
	}
}

func TestCompletedRunIsReportedOK(t *testing.T) {
	rec := &runRecorder{}
	metrics.SetBackend(rec)
	t.Cleanup(func() { metrics.SetBackend(&runRecorder{}) })

	rep, err := newDriver(newFake(), loads()).Run(context.Background())
	require.NoError(t, err)
	assert.NoError(t, rep.Err)
	assert.Equal(t, OutcomeOK, rep.Outcome())
	assert.Equal(t, []string{OutcomeOK}, rec.outcomes)
}

func TestReportOutcome(t *testing.T) {
	t.Parallel()

	failure := &warehouse.StatementError{Err: errors.New("boom")}
	tests := []struct {
		name string
		rep  Report
		want string
	}{
		{"clean", Report{}, OutcomeOK},
		{"statement failures", Report{Failures: []*warehouse.StatementError{failure}}, OutcomePartial},
		{"stopped early", Report{Err: context.Canceled}, OutcomeAborted},
		{"stopped after failures", Report{Failures: []*warehouse.StatementError{failure}, Err: context.Canceled}, OutcomeAborted},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.rep.Outcome())
		})
	}
}

func TestNewGeneratesRunID(t *testing.T) {
	t.Parallel()

	a := New(newFake(), schema.Default(), loads(), zerolog.Nop(), Options{})
	b := New(newFake(), schema.Default(), loads(), zerolog.Nop(), Options{})
	assert.Len(t, a.RunID(), 36)
	assert.NotEqual(t, a.RunID(), b.RunID())
}
