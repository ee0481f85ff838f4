package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"

	"dwh/internal/metrics"
	"dwh/internal/statements"
)

// Executor runs library statements on a Conn, logging each one before it
// executes and recording its outcome.
type Executor struct {
	conn Conn
	log  zerolog.Logger
	job  string
	now  func() time.Time
}

// NewExecutor wraps conn. job labels the metrics of this run.
func NewExecutor(conn Conn, log zerolog.Logger, job string) *Executor {
	return &Executor{conn: conn, log: log, job: job, now: time.Now}
}

// Fingerprint is a short stable hash of the statement text, used to correlate
// log lines with the warehouse query history.
func Fingerprint(sql string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(sql))
}

// Exec executes st and returns the reported row count. Failures come back as
// *StatementError; the executor never retries.
func (e *Executor) Exec(ctx context.Context, st statements.Statement) (int64, error) {
	log := e.log.With().
		Str("stage", string(st.Stage)).
		Str("statement", st.Name).
		Str("target", st.Target).
		Str("fingerprint", Fingerprint(st.SQL)).
		Logger()

	log.Info().Msg("executing statement")
	log.Debug().Msg(st.SQL)

	start := e.now()
	n, err := e.conn.Exec(ctx, st.SQL)
	elapsed := e.now().Sub(start)
	metrics.RecordStatement(e.job, string(st.Stage), st.Name, err, elapsed)

	if err != nil {
		serr := newStatementError(st, err)
		log.Error().
			Err(err).
			Str("sqlstate", serr.SQLState).
			Str("sql", st.SQL).
			Dur("elapsed", elapsed).
			Msg("statement failed")
		return 0, serr
	}

	if st.Stage == statements.StageLoad || st.Stage == statements.StageTransform {
		metrics.RecordRows(e.job, st.Target, n)
	}
	log.Info().Int64("rows", n).Dur("elapsed", elapsed).Msg("statement committed")
	return n, nil
}
