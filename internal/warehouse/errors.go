package warehouse

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"dwh/internal/statements"
)

// ConnectionError means the warehouse endpoint could not be reached or
// refused the session. It is fatal for the run.
type ConnectionError struct {
	Host     string
	Port     int
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to warehouse %s:%d/%s: %v", e.Host, e.Port, e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StatementError is a single statement the warehouse rejected. The pipeline
// logs it and moves on to the next statement.
type StatementError struct {
	Statement statements.Statement
	// SQLState is the server error code when the warehouse reported one.
	SQLState string
	Err      error
}

func newStatementError(st statements.Statement, err error) *StatementError {
	se := &StatementError{Statement: st, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se.SQLState = pgErr.Code
	}
	return se
}

func (e *StatementError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("statement %s on %s failed (SQLSTATE %s): %v", e.Statement.Name, e.Statement.Target, e.SQLState, e.Err)
	}
	return fmt.Sprintf("statement %s on %s failed: %v", e.Statement.Name, e.Statement.Target, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }
