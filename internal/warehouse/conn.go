// Package warehouse connects to the Redshift warehouse over the Postgres wire
// protocol and executes statements one at a time.
//
// Every statement runs in its own transaction and is committed before the
// next one starts, so a failing statement rolls back alone and leaves the
// work of earlier statements in place.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// Conn is a single warehouse session.
type Conn interface {
	// Exec runs sql in its own transaction and commits it. It returns the
	// number of rows the warehouse reports for the statement.
	Exec(ctx context.Context, sql string) (int64, error)
	Close(ctx context.Context) error
}

// Params are the connection settings for the warehouse endpoint.
type Params struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the parameters as a postgres:// URL.
func (p Params) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host + ":" + strconv.Itoa(p.Port),
		Path:   "/" + p.Database,
	}
	if p.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", p.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Redacted is DSN with the password masked, for logging.
func (p Params) Redacted() string {
	masked := p
	if masked.Password != "" {
		masked.Password = "xxxxx"
	}
	return masked.DSN()
}

// PGConn is a Conn backed by one long-lived pgx connection.
type PGConn struct {
	conn *pgx.Conn
}

// connect is swapped in tests.
var connect = pgx.ConnectConfig

// Connect opens the warehouse session. Any failure is a *ConnectionError.
func Connect(ctx context.Context, p Params) (*PGConn, error) {
	c, err := ConnectDSN(ctx, p.DSN())
	if err != nil {
		var cerr *ConnectionError
		if errors.As(err, &cerr) {
			cerr.Host, cerr.Port, cerr.Database = p.Host, p.Port, p.Database
		}
		return nil, err
	}
	return c, nil
}

// ConnectDSN opens a session from a connection string.
func ConnectDSN(ctx context.Context, dsn string) (*PGConn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("parse dsn: %w", err)}
	}
	// Redshift does not support every extended-protocol feature pgx relies on
	// for statement caching; plain text statements are all the pipeline needs.
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, &ConnectionError{Host: cfg.Host, Port: int(cfg.Port), Database: cfg.Database, Err: err}
	}
	return &PGConn{conn: conn}, nil
}

func (c *PGConn) Exec(ctx context.Context, sql string) (int64, error) {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	tag, err := tx.Exec(ctx, sql)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (c *PGConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}
