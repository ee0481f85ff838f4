// Package warehousetest provides an in-memory warehouse.Conn for tests.
//
// The fake understands just enough of the statement library to track which
// tables exist and how many rows each holds: DROP TABLE IF EXISTS,
// CREATE TABLE IF NOT EXISTS, COPY and INSERT INTO. Table names fold to lower
// case like the real warehouse.
package warehousetest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
)

var stmtRe = regexp.MustCompile(`(?is)^\s*(DROP TABLE IF EXISTS|CREATE TABLE IF NOT EXISTS|COPY|INSERT INTO)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// Conn is a fake warehouse session. The zero value is not usable; call New.
type Conn struct {
	mu sync.Mutex

	tables   map[string]int64
	executed []string
	closed   bool

	// CopyRows is the number of rows each COPY into a table appends.
	CopyRows map[string]int64
	// InsertRows is the number of rows each INSERT into a table appends.
	// Tables not listed append one row.
	InsertRows map[string]int64
	// Fail maps a lower-case table name to the error any statement targeting
	// it returns. The failed statement leaves the table unchanged.
	Fail map[string]error
}

// New returns an empty fake warehouse.
func New() *Conn {
	return &Conn{
		tables:     map[string]int64{},
		CopyRows:   map[string]int64{},
		InsertRows: map[string]int64{},
		Fail:       map[string]error{},
	}
}

func (c *Conn) Exec(_ context.Context, sql string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, fmt.Errorf("conn closed")
	}
	c.executed = append(c.executed, sql)

	m := stmtRe.FindStringSubmatch(sql)
	if m == nil {
		return 0, &pgconn.PgError{Code: "42601", Message: "syntax error in fake warehouse"}
	}
	verb := strings.ToUpper(m[1])
	table := strings.ToLower(m[2])

	if err, ok := c.Fail[table]; ok {
		return 0, err
	}

	switch verb {
	case "DROP TABLE IF EXISTS":
		delete(c.tables, table)
		return 0, nil
	case "CREATE TABLE IF NOT EXISTS":
		if _, ok := c.tables[table]; !ok {
			c.tables[table] = 0
		}
		return 0, nil
	}

	if _, ok := c.tables[table]; !ok {
		return 0, UndefinedTable(table)
	}
	var n int64
	if verb == "COPY" {
		n = c.CopyRows[table]
	} else {
		n = 1
		if v, ok := c.InsertRows[table]; ok {
			n = v
		}
	}
	c.tables[table] += n
	return n, nil
}

func (c *Conn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// UndefinedTable is the error the warehouse reports for a missing relation.
func UndefinedTable(table string) error {
	return &pgconn.PgError{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", table)}
}

// Tables returns the existing tables and their row counts.
func (c *Conn) Tables() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.tables))
	for k, v := range c.tables {
		out[k] = v
	}
	return out
}

// Rows returns the row count of table and whether it exists.
func (c *Conn) Rows(table string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.tables[strings.ToLower(table)]
	return n, ok
}

// Executed returns every statement received, in order.
func (c *Conn) Executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
