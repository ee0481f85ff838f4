// Package ddl defines a small model for warehouse table definitions and
// renders the DROP/CREATE statements the pipeline issues from it.
//
// The dialect is Redshift's: identifiers are emitted verbatim (the warehouse
// folds them to lower case), IDENTITY(0,1) marks auto-increment columns, and
// distribution/sort keys are declared inline with DISTKEY and SORTKEY.
// Both renderers produce idempotent statements (IF EXISTS / IF NOT EXISTS).
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL renders a CREATE TABLE IF NOT EXISTS statement.
//
// Rules:
//
//   - t.Name must be non-empty.
//   - Each column must have a non-empty, unique Name and a SQLType.
//   - At most one column may carry the distribution key and at most one the
//     sort key; the warehouse rejects inline keys on several columns.
//   - A column is rendered as:
//
//     <Name> <SQLType> [IDENTITY(0,1)] [NOT NULL] [DISTKEY] [SORTKEY]
//
//   - The resulting statement has the form:
//
//     CREATE TABLE IF NOT EXISTS <Name> (
//     <col1-def>,
//     ...
//     );
func BuildCreateTableSQL(t TableDef) (string, error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: table %s: at least one column is required", name)
	}

	var (
		cols    = make([]string, 0, len(t.Columns))
		seen    = make(map[string]struct{}, len(t.Columns))
		distCol string
		sortCol string
	)

	for _, c := range t.Columns {
		cname := strings.TrimSpace(c.Name)
		if cname == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", name)
		}
		key := strings.ToLower(cname)
		if _, dup := seen[key]; dup {
			return "", fmt.Errorf("ddl: duplicate column %s in table %s", cname, name)
		}
		seen[key] = struct{}{}

		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", cname)
		}

		if c.Key.IsDist() {
			if distCol != "" {
				return "", fmt.Errorf("ddl: table %s has more than one DISTKEY column (%s, %s)", name, distCol, cname)
			}
			distCol = cname
		}
		if c.Key.IsSort() {
			if sortCol != "" {
				return "", fmt.Errorf("ddl: table %s has more than one SORTKEY column (%s, %s)", name, sortCol, cname)
			}
			sortCol = cname
		}

		var sb strings.Builder
		sb.WriteString(cname)
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if c.Identity {
			sb.WriteString(" IDENTITY(0,1)")
		}
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if c.Key.IsDist() {
			sb.WriteString(" DISTKEY")
		}
		if c.Key.IsSort() {
			sb.WriteString(" SORTKEY")
		}
		cols = append(cols, sb.String())
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		name,
		strings.Join(cols, ",\n  "),
	)
	return stmt, nil
}

// BuildDropTableSQL renders a DROP TABLE IF EXISTS statement. It never fails
// on a missing table at execution time.
func BuildDropTableSQL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", name), nil
}
