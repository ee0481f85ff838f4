// Package statements is the library of SQL the pipeline issues against the
// warehouse, grouped into four ordered sets: drop, create, load and
// transform.
//
// DROP and CREATE statements are rendered from the schema catalog so they can
// never drift from it. Load statements are produced by binding a typed
// LoadRequest; transform statements are fixed INSERT ... SELECT templates.
package statements

import (
	"fmt"

	"dwh/internal/ddl"
	"dwh/internal/schema"
)

// Stage names the pipeline phase a statement belongs to.
type Stage string

const (
	StageDrop      Stage = "drop"
	StageCreate    Stage = "create"
	StageLoad      Stage = "load"
	StageTransform Stage = "transform"
)

// Statement is a fully formed SQL statement ready to execute.
type Statement struct {
	// Name identifies the statement in logs and metrics, e.g. "create_dimUser".
	Name string
	// Stage is the pipeline phase.
	Stage Stage
	// Target is the table the statement writes to or alters.
	Target string
	// SQL is the statement text.
	SQL string
}

// Drop returns one DROP TABLE IF EXISTS per catalog table, staging tables
// first. Running the set against a warehouse missing some or all of the
// tables is safe.
func Drop(cat *schema.Catalog) ([]Statement, error) {
	defs := cat.All()
	out := make([]Statement, 0, len(defs))
	for _, t := range defs {
		sql, err := ddl.BuildDropTableSQL(t.Name)
		if err != nil {
			return nil, &ConfigError{Statement: "drop_" + t.Name, Reason: err.Error()}
		}
		out = append(out, Statement{Name: "drop_" + t.Name, Stage: StageDrop, Target: t.Name, SQL: sql})
	}
	return out, nil
}

// CreateStaging returns CREATE TABLE IF NOT EXISTS statements for the staging
// tables.
func CreateStaging(cat *schema.Catalog) ([]Statement, error) {
	return createAll(cat.Staging())
}

// CreateStar returns CREATE TABLE IF NOT EXISTS statements for the fact and
// dimension tables. An existing table with a different shape is left as is.
func CreateStar(cat *schema.Catalog) ([]Statement, error) {
	return createAll(cat.Star())
}

func createAll(defs []ddl.TableDef) ([]Statement, error) {
	out := make([]Statement, 0, len(defs))
	for _, t := range defs {
		sql, err := ddl.BuildCreateTableSQL(t)
		if err != nil {
			return nil, &ConfigError{Statement: "create_" + t.Name, Reason: err.Error()}
		}
		out = append(out, Statement{Name: "create_" + t.Name, Stage: StageCreate, Target: t.Name, SQL: sql})
	}
	return out, nil
}

// ConfigError reports a statement that cannot be produced from the current
// configuration. It is fatal: the pipeline aborts before executing anything.
type ConfigError struct {
	Statement string
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("statement %s: %s: %s", e.Statement, e.Field, e.Reason)
	}
	return fmt.Sprintf("statement %s: %s", e.Statement, e.Reason)
}
