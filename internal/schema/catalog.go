// Package schema is the catalog of warehouse tables the pipeline manages:
// two staging tables that receive raw bulk-copied records and the star
// schema (one fact table, four dimensions) populated from them.
//
// The catalog is fixed for the lifetime of the process. Changing a table
// shape means a full drop/recreate cycle; there is no migration support.
package schema

import (
	"fmt"
	"strings"

	"dwh/internal/ddl"
)

// Table names, emitted verbatim in every statement.
const (
	StagingEvents = "staging_events"
	StagingSongs  = "staging_songs"

	FactSongPlay = "factSongPlay"
	DimUser      = "dimUser"
	DimSong      = "dimSong"
	DimArtist    = "dimArtist"
	DimTime      = "dimTime"
)

// Catalog is an immutable, ordered registry of table definitions. Accessors
// return deep copies so callers cannot alter the registry.
type Catalog struct {
	staging []ddl.TableDef
	star    []ddl.TableDef
}

// New builds a catalog from staging and star definitions. Every definition
// must render to valid DDL and table names must be unique (case-insensitive,
// the warehouse folds identifiers).
func New(staging, star []ddl.TableDef) (*Catalog, error) {
	seen := map[string]struct{}{}
	for _, group := range [][]ddl.TableDef{staging, star} {
		for _, t := range group {
			if _, err := ddl.BuildCreateTableSQL(t); err != nil {
				return nil, fmt.Errorf("schema: %w", err)
			}
			k := strings.ToLower(t.Name)
			if _, dup := seen[k]; dup {
				return nil, fmt.Errorf("schema: duplicate table %s", t.Name)
			}
			seen[k] = struct{}{}
		}
	}
	return &Catalog{staging: cloneDefs(staging), star: cloneDefs(star)}, nil
}

// Default returns the Sparkify catalog. It panics only if the built-in
// definitions are malformed, which the package tests rule out.
func Default() *Catalog {
	c, err := New(stagingTables(), starTables())
	if err != nil {
		panic(err)
	}
	return c
}

// Staging returns the staging table definitions in creation order.
func (c *Catalog) Staging() []ddl.TableDef { return cloneDefs(c.staging) }

// Star returns the fact and dimension definitions in creation order.
func (c *Catalog) Star() []ddl.TableDef { return cloneDefs(c.star) }

// All returns staging tables followed by star tables.
func (c *Catalog) All() []ddl.TableDef {
	out := make([]ddl.TableDef, 0, len(c.staging)+len(c.star))
	out = append(out, cloneDefs(c.staging)...)
	return append(out, cloneDefs(c.star)...)
}

// Lookup finds a table by name (case-insensitive).
func (c *Catalog) Lookup(name string) (ddl.TableDef, bool) {
	for _, t := range c.All() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return ddl.TableDef{}, false
}

func cloneDefs(in []ddl.TableDef) []ddl.TableDef {
	out := make([]ddl.TableDef, len(in))
	for i, t := range in {
		out[i] = ddl.TableDef{Name: t.Name, Columns: append([]ddl.ColumnDef(nil), t.Columns...)}
	}
	return out
}
