package ddl

// KeyRole marks how a column participates in the warehouse's physical layout.
type KeyRole int

const (
	// KeyNone is an ordinary column.
	KeyNone KeyRole = iota
	// KeyDist makes the column the table's distribution key.
	KeyDist
	// KeySort makes the column the table's sort key.
	KeySort
	// KeyDistSort makes the column both distribution and sort key.
	KeyDistSort
)

// String returns a short label used in logs and error messages.
func (k KeyRole) String() string {
	switch k {
	case KeyNone:
		return "none"
	case KeyDist:
		return "dist"
	case KeySort:
		return "sort"
	case KeyDistSort:
		return "dist+sort"
	default:
		return "unknown"
	}
}

// IsDist reports whether the role includes the distribution key.
func (k KeyRole) IsDist() bool { return k == KeyDist || k == KeyDistSort }

// IsSort reports whether the role includes the sort key.
func (k KeyRole) IsSort() bool { return k == KeySort || k == KeyDistSort }

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: column name, emitted verbatim (unquoted)
//   - SQLType: warehouse SQL type (e.g., VARCHAR(18), INTEGER, TIMESTAMP)
//   - Nullable: whether NULL is allowed
//   - Key: distribution/sort role
//   - Identity: render the column as an auto-increment IDENTITY(0,1)
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
	Key      KeyRole
	Identity bool
}

// TableDef holds the table name and its ordered columns.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// Column returns the named column and whether it exists.
func (t TableDef) Column(name string) (ColumnDef, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// ColumnNames returns the column names in declaration order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
