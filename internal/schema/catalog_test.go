package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwh/internal/ddl"
)

func TestDefaultCatalogOrder(t *testing.T) {
	t.Parallel()

	c := Default()

	names := func(defs []ddl.TableDef) []string {
		out := make([]string, len(defs))
		for i, d := range defs {
			out[i] = d.Name
		}
		return out
	}

	assert.Equal(t, []string{StagingEvents, StagingSongs}, names(c.Staging()))
	assert.Equal(t, []string{FactSongPlay, DimUser, DimSong, DimArtist, DimTime}, names(c.Star()))
	assert.Equal(t, append(names(c.Staging()), names(c.Star())...), names(c.All()))
}

// TestDefaultCatalogKeys pins the physical layout of the star schema.
func TestDefaultCatalogKeys(t *testing.T) {
	t.Parallel()

	c := Default()

	tests := []struct {
		table, column string
		key           ddl.KeyRole
	}{
		{FactSongPlay, "start_time", ddl.KeySort},
		{FactSongPlay, "song_id", ddl.KeyDist},
		{DimUser, "user_id", ddl.KeyDistSort},
		{DimSong, "song_id", ddl.KeyDistSort},
		{DimArtist, "artist_id", ddl.KeyDistSort},
		{DimTime, "start_time", ddl.KeySort},
	}
	for _, tt := range tests {
		def, ok := c.Lookup(tt.table)
		require.True(t, ok, tt.table)
		col, ok := def.Column(tt.column)
		require.True(t, ok, "%s.%s", tt.table, tt.column)
		assert.Equal(t, tt.key, col.Key, "%s.%s", tt.table, tt.column)
	}

	fact, _ := c.Lookup(FactSongPlay)
	id, _ := fact.Column("songplay_id")
	assert.True(t, id.Identity)

	songs, _ := c.Lookup(StagingSongs)
	songID, _ := songs.Column("song_id")
	assert.False(t, songID.Nullable)
}

func TestCatalogIsImmutable(t *testing.T) {
	t.Parallel()

	c := Default()
	star := c.Star()
	star[0].Name = "mutated"
	star[1].Columns[0].Name = "mutated"

	again := c.Star()
	assert.Equal(t, FactSongPlay, again[0].Name)
	assert.Equal(t, "user_id", again[1].Columns[0].Name)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	def, ok := Default().Lookup("DIMUSER")
	require.True(t, ok)
	assert.Equal(t, DimUser, def.Name)

	_, ok = Default().Lookup("nope")
	assert.False(t, ok)
}

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	col := []ddl.ColumnDef{{Name: "id", SQLType: "INTEGER"}}

	_, err := New([]ddl.TableDef{{Name: "a", Columns: col}}, []ddl.TableDef{{Name: "A", Columns: col}})
	require.ErrorContains(t, err, "duplicate table")

	_, err = New([]ddl.TableDef{{Name: "a"}}, nil)
	require.ErrorContains(t, err, "at least one column")
}
