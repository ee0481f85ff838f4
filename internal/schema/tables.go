package schema

import "dwh/internal/ddl"

// nullable and required keep the column lists below readable.
func nullable(name, typ string) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, SQLType: typ, Nullable: true}
}

func required(name, typ string) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, SQLType: typ}
}

func keyed(name, typ string, key ddl.KeyRole) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, SQLType: typ, Key: key}
}

// stagingTables mirror the JSON documents 1:1. Nothing is deduplicated or
// constrained here apart from song_id.
func stagingTables() []ddl.TableDef {
	return []ddl.TableDef{
		{
			Name: StagingEvents,
			Columns: []ddl.ColumnDef{
				nullable("artist", "VARCHAR"),
				nullable("auth", "VARCHAR"),
				nullable("firstName", "VARCHAR"),
				nullable("gender", "CHAR(1)"),
				nullable("itemInSession", "INTEGER"),
				nullable("lastName", "VARCHAR"),
				nullable("length", "DECIMAL"),
				nullable("level", "VARCHAR"),
				nullable("location", "VARCHAR"),
				nullable("method", "CHAR(6)"),
				nullable("page", "VARCHAR"),
				nullable("registration", "DECIMAL"),
				nullable("sessionId", "INTEGER"),
				nullable("song", "VARCHAR"),
				nullable("status", "INTEGER"),
				nullable("ts", "TIMESTAMP"),
				nullable("userAgent", "VARCHAR"),
				nullable("userId", "INTEGER"),
			},
		},
		{
			Name: StagingSongs,
			Columns: []ddl.ColumnDef{
				nullable("artist_id", "VARCHAR(18)"),
				nullable("artist_latitude", "DECIMAL(9,6)"),
				nullable("artist_location", "VARCHAR"),
				nullable("artist_longitude", "DECIMAL(9,6)"),
				nullable("artist_name", "VARCHAR"),
				nullable("duration", "DECIMAL"),
				nullable("num_songs", "INTEGER"),
				required("song_id", "VARCHAR(18)"),
				nullable("title", "VARCHAR"),
				nullable("year", "INTEGER"),
			},
		},
	}
}

func starTables() []ddl.TableDef {
	return []ddl.TableDef{
		{
			Name: FactSongPlay,
			Columns: []ddl.ColumnDef{
				{Name: "songplay_id", SQLType: "INTEGER", Nullable: true, Identity: true},
				keyed("start_time", "TIMESTAMP", ddl.KeySort),
				required("user_id", "INTEGER"),
				nullable("level", "VARCHAR"),
				keyed("song_id", "VARCHAR(18)", ddl.KeyDist),
				required("artist_id", "VARCHAR(18)"),
				required("session_id", "INTEGER"),
				nullable("location", "VARCHAR"),
				nullable("user_agent", "VARCHAR"),
			},
		},
		{
			Name: DimUser,
			Columns: []ddl.ColumnDef{
				keyed("user_id", "INTEGER", ddl.KeyDistSort),
				required("first_name", "VARCHAR"),
				required("last_name", "VARCHAR"),
				required("gender", "CHAR(1)"),
				required("level", "VARCHAR"),
			},
		},
		{
			Name: DimSong,
			Columns: []ddl.ColumnDef{
				keyed("song_id", "VARCHAR(18)", ddl.KeyDistSort),
				required("title", "VARCHAR"),
				required("artist_id", "VARCHAR(18)"),
				required("year", "INTEGER"),
				required("duration", "DECIMAL"),
			},
		},
		{
			Name: DimArtist,
			Columns: []ddl.ColumnDef{
				keyed("artist_id", "VARCHAR(18)", ddl.KeyDistSort),
				required("artist_name", "VARCHAR"),
				nullable("artist_location", "VARCHAR"),
				nullable("artist_latitude", "DECIMAL(9,6)"),
				nullable("artist_longitude", "DECIMAL(9,6)"),
			},
		},
		{
			Name: DimTime,
			Columns: []ddl.ColumnDef{
				keyed("start_time", "TIMESTAMP", ddl.KeySort),
				nullable("hour", "INTEGER"),
				nullable("day", "INTEGER"),
				nullable("week", "INTEGER"),
				nullable("month", "INTEGER"),
				nullable("year", "INTEGER"),
				nullable("weekday", "INTEGER"),
			},
		},
	}
}
