package statements

import "dwh/internal/schema"

// dimArtist is a straight projection: one row per staging_songs row, so an
// artist with several songs appears several times.
const artistInsert = `INSERT INTO dimArtist (artist_id, artist_name, artist_location,
                       artist_latitude, artist_longitude)
    SELECT artist_id, artist_name, artist_location,
           artist_latitude, artist_longitude
    FROM staging_songs;`

// dimSong keeps one row per song_id. ROW_NUMBER has no ORDER BY, so which
// duplicate survives is up to the engine.
const songInsert = `INSERT INTO dimSong (song_id, title, artist_id, year, duration)
    SELECT song_id, title, artist_id, year, duration
    FROM (
        SELECT song_id, title, artist_id, year, duration,
               ROW_NUMBER() OVER (PARTITION BY song_id) AS song_id_ranked
        FROM staging_songs
    ) AS ranked
    WHERE song_id_ranked = 1;`

// dimTime decomposes every non-null event timestamp. Not deduplicated.
const timeInsert = `INSERT INTO dimTime (start_time, hour, day, week, month, year, weekday)
    SELECT ts                         AS start_time,
           EXTRACT(hour      FROM ts) AS hour,
           EXTRACT(day       FROM ts) AS day,
           EXTRACT(week      FROM ts) AS week,
           EXTRACT(month     FROM ts) AS month,
           EXTRACT(year      FROM ts) AS year,
           EXTRACT(dayofweek FROM ts) AS weekday
    FROM staging_events
    WHERE ts IS NOT NULL;`

// dimUser keeps one arbitrary row per non-null userId.
const userInsert = `INSERT INTO dimUser (user_id, first_name, last_name, gender, level)
    SELECT userId    AS user_id,
           firstName AS first_name,
           lastName  AS last_name,
           gender    AS gender,
           level     AS level
    FROM (
        SELECT userId, firstName, lastName, gender, level,
               ROW_NUMBER() OVER (PARTITION BY userId) AS userid_ranked
        FROM staging_events
    ) AS ranked
    WHERE userid_ranked = 1 AND userId IS NOT NULL;`

// factSongPlay joins plays to songs on exact title and artist name. DISTINCT
// spans the whole projected row.
const songPlayInsert = `INSERT INTO factSongPlay (start_time, user_id, level, song_id, artist_id,
                          session_id, location, user_agent)
    SELECT DISTINCT
        e.ts        AS start_time,
        e.userId    AS user_id,
        e.level     AS level,
        s.song_id   AS song_id,
        s.artist_id AS artist_id,
        e.sessionId AS session_id,
        e.location  AS location,
        e.userAgent AS user_agent
    FROM staging_events e
    JOIN staging_songs s
        ON e.song   = s.title
       AND e.artist = s.artist_name
    WHERE e.page = 'NextSong';`

// Transforms returns the transform set in execution order: dimensions first,
// then the fact table.
func Transforms() []Statement {
	return []Statement{
		{Name: "insert_" + schema.DimArtist, Stage: StageTransform, Target: schema.DimArtist, SQL: artistInsert},
		{Name: "insert_" + schema.DimSong, Stage: StageTransform, Target: schema.DimSong, SQL: songInsert},
		{Name: "insert_" + schema.DimTime, Stage: StageTransform, Target: schema.DimTime, SQL: timeInsert},
		{Name: "insert_" + schema.DimUser, Stage: StageTransform, Target: schema.DimUser, SQL: userInsert},
		{Name: "insert_" + schema.FactSongPlay, Stage: StageTransform, Target: schema.FactSongPlay, SQL: songPlayInsert},
	}
}
