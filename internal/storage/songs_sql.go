package storage

import (
	"fmt"
	"strconv"
	"strings"

	"vivpro-songs/internal/models"
)

// songFieldColumns maps catalog field names to their column, in select order.
var songFieldColumns = []struct {
	field  string
	column string
}{
	{"idx", "idx"},
	{"id", "id"},
	{"title", "title"},
	{"danceability", "danceability"},
	{"energy", "energy"},
	{"key", `"key"`},
	{"loudness", "loudness"},
	{"mode", `"mode"`},
	{"acousticness", "acousticness"},
	{"instrumentalness", "instrumentalness"},
	{"liveness", "liveness"},
	{"valence", "valence"},
	{"tempo", "tempo"},
	{"duration_ms", "duration_ms"},
	{"time_signature", "time_signature"},
	{"num_bars", "num_bars"},
	{"num_sections", "num_sections"},
	{"num_segments", "num_segments"},
	{"song_class", `"class"`},
}

var songSelectList = func() string {
	cols := make([]string, len(songFieldColumns))
	for i, fc := range songFieldColumns {
		cols[i] = fc.column
	}
	return strings.Join(cols, ", ")
}()

// SortableSongFields lists the catalog field names accepted by SongQuery.OrderBy.
func SortableSongFields() []string {
	fields := make([]string, len(songFieldColumns))
	for i, fc := range songFieldColumns {
		fields[i] = fc.field
	}
	return fields
}

func songColumn(field string) (string, bool) {
	for _, fc := range songFieldColumns {
		if fc.field == field {
			return fc.column, true
		}
	}
	return "", false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSong(row rowScanner) (models.Song, error) {
	var s models.Song
	err := row.Scan(
		&s.Idx, &s.ID, &s.Title, &s.Danceability, &s.Energy, &s.Key, &s.Loudness, &s.Mode,
		&s.Acousticness, &s.Instrumentalness, &s.Liveness, &s.Valence, &s.Tempo,
		&s.DurationMs, &s.TimeSignature, &s.NumBars, &s.NumSections, &s.NumSegments, &s.SongClass,
	)
	return s, err
}

func songArgs(s models.Song) []any {
	return []any{
		s.Idx, s.ID, s.Title, s.Danceability, s.Energy, s.Key, s.Loudness, s.Mode,
		s.Acousticness, s.Instrumentalness, s.Liveness, s.Valence, s.Tempo,
		s.DurationMs, s.TimeSignature, s.NumBars, s.NumSections, s.NumSegments, s.SongClass,
	}
}

// dialect captures the few SQL differences between Postgres and SQLite.
type dialect struct {
	placeholder func(n int) string
	likeOp      string
	textCast    string
}

var (
	postgresDialect = dialect{
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		likeOp:      "ILIKE",
		textCast:    "::text",
	}
	sqliteDialect = dialect{
		placeholder: func(int) string { return "?" },
		likeOp:      "LIKE",
	}
)

func (d dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

func (d dialect) insertSongSQL() string {
	return fmt.Sprintf(`INSERT INTO songs (%s) VALUES (%s) ON CONFLICT (idx, id) DO NOTHING`,
		songSelectList, d.placeholders(1, len(songFieldColumns)))
}

func (d dialect) getSongSQL() string {
	return fmt.Sprintf(`SELECT %s FROM songs WHERE idx = %s AND id = %s`,
		songSelectList, d.placeholder(1), d.placeholder(2))
}

func (d dialect) upsertRatingSQL() string {
	return fmt.Sprintf(`INSERT INTO ratings (song_idx, song_id, user_id, rating) VALUES (%s)
ON CONFLICT (song_idx, song_id, user_id) DO UPDATE SET rating = excluded.rating`, d.placeholders(1, 4))
}

func (d dialect) listSongsSQL(q SongQuery) (string, []any, error) {
	column, ok := songColumn(q.OrderBy)
	if !ok {
		return "", nil, fmt.Errorf("unsupported sort field %q", q.OrderBy)
	}
	if q.Limit <= 0 {
		return "", nil, fmt.Errorf("limit must be positive")
	}
	if q.Offset < 0 {
		return "", nil, fmt.Errorf("offset must not be negative")
	}
	var (
		b    strings.Builder
		args []any
	)
	fmt.Fprintf(&b, "SELECT %s FROM songs", songSelectList)
	if q.TitleContains != "" {
		args = append(args, escapeLike(q.TitleContains))
		fmt.Fprintf(&b, ` WHERE title %s '%%' || %s%s || '%%' ESCAPE '\'`, d.likeOp, d.placeholder(len(args)), d.textCast)
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	// idx, id keeps pages stable when the sort column has ties.
	fmt.Fprintf(&b, " ORDER BY %s %s, idx ASC, id ASC", column, direction)
	args = append(args, q.Limit, q.Offset)
	fmt.Fprintf(&b, " LIMIT %s OFFSET %s", d.placeholder(len(args)-1), d.placeholder(len(args)))
	return b.String(), args, nil
}

func (d dialect) songRatingsSQL(userID string, keys []models.SongKey) (string, []any) {
	args := make([]any, 0, len(keys)+1)
	args = append(args, userID)
	for _, key := range keys {
		args = append(args, key.Idx)
	}
	query := fmt.Sprintf(`SELECT r.song_idx, r.song_id, AVG(r.rating),
       COALESCE(MAX(CASE WHEN r.user_id = %s%s THEN r.rating END), 0)
FROM ratings r
JOIN songs s ON s.idx = r.song_idx AND s.id = r.song_id
WHERE r.song_idx IN (%s)
GROUP BY r.song_idx, r.song_id`, d.placeholder(1), d.textCast, d.placeholders(2, len(keys)))
	return query, args
}

// collectRatings keeps only rows whose composite key was requested.
func collectRatings(keys []models.SongKey, next func() bool, scan func(*models.SongKey, *models.RatingSummary) error) (map[models.SongKey]models.RatingSummary, error) {
	wanted := make(map[models.SongKey]struct{}, len(keys))
	for _, key := range keys {
		wanted[key] = struct{}{}
	}
	out := make(map[models.SongKey]models.RatingSummary, len(keys))
	for next() {
		var (
			key     models.SongKey
			summary models.RatingSummary
		)
		if err := scan(&key, &summary); err != nil {
			return nil, err
		}
		if _, ok := wanted[key]; ok {
			out[key] = summary
		}
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
