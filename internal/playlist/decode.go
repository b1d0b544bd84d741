// Package playlist imports catalog data exported as a table of columns: a JSON
// object whose members are column names, each mapping a row ordinal (as a
// string) to the cell value.
package playlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"vivpro-songs/internal/models"
)

// ErrInvalidPlaylist marks input that does not form a complete rectangular
// table of the expected columns.
var ErrInvalidPlaylist = errors.New("invalid playlist")

// Columns lists every column a playlist must carry.
var Columns = []string{
	"id", "title", "danceability", "energy", "key", "loudness", "mode",
	"acousticness", "instrumentalness", "liveness", "valence", "tempo",
	"duration_ms", "time_signature", "num_bars", "num_sections",
	"num_segments", "class",
}

type table map[string]map[string]json.RawMessage

type cellSetter func(song *models.Song, raw json.RawMessage) error

var setters = map[string]cellSetter{
	"id": stringCell(func(s *models.Song, v string) { s.ID = v }),
	"title": stringCell(func(s *models.Song, v string) {
		s.Title = norm.NFC.String(v)
	}),
	"danceability":     floatCell(func(s *models.Song, v float64) { s.Danceability = v }),
	"energy":           floatCell(func(s *models.Song, v float64) { s.Energy = v }),
	"key":              intCell(func(s *models.Song, v int) { s.Key = v }),
	"loudness":         floatCell(func(s *models.Song, v float64) { s.Loudness = v }),
	"mode":             intCell(func(s *models.Song, v int) { s.Mode = v }),
	"acousticness":     floatCell(func(s *models.Song, v float64) { s.Acousticness = v }),
	"instrumentalness": floatCell(func(s *models.Song, v float64) { s.Instrumentalness = v }),
	"liveness":         floatCell(func(s *models.Song, v float64) { s.Liveness = v }),
	"valence":          floatCell(func(s *models.Song, v float64) { s.Valence = v }),
	"tempo":            floatCell(func(s *models.Song, v float64) { s.Tempo = v }),
	"duration_ms":      intCell(func(s *models.Song, v int) { s.DurationMs = v }),
	"time_signature":   intCell(func(s *models.Song, v int) { s.TimeSignature = v }),
	"num_bars":         intCell(func(s *models.Song, v int) { s.NumBars = v }),
	"num_sections":     intCell(func(s *models.Song, v int) { s.NumSections = v }),
	"num_segments":     intCell(func(s *models.Song, v int) { s.NumSegments = v }),
	"class":            intCell(func(s *models.Song, v int) { s.SongClass = v }),
}

// Row is one record of a playlist table: its ordinal and the raw cell of
// every column in Columns.
type Row struct {
	Idx   int
	Cells map[string]json.RawMessage
}

// Song converts the row's cells into a song.
func (r Row) Song() (models.Song, error) {
	song := models.Song{Idx: r.Idx}
	for _, column := range Columns {
		raw, ok := r.Cells[column]
		if !ok {
			return models.Song{}, fmt.Errorf("%w: row %d has no %q cell", ErrInvalidPlaylist, r.Idx, column)
		}
		if err := setters[column](&song, raw); err != nil {
			return models.Song{}, fmt.Errorf("%w: column %q row %d: %v", ErrInvalidPlaylist, column, r.Idx, err)
		}
	}
	if strings.TrimSpace(song.ID) == "" {
		return models.Song{}, fmt.Errorf("%w: row %d has an empty id", ErrInvalidPlaylist, r.Idx)
	}
	return song, nil
}

// DecodeRows reads a playlist table, checks that it is rectangular, and returns
// its rows ordered by idx. The idx of each row is the integer value of its row
// key. Every column must be present and must carry exactly the same row keys as
// every other column.
func DecodeRows(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var t table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidPlaylist, err)
	}
	if err := validateTable(t); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(t["id"]))
	seen := make(map[int]string, len(t["id"]))
	for key := range t["id"] {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: row key %q is not a non-negative integer", ErrInvalidPlaylist, key)
		}
		if other, dup := seen[idx]; dup {
			return nil, fmt.Errorf("%w: row keys %q and %q share idx %d", ErrInvalidPlaylist, other, key, idx)
		}
		seen[idx] = key
		cells := make(map[string]json.RawMessage, len(Columns))
		for _, column := range Columns {
			cells[column] = t[column][key]
		}
		rows = append(rows, Row{Idx: idx, Cells: cells})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Idx < rows[j].Idx })
	return rows, nil
}

// Decode reads a playlist table and returns its rows as songs ordered by idx.
func Decode(r io.Reader) ([]models.Song, error) {
	rows, err := DecodeRows(r)
	if err != nil {
		return nil, err
	}
	songs := make([]models.Song, 0, len(rows))
	for _, row := range rows {
		song, err := row.Song()
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, nil
}

func validateTable(t table) error {
	var missing []string
	for _, column := range Columns {
		if _, ok := t[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %s", ErrInvalidPlaylist, strings.Join(missing, ", "))
	}

	reference := t["id"]
	for _, column := range Columns {
		cells := t[column]
		if cells == nil {
			return fmt.Errorf("%w: column %q is not an object", ErrInvalidPlaylist, column)
		}
		if len(cells) != len(reference) {
			return fmt.Errorf("%w: column %q has %d entries, expected %d", ErrInvalidPlaylist, column, len(cells), len(reference))
		}
		for key := range cells {
			if _, ok := reference[key]; !ok {
				return fmt.Errorf("%w: column %q has row %q not present in column \"id\"", ErrInvalidPlaylist, column, key)
			}
		}
	}
	return nil
}

func stringCell(set func(*models.Song, string)) cellSetter {
	return func(song *models.Song, raw json.RawMessage) error {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return errors.New("expected a string")
		}
		set(song, v)
		return nil
	}
}

func floatCell(set func(*models.Song, float64)) cellSetter {
	return func(song *models.Song, raw json.RawMessage) error {
		v, err := number(raw)
		if err != nil {
			return err
		}
		set(song, v)
		return nil
	}
}

func intCell(set func(*models.Song, int)) cellSetter {
	return func(song *models.Song, raw json.RawMessage) error {
		v, err := number(raw)
		if err != nil {
			return err
		}
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return fmt.Errorf("expected an integer, got %v", v)
		}
		set(song, int(v))
		return nil
	}
}

func number(raw json.RawMessage) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, errors.New("expected a number")
	}
	v, err := n.Float64()
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("expected a finite number, got %s", n)
	}
	return v, nil
}
