package songs

import (
	"strings"

	"vivpro-songs/internal/apperr"
)

// SortField is the closed set of fields a song listing can be ordered by.
type SortField int

const (
	SortIdx SortField = iota
	SortID
	SortTitle
	SortRating
	SortUserRating
	SortDanceability
	SortEnergy
	SortKey
	SortLoudness
	SortMode
	SortAcousticness
	SortInstrumentalness
	SortLiveness
	SortValence
	SortTempo
	SortDurationMs
	SortTimeSignature
	SortNumBars
	SortNumSections
	SortNumSegments
	SortSongClass
)

var sortFieldNames = [...]string{
	SortIdx:              "idx",
	SortID:               "id",
	SortTitle:            "title",
	SortRating:           "rating",
	SortUserRating:       "user_rating",
	SortDanceability:     "danceability",
	SortEnergy:           "energy",
	SortKey:              "key",
	SortLoudness:         "loudness",
	SortMode:             "mode",
	SortAcousticness:     "acousticness",
	SortInstrumentalness: "instrumentalness",
	SortLiveness:         "liveness",
	SortValence:          "valence",
	SortTempo:            "tempo",
	SortDurationMs:       "duration_ms",
	SortTimeSignature:    "time_signature",
	SortNumBars:          "num_bars",
	SortNumSections:      "num_sections",
	SortNumSegments:      "num_segments",
	SortSongClass:        "song_class",
}

func (f SortField) String() string {
	if f < 0 || int(f) >= len(sortFieldNames) {
		return "unknown"
	}
	return sortFieldNames[f]
}

// Derived reports whether the field is computed from ratings rather than
// stored on the song row.
func (f SortField) Derived() bool {
	return f == SortRating || f == SortUserRating
}

// SortFieldNames lists every accepted order_by value.
func SortFieldNames() []string {
	return append([]string(nil), sortFieldNames[:]...)
}

// ParseSortField maps an order_by value onto a SortField. An empty name
// selects the catalog ordinal.
func ParseSortField(name string) (SortField, error) {
	if name == "" {
		return SortIdx, nil
	}
	for i, candidate := range sortFieldNames {
		if candidate == name {
			return SortField(i), nil
		}
	}
	return 0, apperr.Invalid("order_by", "must be one of: "+strings.Join(sortFieldNames[:], ", "))
}
