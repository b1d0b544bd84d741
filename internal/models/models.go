package models

import "time"

// User is a registered account. Users are immutable after registration and
// are never deleted.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

// Session is a server-side login session. The ID doubles as the bearer token
// or cookie value handed to the client.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now. A session is
// still valid at exactly ExpiresAt.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SongKey identifies a catalog entry by its ordinal and external id.
type SongKey struct {
	Idx int    `json:"idx"`
	ID  string `json:"id"`
}

// Song is a catalog entry. Rating and UserRating are derived at query time
// and are never persisted on the song row.
type Song struct {
	Idx              int     `json:"idx"`
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Rating           float64 `json:"rating"`
	UserRating       float64 `json:"user_rating"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Loudness         float64 `json:"loudness"`
	Mode             int     `json:"mode"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	DurationMs       int     `json:"duration_ms"`
	TimeSignature    int     `json:"time_signature"`
	NumBars          int     `json:"num_bars"`
	NumSections      int     `json:"num_sections"`
	NumSegments      int     `json:"num_segments"`
	SongClass        int     `json:"song_class"`
}

// SongKey returns the composite key of the song.
func (s Song) SongKey() SongKey {
	return SongKey{Idx: s.Idx, ID: s.ID}
}

// Rating is one user's score for one song. (SongIdx, SongID, UserID) is unique.
type Rating struct {
	SongIdx int     `json:"song_idx"`
	SongID  string  `json:"song_id"`
	UserID  string  `json:"user_id"`
	Rating  float64 `json:"rating"`
}

// RatingSummary carries the derived rating values for one song.
type RatingSummary struct {
	Average float64
	Mine    float64
}
