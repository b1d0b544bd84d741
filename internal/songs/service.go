// Package songs serves the catalog listing with derived ratings and records
// user ratings.
package songs

import (
	"context"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/models"
	"vivpro-songs/internal/storage"
)

const (
	DefaultLimit   = 10
	MaxLimit       = 100
	MaxTitleLength = 256
)

// ListParams selects one page of the catalog.
type ListParams struct {
	// Title filters on a case-insensitive substring when non-nil.
	Title *string
	// UserID is the caller, empty for anonymous requests.
	UserID     string
	OrderBy    SortField
	Descending bool
	Offset     int
	Limit      int
}

// Validate checks the page bounds and the title filter.
func (p ListParams) Validate() error {
	v := &apperr.ValidationError{}
	if p.Title != nil {
		n := utf8.RuneCountInString(*p.Title)
		switch {
		case n == 0 || isBlank(*p.Title):
			v.Add("title", "must not be empty or blank")
		case n > MaxTitleLength:
			v.Add("title", fmt.Sprintf("must be at most %d characters", MaxTitleLength))
		}
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		v.Add("limit", fmt.Sprintf("must be between 1 and %d", MaxLimit))
	}
	if p.Offset < 0 {
		v.Add("offset", "must not be negative")
	}
	if p.OrderBy < 0 || int(p.OrderBy) >= len(sortFieldNames) {
		v.Add("order_by", "unknown field")
	}
	return v.OrNil()
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// Service combines catalog rows with rating aggregates.
type Service struct {
	repo storage.SongRepository
}

// NewService wires the catalog repository.
func NewService(repo storage.SongRepository) *Service {
	return &Service{repo: repo}
}

// ListSongs returns a page of songs with rating (average over all users, 0
// when unrated) and user_rating (the caller's own, 0 when anonymous or
// unrated). Derived sort fields reorder only the fetched page; the page
// itself is cut by catalog ordinal.
func (s *Service) ListSongs(ctx context.Context, params ListParams) ([]models.Song, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	query := storage.SongQuery{
		OrderBy:    params.OrderBy.String(),
		Descending: params.Descending,
		Offset:     params.Offset,
		Limit:      params.Limit,
	}
	if params.Title != nil {
		query.TitleContains = norm.NFC.String(*params.Title)
	}
	if params.OrderBy.Derived() {
		query.OrderBy = SortIdx.String()
		query.Descending = false
	}

	page, err := s.repo.ListSongs(ctx, query)
	if err != nil {
		return nil, apperr.Storage("list songs", err)
	}
	if len(page) == 0 {
		return []models.Song{}, nil
	}

	keys := make([]models.SongKey, len(page))
	for i, song := range page {
		keys[i] = song.SongKey()
	}
	ratings, err := s.repo.SongRatings(ctx, params.UserID, keys)
	if err != nil {
		return nil, apperr.Storage("song ratings", err)
	}
	for i := range page {
		summary := ratings[page[i].SongKey()]
		page[i].Rating = summary.Average
		page[i].UserRating = summary.Mine
	}

	if params.OrderBy.Derived() {
		sortByDerived(page, params.Descending)
	}
	return page, nil
}

// sortByDerived orders the page by (rating, user_rating) for either derived
// field, keeping the catalog order between equal tuples.
func sortByDerived(page []models.Song, descending bool) {
	sort.SliceStable(page, func(i, j int) bool {
		a, b := page[i], page[j]
		if descending {
			a, b = b, a
		}
		if a.Rating != b.Rating {
			return a.Rating < b.Rating
		}
		return a.UserRating < b.UserRating
	})
}

// RateSong records userID's rating for the song, replacing any previous one.
func (s *Service) RateSong(ctx context.Context, key models.SongKey, userID string, rating float64) error {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return apperr.Invalid("rating", "must be a finite number")
	}
	_, ok, err := s.GetSongByKey(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return &apperr.NotFoundError{Resource: "song", Key: fmt.Sprintf("%d/%s", key.Idx, key.ID)}
	}
	err = s.repo.UpsertRating(ctx, models.Rating{SongIdx: key.Idx, SongID: key.ID, UserID: userID, Rating: rating})
	return apperr.Storage("upsert rating", err)
}

// GetSongByKey fetches a single song. Its rating fields are left at zero.
func (s *Service) GetSongByKey(ctx context.Context, key models.SongKey) (models.Song, bool, error) {
	song, ok, err := s.repo.GetSong(ctx, key)
	if err != nil {
		return models.Song{}, false, apperr.Storage("get song", err)
	}
	return song, ok, nil
}
