package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vivpro-songs/internal/models"
)

func newMockRepo(t *testing.T) (*SQLiteRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo, err := NewSQLiteRepository(db)
	require.NoError(t, err)
	return repo, mock
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("u1", "alice", "Alice", "hash").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.username (2067)"))

	err := repo.CreateUser(context.Background(), models.User{ID: "u1", Username: "alice", Name: "Alice", PasswordHash: "hash"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserWrapsOtherErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("disk I/O error")
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).WillReturnError(boom)

	err := repo.CreateUser(context.Background(), models.User{ID: "u1", Username: "alice"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSongsQueryShape(t *testing.T) {
	repo, mock := newMockRepo(t)
	columns := SortableSongFields()
	columns[len(columns)-1] = "class"
	rows := sqlmock.NewRows(columns).
		AddRow(3, "id-3", "Walls", 0.1, 0.2, 1, -5.0, 1, 0.3, 0.0, 0.1, 0.5, 120.0, 1000, 4, 10, 2, 30, 0)
	mock.ExpectQuery(`SELECT idx, id, title, .* "class" FROM songs WHERE title LIKE '%' \|\| \? \|\| '%' ESCAPE '\\' ORDER BY tempo DESC, idx ASC, id ASC LIMIT \? OFFSET \?`).
		WithArgs(`100\%`, 5, 10).
		WillReturnRows(rows)

	songs, err := repo.ListSongs(context.Background(), SongQuery{
		TitleContains: "100%", OrderBy: "tempo", Descending: true, Limit: 5, Offset: 10,
	})
	require.NoError(t, err)
	require.Len(t, songs, 1)
	assert.Equal(t, "Walls", songs[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSongRatingsSkipsUnrequestedKeys(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"song_idx", "song_id", "avg", "mine"}).
		AddRow(1, "a", 3.5, 4.0).
		AddRow(1, "other", 1.0, 0.0)
	mock.ExpectQuery(`(?s)FROM ratings r\s+JOIN songs s .*WHERE r\.song_idx IN \(\?, \?\)`).
		WithArgs("u1", 1, 2).
		WillReturnRows(rows)

	got, err := repo.SongRatings(context.Background(), "u1", []models.SongKey{{Idx: 1, ID: "a"}, {Idx: 2, ID: "b"}})
	require.NoError(t, err)
	assert.Equal(t, map[models.SongKey]models.RatingSummary{{Idx: 1, ID: "a"}: {Average: 3.5, Mine: 4}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
