package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegate/resolver/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit
// testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s := &PostgresStore{pool: mock, locks: newKeyedMutex()}
	return s, mock
}

func artistRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "canonical_name", "canonical_artist_id",
		"external_ids", "aliases", "metadata", "created_at", "updated_at",
	})
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, canonical_name, canonical_artist_id, external_ids, aliases, metadata, created_at, updated_at FROM artists WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(artistRows().AddRow(
			"a1", "Aphex Twin", (*string)(nil),
			[]byte(`{"spotify":"sp-aphex"}`),
			[]byte(`[{"name":"AFX","source":"musicbrainz","confidence":1}]`),
			[]byte(`{}`), now, now,
		))

	got, err := s.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Aphex Twin", got.CanonicalName)
	assert.Equal(t, "sp-aphex", got.ExternalIDs["spotify"])
	require.Len(t, got.Aliases, 1)
	assert.Equal(t, "AFX", got.Aliases[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM artists WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByExternalID_FollowsAlias(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	canonical := "canon"

	mock.ExpectQuery(`SELECT artist_id FROM artist_external_ids WHERE authority = \$1 AND external_id = \$2`).
		WithArgs("deezer", "27").
		WillReturnRows(pgxmock.NewRows([]string{"artist_id"}).AddRow("dup"))
	mock.ExpectQuery(`SELECT .+ FROM artists WHERE id = \$1`).
		WithArgs("dup").
		WillReturnRows(artistRows().AddRow(
			"dup", "Daft Punk (dup)", &canonical,
			[]byte(`{}`), []byte(`[]`), []byte(`{}`), now, now,
		))
	mock.ExpectQuery(`SELECT .+ FROM artists WHERE id = \$1`).
		WithArgs("canon").
		WillReturnRows(artistRows().AddRow(
			"canon", "Daft Punk", (*string)(nil),
			[]byte(`{}`), []byte(`[]`), []byte(`{}`), now, now,
		))

	got, err := s.GetByExternalID(context.Background(), "deezer", "27")
	require.NoError(t, err)
	assert.Equal(t, "canon", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT artist_id FROM artist_external_ids`).
		WithArgs("spotify", "sp-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO artists`).
		WithArgs("a1", "Portishead", "portishead", nil,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO artist_external_ids`).
		WithArgs("spotify", "sp-1", "a1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := s.Upsert(context.Background(), &model.Artist{
		ID:            "a1",
		CanonicalName: "Portishead",
		ExternalIDs:   map[string]string{"spotify": "sp-1"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Upsert_ClaimedExternalID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT artist_id FROM artist_external_ids`).
		WithArgs("spotify", "sp-1").
		WillReturnRows(pgxmock.NewRows([]string{"artist_id"}).AddRow("someone-else"))
	mock.ExpectRollback()

	err := s.Upsert(context.Background(), &model.Artist{
		ID:            "a1",
		CanonicalName: "Portishead",
		ExternalIDs:   map[string]string{"spotify": "sp-1"},
	})
	assert.ErrorIs(t, err, ErrExternalIDClaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CachedResolution_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT artist_id, confidence, authority, rule, resolved_at FROM resolution_cache`).
		WithArgs("unknown key").
		WillReturnError(pgx.ErrNoRows)

	hit, err := s.GetCachedResolution(context.Background(), "unknown key")
	require.NoError(t, err)
	assert.Nil(t, hit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PutCachedResolution_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO resolution_cache .+ ON CONFLICT`).
		WithArgs("nirvana", "a1", 0.97, "spotify", "primary_name", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.PutCachedResolution(context.Background(), "nirvana", CachedResolution{
		ArtistID: "a1", Confidence: 0.97, Authority: "spotify", Rule: model.RulePrimaryName,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Export(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, canonical_name, external_ids, aliases FROM artists`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "canonical_name", "external_ids", "aliases"}).
			AddRow("a1", "Boards of Canada", []byte(`{"spotify":"sp-boc"}`), []byte(`[]`)))

	entries, err := s.Export(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Boards of Canada", entries[0].CanonicalName)
	assert.Equal(t, "sp-boc", entries[0].ExternalIDs["spotify"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
