package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegate/resolver/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "resolver.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_UpsertAndGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	artist := &model.Artist{
		ID:            "a1",
		CanonicalName: "Radiohead",
		ExternalIDs:   map[string]string{"spotify": "sp-radiohead"},
		Aliases:       []model.Alias{{Name: "On a Friday", Source: "musicbrainz", Confidence: 0.9}},
		Metadata:      map[string]any{"genres": []any{"alternative"}},
	}
	require.NoError(t, s.Upsert(ctx, artist))

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Radiohead", got.CanonicalName)
	assert.Equal(t, "sp-radiohead", got.ExternalIDs["spotify"])
	require.Len(t, got.Aliases, 1)
	assert.Equal(t, "On a Friday", got.Aliases[0].Name)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_GetByExternalID(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.Artist{
		ID:            "a1",
		CanonicalName: "Burial",
		ExternalIDs:   map[string]string{"musicbrainz": "mbid-burial"},
	}))

	got, err := s.GetByExternalID(ctx, "musicbrainz", "mbid-burial")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	_, err = s.GetByExternalID(ctx, "musicbrainz", "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ExternalIDClaimRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.Artist{
		ID:            "a1",
		CanonicalName: "Prince",
		ExternalIDs:   map[string]string{"spotify": "sp-prince"},
	}))

	err := s.Upsert(ctx, &model.Artist{
		ID:            "a2",
		CanonicalName: "The Artist",
		ExternalIDs:   map[string]string{"spotify": "sp-prince"},
	})
	assert.ErrorIs(t, err, ErrExternalIDClaimed)

	// The failed upsert must not leave a partial record behind.
	_, err = s.Get(ctx, "a2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_MergeMovesIdentityAndRepointsLookups(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.Artist{
		ID:            "dup",
		CanonicalName: "Yusuf",
		ExternalIDs:   map[string]string{"deezer": "dz-yusuf"},
		Aliases:       []model.Alias{{Name: "Yusuf Islam", Source: "musicbrainz", Confidence: 1}},
	}))
	require.NoError(t, s.Upsert(ctx, &model.Artist{
		ID:            "canon",
		CanonicalName: "Cat Stevens",
		ExternalIDs:   map[string]string{"spotify": "sp-cat"},
	}))

	require.NoError(t, s.Merge(ctx, "dup", "canon"))

	target, err := s.Get(ctx, "canon")
	require.NoError(t, err)
	assert.Equal(t, "dz-yusuf", target.ExternalIDs["deezer"])
	names := map[string]bool{}
	for _, a := range target.Aliases {
		names[a.Name] = true
	}
	assert.True(t, names["Yusuf Islam"], "source aliases move to target")
	assert.True(t, names["Yusuf"], "source canonical name survives as alias")

	source, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "canon", source.CanonicalArtistID)
	assert.Empty(t, source.ExternalIDs)
	assert.Empty(t, source.Aliases)

	// External id lookups through the merged record land on the target.
	viaOld, err := s.GetByExternalID(ctx, "deezer", "dz-yusuf")
	require.NoError(t, err)
	assert.Equal(t, "canon", viaOld.ID)

	viaAlias, err := s.GetCanonical(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "canon", viaAlias.ID)
}

func TestSQLite_MergePathCompression(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, &model.Artist{ID: id, CanonicalName: id}))
	}

	require.NoError(t, s.Merge(ctx, "a", "b"))
	require.NoError(t, s.Merge(ctx, "b", "c"))

	// Both merged records point directly at the root, never chaining.
	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", a.CanonicalArtistID)

	b, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "c", b.CanonicalArtistID)
}

func TestSQLite_MergeIntoAliasFollowsPointer(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, &model.Artist{ID: id, CanonicalName: id}))
	}

	require.NoError(t, s.Merge(ctx, "b", "c"))
	// b is now an alias of c; merging into b lands on c.
	require.NoError(t, s.Merge(ctx, "a", "b"))

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "c", a.CanonicalArtistID)
}

func TestSQLite_MergeRejections(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, &model.Artist{ID: id, CanonicalName: id}))
	}

	assert.ErrorIs(t, s.Merge(ctx, "a", "a"), ErrMergeCycle)

	require.NoError(t, s.Merge(ctx, "a", "b"))
	assert.ErrorIs(t, s.Merge(ctx, "a", "c"), ErrAlreadyMerged)
	assert.ErrorIs(t, s.Merge(ctx, "b", "a"), ErrMergeCycle)
}

func TestSQLite_FindByName(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.Artist{
		ID:            "a1",
		CanonicalName: "The Beatles",
		Aliases:       []model.Alias{{Name: "The Fab Four", Source: "musicbrainz", Confidence: 0.8}},
	}))

	// Canonical name matches through normalization.
	got, err := s.FindByName(ctx, "beatles")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	// Alias matches too.
	got, err = s.FindByName(ctx, "the FAB FOUR")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)

	_, err = s.FindByName(ctx, "The Rolling Stones")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ResolutionCache(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	hit, err := s.GetCachedResolution(ctx, "nirvana")
	require.NoError(t, err)
	assert.Nil(t, hit)

	require.NoError(t, s.PutCachedResolution(ctx, "nirvana", CachedResolution{
		ArtistID:   "a1",
		Confidence: 0.97,
		Authority:  "spotify",
		Rule:       model.RulePrimaryName,
	}))

	hit, err = s.GetCachedResolution(ctx, "nirvana")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "a1", hit.ArtistID)
	assert.Equal(t, model.RulePrimaryName, hit.Rule)
	assert.False(t, hit.ResolvedAt.IsZero())

	// Overwrite on the same key.
	require.NoError(t, s.PutCachedResolution(ctx, "nirvana", CachedResolution{
		ArtistID: "a2", Confidence: 1, Authority: "musicbrainz", Rule: model.RuleExternalID,
	}))
	hit, err = s.GetCachedResolution(ctx, "nirvana")
	require.NoError(t, err)
	assert.Equal(t, "a2", hit.ArtistID)
}

func TestSQLite_ExportSkipsMergedRecords(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, &model.Artist{ID: "a", CanonicalName: "Autechre"}))
	require.NoError(t, s.Upsert(ctx, &model.Artist{ID: "b", CanonicalName: "Ae"}))
	require.NoError(t, s.Merge(ctx, "b", "a"))

	entries, err := s.Export(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
	names := map[string]bool{}
	for _, alias := range entries[0].Aliases {
		names[alias.Name] = true
	}
	assert.True(t, names["Ae"])
}
