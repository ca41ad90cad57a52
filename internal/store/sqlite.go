package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/normalize"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
}

// NewSQLite opens a SQLite database at the given DSN and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: newKeyedMutex()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS artists (
	id                  TEXT PRIMARY KEY,
	canonical_name      TEXT NOT NULL,
	name_key            TEXT NOT NULL DEFAULT '',
	canonical_artist_id TEXT,
	external_ids        TEXT NOT NULL DEFAULT '{}',
	aliases             TEXT NOT NULL DEFAULT '[]',
	metadata            TEXT NOT NULL DEFAULT '{}',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS artist_external_ids (
	authority   TEXT NOT NULL,
	external_id TEXT NOT NULL,
	artist_id   TEXT NOT NULL REFERENCES artists(id),
	PRIMARY KEY (authority, external_id)
);

CREATE TABLE IF NOT EXISTS resolution_cache (
	query_key   TEXT PRIMARY KEY,
	artist_id   TEXT NOT NULL,
	confidence  REAL NOT NULL,
	authority   TEXT NOT NULL,
	rule        TEXT NOT NULL,
	resolved_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artists_canonical ON artists(canonical_artist_id);
CREATE INDEX IF NOT EXISTS idx_artists_name_key ON artists(name_key);
CREATE INDEX IF NOT EXISTS idx_external_ids_artist ON artist_external_ids(artist_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get fetches an artist by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Artist, error) {
	return s.getQ(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getQ(ctx context.Context, q querier, id string) (*model.Artist, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, canonical_name, canonical_artist_id, external_ids, aliases, metadata, created_at, updated_at
		 FROM artists WHERE id = ?`, id)
	return scanSQLiteArtist(row)
}

func scanSQLiteArtist(row *sql.Row) (*model.Artist, error) {
	var (
		a            model.Artist
		canonicalID  sql.NullString
		externalJSON string
		aliasesJSON  string
		metadataJSON string
	)
	err := row.Scan(&a.ID, &a.CanonicalName, &canonicalID, &externalJSON, &aliasesJSON, &metadataJSON, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan artist")
	}
	a.CanonicalArtistID = canonicalID.String

	if err := json.Unmarshal([]byte(externalJSON), &a.ExternalIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal external_ids")
	}
	if err := json.Unmarshal([]byte(aliasesJSON), &a.Aliases); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal aliases")
	}
	if err := json.Unmarshal([]byte(metadataJSON), &a.Metadata); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
	}
	return &a, nil
}

// GetCanonical fetches an artist, following the alias pointer one hop.
func (s *SQLiteStore) GetCanonical(ctx context.Context, id string) (*model.Artist, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsAlias() {
		return a, nil
	}
	return s.Get(ctx, a.CanonicalArtistID)
}

// GetByExternalID resolves an external id pair to its canonical entity.
func (s *SQLiteStore) GetByExternalID(ctx context.Context, authority, externalID string) (*model.Artist, error) {
	var artistID string
	err := s.db.QueryRowContext(ctx,
		`SELECT artist_id FROM artist_external_ids WHERE authority = ? AND external_id = ?`,
		authority, externalID).Scan(&artistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lookup external id")
	}
	return s.GetCanonical(ctx, artistID)
}

// Upsert inserts or updates an artist and its external id claims.
func (s *SQLiteStore) Upsert(ctx context.Context, artist *model.Artist) error {
	unlock := s.locks.lock(artist.ID)
	defer unlock()

	now := time.Now().UTC()
	if artist.CreatedAt.IsZero() {
		artist.CreatedAt = now
	}
	artist.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	// Verify external id claims before writing anything.
	for authority, externalID := range artist.ExternalIDs {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT artist_id FROM artist_external_ids WHERE authority = ? AND external_id = ?`,
			authority, externalID).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return eris.Wrap(err, "sqlite: check external id claim")
		case owner != artist.ID:
			return eris.Wrapf(ErrExternalIDClaimed, "%s:%s owned by %s", authority, externalID, owner)
		}
	}

	if err := writeSQLiteArtist(ctx, tx, artist); err != nil {
		return err
	}

	for authority, externalID := range artist.ExternalIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO artist_external_ids (authority, external_id, artist_id) VALUES (?, ?, ?)
			 ON CONFLICT (authority, external_id) DO NOTHING`,
			authority, externalID, artist.ID); err != nil {
			return eris.Wrap(err, "sqlite: insert external id")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeSQLiteArtist(ctx context.Context, tx execer, a *model.Artist) error {
	externalJSON, err := json.Marshal(orEmptyMap(a.ExternalIDs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal external_ids")
	}
	aliasesJSON, err := json.Marshal(orEmptyAliases(a.Aliases))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aliases")
	}
	metadataJSON, err := json.Marshal(orEmptyMeta(a.Metadata))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO artists (id, canonical_name, name_key, canonical_artist_id, external_ids, aliases, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			name_key = excluded.name_key,
			canonical_artist_id = excluded.canonical_artist_id,
			external_ids = excluded.external_ids,
			aliases = excluded.aliases,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		a.ID, a.CanonicalName, normalize.Key(a.CanonicalName), nullable(a.CanonicalArtistID),
		string(externalJSON), string(aliasesJSON), string(metadataJSON),
		a.CreatedAt, a.UpdatedAt)
	return eris.Wrap(err, "sqlite: write artist")
}

// FindByName looks up a canonical entity by normalized name, falling back
// to an alias scan when no canonical name matches.
func (s *SQLiteStore) FindByName(ctx context.Context, name string) (*model.Artist, error) {
	key := normalize.Key(name)
	if key == "" {
		return nil, ErrNotFound
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM artists WHERE name_key = ? AND (canonical_artist_id IS NULL OR canonical_artist_id = '') LIMIT 1`,
		key).Scan(&id)
	if err == nil {
		return s.Get(ctx, id)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(err, "sqlite: find by name")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aliases FROM artists WHERE canonical_artist_id IS NULL OR canonical_artist_id = ''`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by alias")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var (
			rowID       string
			aliasesJSON string
		)
		if err := rows.Scan(&rowID, &aliasesJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alias row")
		}
		var aliases []model.Alias
		if err := json.Unmarshal([]byte(aliasesJSON), &aliases); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal alias row")
		}
		for _, alias := range aliases {
			if normalize.Key(alias.Name) == key {
				rows.Close()
				return s.Get(ctx, rowID)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: find by alias rows")
	}
	return nil, ErrNotFound
}

// Merge folds sourceID into intoID under per-entity locks.
func (s *SQLiteStore) Merge(ctx context.Context, sourceID, intoID string) error {
	if sourceID == intoID {
		return ErrMergeCycle
	}
	unlock := s.locks.lockPair(sourceID, intoID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin merge")
	}
	defer tx.Rollback() //nolint:errcheck

	source, err := s.getQ(ctx, tx, sourceID)
	if err != nil {
		return err
	}
	into, err := s.getQ(ctx, tx, intoID)
	if err != nil {
		return err
	}

	// Merging into an alias record follows its pointer: the forest keeps
	// a single canonical root per tree.
	if into.IsAlias() {
		if into.CanonicalArtistID == sourceID {
			return ErrMergeCycle
		}
		into, err = s.getQ(ctx, tx, into.CanonicalArtistID)
		if err != nil {
			return err
		}
	}

	if err := applyMerge(source, into, time.Now().UTC()); err != nil {
		return err
	}

	// Repoint reverse external-id lookups at the target.
	if _, err := tx.ExecContext(ctx,
		`UPDATE artist_external_ids SET artist_id = ? WHERE artist_id = ?`,
		into.ID, source.ID); err != nil {
		return eris.Wrap(err, "sqlite: repoint external ids")
	}

	// Path compression: anything pointing at the source now points at
	// the target directly.
	if _, err := tx.ExecContext(ctx,
		`UPDATE artists SET canonical_artist_id = ?, updated_at = ? WHERE canonical_artist_id = ?`,
		into.ID, into.UpdatedAt, source.ID); err != nil {
		return eris.Wrap(err, "sqlite: compress alias chains")
	}

	if err := writeSQLiteArtist(ctx, tx, source); err != nil {
		return err
	}
	if err := writeSQLiteArtist(ctx, tx, into); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merge")
}

// GetCachedResolution looks up a prior resolution.
func (s *SQLiteStore) GetCachedResolution(ctx context.Context, queryKey string) (*CachedResolution, error) {
	var res CachedResolution
	err := s.db.QueryRowContext(ctx,
		`SELECT artist_id, confidence, authority, rule, resolved_at FROM resolution_cache WHERE query_key = ?`,
		queryKey).Scan(&res.ArtistID, &res.Confidence, &res.Authority, &res.Rule, &res.ResolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached resolution")
	}
	return &res, nil
}

// PutCachedResolution records a resolution outcome.
func (s *SQLiteStore) PutCachedResolution(ctx context.Context, queryKey string, res CachedResolution) error {
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolution_cache (query_key, artist_id, confidence, authority, rule, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (query_key) DO UPDATE SET
			artist_id = excluded.artist_id,
			confidence = excluded.confidence,
			authority = excluded.authority,
			rule = excluded.rule,
			resolved_at = excluded.resolved_at`,
		queryKey, res.ArtistID, res.Confidence, res.Authority, string(res.Rule), res.ResolvedAt)
	return eris.Wrap(err, "sqlite: put cached resolution")
}

// Export snapshots all canonical entities.
func (s *SQLiteStore) Export(ctx context.Context) ([]ExportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, canonical_name, external_ids, aliases FROM artists
		 WHERE canonical_artist_id IS NULL OR canonical_artist_id = ''
		 ORDER BY canonical_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: export")
	}
	defer rows.Close() //nolint:errcheck

	var entries []ExportEntry
	for rows.Next() {
		var (
			e            ExportEntry
			externalJSON string
			aliasesJSON  string
		)
		if err := rows.Scan(&e.ID, &e.CanonicalName, &externalJSON, &aliasesJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan export row")
		}
		if err := json.Unmarshal([]byte(externalJSON), &e.ExternalIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal export external_ids")
		}
		if err := json.Unmarshal([]byte(aliasesJSON), &e.Aliases); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal export aliases")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: export rows")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyAliases(a []model.Alias) []model.Alias {
	if a == nil {
		return []model.Alias{}
	}
	return a
}

func orEmptyMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
