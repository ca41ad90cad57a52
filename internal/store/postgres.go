package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/normalize"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	locks   *keyedMutex
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, locks: newKeyedMutex(), closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS artists (
	id                  TEXT PRIMARY KEY,
	canonical_name      TEXT NOT NULL,
	name_key            TEXT NOT NULL DEFAULT '',
	canonical_artist_id TEXT,
	external_ids        JSONB NOT NULL DEFAULT '{}',
	aliases             JSONB NOT NULL DEFAULT '[]',
	metadata            JSONB NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
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
	confidence  DOUBLE PRECISION NOT NULL,
	authority   TEXT NOT NULL,
	rule        TEXT NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artists_canonical ON artists(canonical_artist_id);
CREATE INDEX IF NOT EXISTS idx_artists_name_key ON artists(name_key);
CREATE INDEX IF NOT EXISTS idx_external_ids_artist ON artist_external_ids(artist_id);
`

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectArtist = `SELECT id, canonical_name, canonical_artist_id, external_ids, aliases, metadata, created_at, updated_at FROM artists WHERE id = $1`

func (s *PostgresStore) getQ(ctx context.Context, q pgQuerier, id string) (*model.Artist, error) {
	return scanPostgresArtist(q.QueryRow(ctx, selectArtist, id))
}

func scanPostgresArtist(row rowScanner) (*model.Artist, error) {
	var (
		a            model.Artist
		canonicalID  *string
		externalJSON []byte
		aliasesJSON  []byte
		metadataJSON []byte
	)
	err := row.Scan(&a.ID, &a.CanonicalName, &canonicalID, &externalJSON, &aliasesJSON, &metadataJSON, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan artist")
	}
	if canonicalID != nil {
		a.CanonicalArtistID = *canonicalID
	}
	if err := json.Unmarshal(externalJSON, &a.ExternalIDs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal external_ids")
	}
	if err := json.Unmarshal(aliasesJSON, &a.Aliases); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal aliases")
	}
	if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metadata")
	}
	return &a, nil
}

// Get fetches an artist by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Artist, error) {
	return s.getQ(ctx, s.pool, id)
}

// GetCanonical fetches an artist, following the alias pointer one hop.
func (s *PostgresStore) GetCanonical(ctx context.Context, id string) (*model.Artist, error) {
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
func (s *PostgresStore) GetByExternalID(ctx context.Context, authority, externalID string) (*model.Artist, error) {
	var artistID string
	err := s.pool.QueryRow(ctx,
		`SELECT artist_id FROM artist_external_ids WHERE authority = $1 AND external_id = $2`,
		authority, externalID).Scan(&artistID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lookup external id")
	}
	return s.GetCanonical(ctx, artistID)
}

// Upsert inserts or updates an artist and its external id claims.
func (s *PostgresStore) Upsert(ctx context.Context, artist *model.Artist) error {
	unlock := s.locks.lock(artist.ID)
	defer unlock()

	now := time.Now().UTC()
	if artist.CreatedAt.IsZero() {
		artist.CreatedAt = now
	}
	artist.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for authority, externalID := range artist.ExternalIDs {
		var owner string
		err := tx.QueryRow(ctx,
			`SELECT artist_id FROM artist_external_ids WHERE authority = $1 AND external_id = $2`,
			authority, externalID).Scan(&owner)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return eris.Wrap(err, "postgres: check external id claim")
		case owner != artist.ID:
			return eris.Wrapf(ErrExternalIDClaimed, "%s:%s owned by %s", authority, externalID, owner)
		}
	}

	if err := writePostgresArtist(ctx, tx, artist); err != nil {
		return err
	}

	for authority, externalID := range artist.ExternalIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO artist_external_ids (authority, external_id, artist_id) VALUES ($1, $2, $3)
			 ON CONFLICT (authority, external_id) DO NOTHING`,
			authority, externalID, artist.ID); err != nil {
			return eris.Wrap(err, "postgres: insert external id")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func writePostgresArtist(ctx context.Context, tx pgExecer, a *model.Artist) error {
	externalJSON, err := json.Marshal(orEmptyMap(a.ExternalIDs))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal external_ids")
	}
	aliasesJSON, err := json.Marshal(orEmptyAliases(a.Aliases))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aliases")
	}
	metadataJSON, err := json.Marshal(orEmptyMeta(a.Metadata))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metadata")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO artists (id, canonical_name, name_key, canonical_artist_id, external_ids, aliases, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
			canonical_name = $2,
			name_key = $3,
			canonical_artist_id = $4,
			external_ids = $5,
			aliases = $6,
			metadata = $7,
			updated_at = $9`,
		a.ID, a.CanonicalName, normalize.Key(a.CanonicalName), nullable(a.CanonicalArtistID),
		externalJSON, aliasesJSON, metadataJSON,
		a.CreatedAt, a.UpdatedAt)
	return eris.Wrap(err, "postgres: write artist")
}

// FindByName looks up a canonical entity by normalized name, falling back
// to an alias scan when no canonical name matches.
func (s *PostgresStore) FindByName(ctx context.Context, name string) (*model.Artist, error) {
	key := normalize.Key(name)
	if key == "" {
		return nil, ErrNotFound
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM artists WHERE name_key = $1 AND canonical_artist_id IS NULL LIMIT 1`,
		key).Scan(&id)
	if err == nil {
		return s.Get(ctx, id)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "postgres: find by name")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, aliases FROM artists WHERE canonical_artist_id IS NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by alias")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rowID       string
			aliasesJSON []byte
		)
		if err := rows.Scan(&rowID, &aliasesJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alias row")
		}
		var aliases []model.Alias
		if err := json.Unmarshal(aliasesJSON, &aliases); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal alias row")
		}
		for _, alias := range aliases {
			if normalize.Key(alias.Name) == key {
				rows.Close()
				return s.Get(ctx, rowID)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: find by alias rows")
	}
	return nil, ErrNotFound
}

// Merge folds sourceID into intoID under per-entity locks.
func (s *PostgresStore) Merge(ctx context.Context, sourceID, intoID string) error {
	if sourceID == intoID {
		return ErrMergeCycle
	}
	unlock := s.locks.lockPair(sourceID, intoID)
	defer unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin merge")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	source, err := s.getQ(ctx, tx, sourceID)
	if err != nil {
		return err
	}
	into, err := s.getQ(ctx, tx, intoID)
	if err != nil {
		return err
	}

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

	if _, err := tx.Exec(ctx,
		`UPDATE artist_external_ids SET artist_id = $1 WHERE artist_id = $2`,
		into.ID, source.ID); err != nil {
		return eris.Wrap(err, "postgres: repoint external ids")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE artists SET canonical_artist_id = $1, updated_at = $2 WHERE canonical_artist_id = $3`,
		into.ID, into.UpdatedAt, source.ID); err != nil {
		return eris.Wrap(err, "postgres: compress alias chains")
	}

	if err := writePostgresArtist(ctx, tx, source); err != nil {
		return err
	}
	if err := writePostgresArtist(ctx, tx, into); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit merge")
}

// GetCachedResolution looks up a prior resolution.
func (s *PostgresStore) GetCachedResolution(ctx context.Context, queryKey string) (*CachedResolution, error) {
	var res CachedResolution
	err := s.pool.QueryRow(ctx,
		`SELECT artist_id, confidence, authority, rule, resolved_at FROM resolution_cache WHERE query_key = $1`,
		queryKey).Scan(&res.ArtistID, &res.Confidence, &res.Authority, &res.Rule, &res.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached resolution")
	}
	return &res, nil
}

// PutCachedResolution records a resolution outcome.
func (s *PostgresStore) PutCachedResolution(ctx context.Context, queryKey string, res CachedResolution) error {
	if res.ResolvedAt.IsZero() {
		res.ResolvedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO resolution_cache (query_key, artist_id, confidence, authority, rule, resolved_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (query_key) DO UPDATE SET
			artist_id = $2, confidence = $3, authority = $4, rule = $5, resolved_at = $6`,
		queryKey, res.ArtistID, res.Confidence, res.Authority, string(res.Rule), res.ResolvedAt)
	return eris.Wrap(err, "postgres: put cached resolution")
}

// Export snapshots all canonical entities.
func (s *PostgresStore) Export(ctx context.Context) ([]ExportEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, canonical_name, external_ids, aliases FROM artists
		 WHERE canonical_artist_id IS NULL
		 ORDER BY canonical_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: export")
	}
	defer rows.Close()

	var entries []ExportEntry
	for rows.Next() {
		var (
			e            ExportEntry
			externalJSON []byte
			aliasesJSON  []byte
		)
		if err := rows.Scan(&e.ID, &e.CanonicalName, &externalJSON, &aliasesJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan export row")
		}
		if err := json.Unmarshal(externalJSON, &e.ExternalIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal export external_ids")
		}
		if err := json.Unmarshal(aliasesJSON, &e.Aliases); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal export aliases")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: export rows")
}
