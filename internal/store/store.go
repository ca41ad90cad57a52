// Package store persists canonical artist records and enforces the merge
// invariants: the alias relation stays a path-compressed forest, and each
// (authority, external id) pair resolves to exactly one canonical entity.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tunegate/resolver/internal/model"
)

// ErrNotFound is returned when an artist id is unknown.
var ErrNotFound = eris.New("store: artist not found")

// ErrAlreadyMerged is returned when the merge source has itself been
// merged into another entity.
var ErrAlreadyMerged = eris.New("store: source artist already merged")

// ErrMergeCycle is returned when a merge would point an entity at itself
// through the alias relation. The records are left untouched.
var ErrMergeCycle = eris.New("store: merge would create a cycle")

// ErrExternalIDClaimed is returned when an upsert would claim an
// (authority, external id) pair already owned by a different entity.
var ErrExternalIDClaimed = eris.New("store: external id claimed by another entity")

// CachedResolution is a persisted resolution outcome keyed by normalized
// query key.
type CachedResolution struct {
	ArtistID   string          `json:"artist_id"`
	Confidence float64         `json:"confidence"`
	Authority  string          `json:"authority"`
	Rule       model.MatchRule `json:"rule"`
	ResolvedAt time.Time       `json:"resolved_at"`
}

// ExportEntry is one tuple of the client-filter export snapshot.
type ExportEntry struct {
	ID            string            `json:"id"`
	CanonicalName string            `json:"canonical_name"`
	ExternalIDs   map[string]string `json:"external_ids"`
	Aliases       []model.Alias     `json:"aliases,omitempty"`
}

// Store is the canonical record store. Merge and Upsert are serialized
// per entity id; reads return consistent snapshots without locking.
type Store interface {
	// Get fetches an artist by id. Returns ErrNotFound if unknown.
	Get(ctx context.Context, id string) (*model.Artist, error)

	// GetCanonical fetches an artist by id, following the alias pointer
	// (at most one hop, by the path-compression invariant).
	GetCanonical(ctx context.Context, id string) (*model.Artist, error)

	// GetByExternalID resolves an (authority, external id) pair to its
	// canonical entity, transitively through alias chains.
	GetByExternalID(ctx context.Context, authority, externalID string) (*model.Artist, error)

	// FindByName looks up a canonical entity whose canonical name or one
	// of whose aliases normalizes to the same key as the given name.
	// Returns ErrNotFound if nothing matches.
	FindByName(ctx context.Context, name string) (*model.Artist, error)

	// Upsert inserts or updates an artist and its external id claims.
	Upsert(ctx context.Context, artist *model.Artist) error

	// Merge folds sourceID into intoID: external ids and aliases move to
	// the target, the source becomes an alias record, and any alias
	// chain through the source is rewritten to point at the target
	// directly.
	Merge(ctx context.Context, sourceID, intoID string) error

	// GetCachedResolution looks up a prior resolution by query key.
	// Returns nil, nil on a miss.
	GetCachedResolution(ctx context.Context, queryKey string) (*CachedResolution, error)

	// PutCachedResolution records a resolution outcome for a query key.
	PutCachedResolution(ctx context.Context, queryKey string, res CachedResolution) error

	// Export snapshots all canonical entities for client-side filters.
	Export(ctx context.Context) ([]ExportEntry, error)

	// Migrate creates or updates the schema.
	Migrate(ctx context.Context) error

	Close() error
}
