// Package authority abstracts the external systems queried for artist
// data and guards every call with rate limiting and circuit breaking.
package authority

import (
	"context"
	"sort"
	"sync"

	"github.com/tunegate/resolver/internal/model"
)

// Authority is one external source of artist records. Implementations
// normalize their wire formats into model.RawRecord at the boundary; no
// authority-specific shape escapes this interface.
type Authority interface {
	// Name returns the authority identifier used in config, external_ids
	// and provenance (e.g. "spotify", "musicbrainz").
	Name() string
	// Search returns candidate records for a free-text query.
	Search(ctx context.Context, query string, limit int) ([]model.RawRecord, error)
	// Lookup fetches a single record by the authority's own identifier.
	// A nil record with nil error means the id is unknown.
	Lookup(ctx context.Context, id string) (*model.RawRecord, error)
}

// Registry holds the configured authorities in priority order.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

type entry struct {
	authority Authority
	priority  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an authority with its priority rank. Lower rank means
// more authoritative; it is consulted earlier and wins score ties.
func (r *Registry) Register(a Authority, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{authority: a, priority: priority})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].priority < r.entries[j].priority
	})
}

// Get returns the named authority, or nil.
func (r *Registry) Get(name string) Authority {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.authority.Name() == name {
			return e.authority
		}
	}
	return nil
}

// InPriorityOrder returns all authorities, most authoritative first.
func (r *Registry) InPriorityOrder() []Authority {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Authority, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.authority
	}
	return out
}

// Priorities returns the authority-name to rank mapping for the scorer's
// tie-break rule.
func (r *Registry) Priorities() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.entries))
	for _, e := range r.entries {
		out[e.authority.Name()] = e.priority
	}
	return out
}
