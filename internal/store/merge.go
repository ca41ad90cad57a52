package store

import (
	"time"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/normalize"
)

// mergedAliasSource tags the alias entry created from a merged entity's
// former canonical name.
const mergedAliasSource = "merge"

// applyMerge validates a merge and mutates the two records in memory.
// Both backends persist the mutated records (plus the external-id row
// repointing and path compression) inside their own transactions. On any
// error the inputs are left untouched.
func applyMerge(source, into *model.Artist, now time.Time) error {
	if source.ID == into.ID {
		return ErrMergeCycle
	}
	if source.IsAlias() {
		return ErrAlreadyMerged
	}
	if into.CanonicalArtistID == source.ID {
		return ErrMergeCycle
	}

	// Move external id claims. The target keeps its own primary id per
	// authority; reverse lookups for the source's ids are repointed at
	// the row level by the backend.
	for authority, id := range source.ExternalIDs {
		if _, taken := into.ExternalIDs[authority]; !taken {
			into.SetExternalID(authority, id)
		}
	}

	// Move aliases, keeping the no-duplicate-per-source invariant.
	for _, alias := range source.Aliases {
		addAliasDeduped(into, alias)
	}
	addAliasDeduped(into, model.Alias{
		Name:       source.CanonicalName,
		Source:     mergedAliasSource,
		Confidence: 1.0,
	})

	source.CanonicalArtistID = into.ID
	source.Aliases = nil
	source.ExternalIDs = nil
	source.UpdatedAt = now
	into.UpdatedAt = now
	return nil
}

// addAliasDeduped appends an alias unless the artist already carries one
// with the same normalized name from the same source.
func addAliasDeduped(a *model.Artist, alias model.Alias) {
	key := normalize.Key(alias.Name)
	if key == "" {
		return
	}
	for _, existing := range a.Aliases {
		if existing.Source == alias.Source && normalize.Key(existing.Name) == key {
			return
		}
	}
	a.Aliases = append(a.Aliases, alias)
}
