package model

import (
	"time"
)

// Artist is a canonical artist entity. An Artist with a non-empty
// CanonicalArtistID has been merged into another entity and survives only
// as an alias record; it is never hard-deleted so that historical
// references stay resolvable.
type Artist struct {
	ID                string            `json:"id"`
	CanonicalName     string            `json:"canonical_name"`
	CanonicalArtistID string            `json:"canonical_artist_id,omitempty"`
	ExternalIDs       map[string]string `json:"external_ids"`
	Aliases           []Alias           `json:"aliases"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Alias is an alternative name for an artist, tagged with the authority it
// came from and a confidence weight in [0,1].
type Alias struct {
	Name       string  `json:"name"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// IsAlias reports whether this record has been merged into another entity.
func (a *Artist) IsAlias() bool {
	return a.CanonicalArtistID != ""
}

// ExternalID returns the artist's identifier at the given authority.
func (a *Artist) ExternalID(authority string) (string, bool) {
	id, ok := a.ExternalIDs[authority]
	return id, ok
}

// SetExternalID records the artist's identifier at an authority.
func (a *Artist) SetExternalID(authority, id string) {
	if a.ExternalIDs == nil {
		a.ExternalIDs = make(map[string]string)
	}
	a.ExternalIDs[authority] = id
}

// SetMetadata stores an enrichment attribute. Metadata never participates
// in identity decisions.
func (a *Artist) SetMetadata(key string, value any) {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = value
}
