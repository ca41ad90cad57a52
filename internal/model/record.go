package model

// AliasKind classifies how a candidate name relates to the artist. The
// matching engine assigns a tier weight per kind.
type AliasKind string

const (
	// AliasKindPrimary is the authority's official/primary name.
	AliasKindPrimary AliasKind = "primary"
	// AliasKindCredited is a name the artist has been credited under.
	AliasKindCredited AliasKind = "credited"
	// AliasKindOther covers informal, romanized, or legacy names.
	AliasKindOther AliasKind = "other"
)

// RawAlias is a single name variant on a candidate record.
type RawAlias struct {
	Name string    `json:"name"`
	Kind AliasKind `json:"kind"`
}

// RawRecord is the normalized shape every authority client produces at its
// boundary. The matching engine only ever sees RawRecords, never
// authority-specific response payloads.
type RawRecord struct {
	Authority    string            `json:"authority"`
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Aliases      []RawAlias        `json:"aliases,omitempty"`
	ExternalRefs map[string]string `json:"external_refs,omitempty"`
	Metadata     map[string]any    `json:"metadata,omitempty"`
}

// Richness counts populated fields on the record. Used as the final
// tie-breaker between equally scored candidates: a fuller record is taken
// as a proxy for a more authoritative one.
func (r *RawRecord) Richness() int {
	n := 0
	if r.Name != "" {
		n++
	}
	n += len(r.Aliases)
	n += len(r.ExternalRefs)
	for _, v := range r.Metadata {
		if v != nil {
			n++
		}
	}
	return n
}
