package model

import "testing"

func TestRawRecord_Richness(t *testing.T) {
	empty := &RawRecord{Authority: "spotify", ID: "1"}
	if got := empty.Richness(); got != 0 {
		t.Errorf("empty record richness = %d, want 0", got)
	}

	full := &RawRecord{
		Authority: "musicbrainz",
		ID:        "mbid-1",
		Name:      "The Beatles",
		Aliases: []RawAlias{
			{Name: "Beatles", Kind: AliasKindOther},
			{Name: "The Beatles", Kind: AliasKindPrimary},
		},
		ExternalRefs: map[string]string{"spotify": "3WrFJ7ztbogyGnTHbHJFl2"},
		Metadata:     map[string]any{"country": "GB", "type": "Group", "ended": nil},
	}
	// name(1) + aliases(2) + refs(1) + non-nil metadata(2)
	if got := full.Richness(); got != 6 {
		t.Errorf("richness = %d, want 6", got)
	}
}

func TestArtist_ExternalIDs(t *testing.T) {
	a := &Artist{ID: "x", CanonicalName: "Portishead"}
	if _, ok := a.ExternalID("spotify"); ok {
		t.Error("unexpected external id on fresh artist")
	}
	a.SetExternalID("spotify", "6liAMWkVf5LH7YR9yfFy1Y")
	id, ok := a.ExternalID("spotify")
	if !ok || id != "6liAMWkVf5LH7YR9yfFy1Y" {
		t.Errorf("external id = %q, ok=%v", id, ok)
	}
	if a.IsAlias() {
		t.Error("artist without canonical pointer should not be an alias")
	}
	a.CanonicalArtistID = "y"
	if !a.IsAlias() {
		t.Error("artist with canonical pointer should be an alias")
	}
}
