package authority

import (
	"context"
	"errors"
	"strings"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/resilience"
	"github.com/tunegate/resolver/pkg/musicbrainz"
)

// MusicBrainzName is the authority identifier for the MusicBrainz
// bibliographic registry.
const MusicBrainzName = "musicbrainz"

// MusicBrainz adapts the MusicBrainz client to the Authority interface.
// Its records carry the richest alias sets and often cross-reference the
// streaming catalogs through URL relations, which makes it the preferred
// enrichment source.
type MusicBrainz struct {
	client musicbrainz.Client
}

// NewMusicBrainz wraps a MusicBrainz client.
func NewMusicBrainz(client musicbrainz.Client) *MusicBrainz {
	return &MusicBrainz{client: client}
}

// Name implements Authority.
func (m *MusicBrainz) Name() string { return MusicBrainzName }

// Search implements Authority.
func (m *MusicBrainz) Search(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	artists, err := m.client.SearchArtists(ctx, query, limit)
	if err != nil {
		return nil, classifyMusicBrainzErr(err)
	}
	records := make([]model.RawRecord, 0, len(artists))
	for _, a := range artists {
		records = append(records, musicBrainzRecord(a))
	}
	return records, nil
}

// Lookup implements Authority.
func (m *MusicBrainz) Lookup(ctx context.Context, mbid string) (*model.RawRecord, error) {
	artist, err := m.client.GetArtist(ctx, mbid)
	if err != nil {
		return nil, classifyMusicBrainzErr(err)
	}
	if artist == nil {
		return nil, nil
	}
	rec := musicBrainzRecord(*artist)
	return &rec, nil
}

func musicBrainzRecord(a musicbrainz.Artist) model.RawRecord {
	rec := model.RawRecord{
		Authority: MusicBrainzName,
		ID:        a.ID,
		Name:      a.Name,
		Metadata:  map[string]any{},
	}

	for _, alias := range a.Aliases {
		rec.Aliases = append(rec.Aliases, model.RawAlias{
			Name: alias.Name,
			Kind: aliasKind(alias),
		})
	}

	for _, rel := range a.Relations {
		authority, id := streamingRef(rel.URL.Resource)
		if authority == "" {
			continue
		}
		if rec.ExternalRefs == nil {
			rec.ExternalRefs = make(map[string]string)
		}
		rec.ExternalRefs[authority] = id
	}

	if a.Type != "" {
		rec.Metadata["type"] = a.Type
	}
	if a.Country != "" {
		rec.Metadata["country"] = a.Country
	}
	if a.SortName != "" && a.SortName != a.Name {
		rec.Metadata["sort_name"] = a.SortName
	}
	return rec
}

// aliasKind maps MusicBrainz alias types onto confidence tiers. "Artist
// name" aliases are names the artist has actually been credited under;
// legal names, search hints and the rest score lower.
func aliasKind(a musicbrainz.Alias) model.AliasKind {
	if a.Primary {
		return model.AliasKindPrimary
	}
	if a.Type == "Artist name" {
		return model.AliasKindCredited
	}
	return model.AliasKindOther
}

// streamingRef extracts (authority, id) from a streaming-page URL
// relation, e.g. https://open.spotify.com/artist/<id>.
func streamingRef(resource string) (string, string) {
	switch {
	case strings.Contains(resource, "open.spotify.com/artist/"):
		return SpotifyName, lastSegment(resource)
	case strings.Contains(resource, "deezer.com/artist/"):
		return DeezerName, lastSegment(resource)
	default:
		return "", ""
	}
}

func lastSegment(u string) string {
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

func classifyMusicBrainzErr(err error) error {
	if errors.Is(err, musicbrainz.ErrMalformed) {
		return errors.Join(model.ErrMalformedResponse, err)
	}
	var apiErr *musicbrainz.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
