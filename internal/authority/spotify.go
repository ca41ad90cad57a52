package authority

import (
	"context"
	"errors"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/resilience"
	"github.com/tunegate/resolver/pkg/spotify"
)

// SpotifyName is the authority identifier for the Spotify catalog.
const SpotifyName = "spotify"

// Spotify adapts the Spotify Web API client to the Authority interface.
type Spotify struct {
	client spotify.Client
}

// NewSpotify wraps a Spotify client.
func NewSpotify(client spotify.Client) *Spotify {
	return &Spotify{client: client}
}

// Name implements Authority.
func (s *Spotify) Name() string { return SpotifyName }

// Search implements Authority.
func (s *Spotify) Search(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	artists, err := s.client.SearchArtists(ctx, query, limit)
	if err != nil {
		return nil, classifySpotifyErr(err)
	}
	records := make([]model.RawRecord, 0, len(artists))
	for _, a := range artists {
		records = append(records, spotifyRecord(a))
	}
	return records, nil
}

// Lookup implements Authority.
func (s *Spotify) Lookup(ctx context.Context, id string) (*model.RawRecord, error) {
	artist, err := s.client.GetArtist(ctx, id)
	if err != nil {
		return nil, classifySpotifyErr(err)
	}
	if artist == nil {
		return nil, nil
	}
	rec := spotifyRecord(*artist)
	return &rec, nil
}

func spotifyRecord(a spotify.Artist) model.RawRecord {
	rec := model.RawRecord{
		Authority: SpotifyName,
		ID:        a.ID,
		Name:      a.Name,
		Metadata:  map[string]any{},
	}
	if len(a.Genres) > 0 {
		rec.Metadata["genres"] = a.Genres
	}
	if a.Popularity > 0 {
		rec.Metadata["popularity"] = a.Popularity
	}
	if a.Followers.Total > 0 {
		rec.Metadata["followers"] = a.Followers.Total
	}
	if len(a.Images) > 0 {
		rec.Metadata["image_url"] = a.Images[0].URL
	}
	return rec
}

func classifySpotifyErr(err error) error {
	if errors.Is(err, spotify.ErrMalformed) {
		return errors.Join(model.ErrMalformedResponse, err)
	}
	var apiErr *spotify.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
