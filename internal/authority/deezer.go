package authority

import (
	"context"
	"errors"
	"strconv"

	"github.com/tunegate/resolver/internal/model"
	"github.com/tunegate/resolver/internal/resilience"
	"github.com/tunegate/resolver/pkg/deezer"
)

// DeezerName is the authority identifier for the Deezer catalog.
const DeezerName = "deezer"

// Deezer adapts the Deezer API client to the Authority interface.
type Deezer struct {
	client deezer.Client
}

// NewDeezer wraps a Deezer client.
func NewDeezer(client deezer.Client) *Deezer {
	return &Deezer{client: client}
}

// Name implements Authority.
func (d *Deezer) Name() string { return DeezerName }

// Search implements Authority.
func (d *Deezer) Search(ctx context.Context, query string, limit int) ([]model.RawRecord, error) {
	artists, err := d.client.SearchArtists(ctx, query, limit)
	if err != nil {
		return nil, classifyDeezerErr(err)
	}
	records := make([]model.RawRecord, 0, len(artists))
	for _, a := range artists {
		records = append(records, deezerRecord(a))
	}
	return records, nil
}

// Lookup implements Authority.
func (d *Deezer) Lookup(ctx context.Context, id string) (*model.RawRecord, error) {
	artist, err := d.client.GetArtist(ctx, id)
	if err != nil {
		return nil, classifyDeezerErr(err)
	}
	if artist == nil {
		return nil, nil
	}
	rec := deezerRecord(*artist)
	return &rec, nil
}

func deezerRecord(a deezer.Artist) model.RawRecord {
	rec := model.RawRecord{
		Authority: DeezerName,
		ID:        strconv.FormatInt(a.ID, 10),
		Name:      a.Name,
		Metadata:  map[string]any{},
	}
	if a.Picture != "" {
		rec.Metadata["image_url"] = a.Picture
	}
	if a.NbFans > 0 {
		rec.Metadata["fans"] = a.NbFans
	}
	if a.NbAlbums > 0 {
		rec.Metadata["albums"] = a.NbAlbums
	}
	return rec
}

func classifyDeezerErr(err error) error {
	if errors.Is(err, deezer.ErrMalformed) {
		return errors.Join(model.ErrMalformedResponse, err)
	}
	var apiErr *deezer.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}
