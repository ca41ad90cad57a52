// Package musicbrainz is a minimal client for the MusicBrainz web
// service artist endpoints. MusicBrainz requires a meaningful User-Agent
// and enforces roughly one request per second per client.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://musicbrainz.org"

// ErrMalformed marks a response body that could not be decoded.
var ErrMalformed = eris.New("musicbrainz: malformed response")

// Client performs artist lookups against the MusicBrainz web service.
type Client interface {
	SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error)
	GetArtist(ctx context.Context, mbid string) (*Artist, error)
}

// Artist is the wire shape of a MusicBrainz artist.
type Artist struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SortName  string     `json:"sort-name"`
	Type      string     `json:"type"`
	Country   string     `json:"country"`
	Score     int        `json:"score"`
	Aliases   []Alias    `json:"aliases"`
	Relations []Relation `json:"relations"`
}

// Alias is an alternative name with its MusicBrainz alias type.
type Alias struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Primary bool   `json:"primary"`
}

// Relation links an artist to an external resource (streaming pages,
// identifier registries).
type Relation struct {
	Type string `json:"type"`
	URL  struct {
		Resource string `json:"resource"`
	} `json:"url"`
}

// APIError is a non-success HTTP response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("musicbrainz: http %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a MusicBrainz client with the given User-Agent.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   defaultBaseURL,
		userAgent: userAgent,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("query", "artist:"+strconv.Quote(query))
	q.Set("fmt", "json")
	q.Set("limit", strconv.Itoa(limit))

	var out struct {
		Artists []Artist `json:"artists"`
	}
	if err := c.get(ctx, "/ws/2/artist?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Artists, nil
}

func (c *httpClient) GetArtist(ctx context.Context, mbid string) (*Artist, error) {
	q := url.Values{}
	q.Set("fmt", "json")
	q.Set("inc", "aliases+url-rels")

	var out Artist
	err := c.get(ctx, "/ws/2/artist/"+url.PathEscape(mbid)+"?"+q.Encode(), &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "musicbrainz: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "musicbrainz: do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(ErrMalformed, err.Error())
	}
	return nil
}
