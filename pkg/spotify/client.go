// Package spotify is a minimal client for the Spotify Web API artist
// endpoints. Token acquisition and refresh live outside this package: the
// client only consumes an injected TokenSource.
package spotify

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

const defaultBaseURL = "https://api.spotify.com"

// ErrMalformed marks a response body that could not be decoded.
var ErrMalformed = eris.New("spotify: malformed response")

// TokenSource supplies a bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Useful for tests
// and short-lived tooling.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(_ context.Context) (string, error) {
	return string(t), nil
}

// Client performs artist lookups against the Spotify Web API.
type Client interface {
	SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error)
	GetArtist(ctx context.Context, id string) (*Artist, error)
}

// Artist is the wire shape of a Spotify artist object.
type Artist struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Genres     []string  `json:"genres"`
	Images     []Image   `json:"images"`
	Popularity int       `json:"popularity"`
	Followers  Followers `json:"followers"`
}

// Image is an artist image variant.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// Followers reports follower counts.
type Followers struct {
	Total int `json:"total"`
}

// APIError is a non-success HTTP response from the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify: http %d: %s", e.StatusCode, e.Body)
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
	tokens  TokenSource
	baseURL string
	http    *http.Client
}

// NewClient creates a Spotify API client.
func NewClient(tokens TokenSource, opts ...Option) Client {
	c := &httpClient{
		tokens:  tokens,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
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
	q.Set("q", query)
	q.Set("type", "artist")
	q.Set("limit", strconv.Itoa(limit))

	var out struct {
		Artists struct {
			Items []Artist `json:"items"`
		} `json:"artists"`
	}
	if err := c.get(ctx, "/v1/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Artists.Items, nil
}

func (c *httpClient) GetArtist(ctx context.Context, id string) (*Artist, error) {
	var out Artist
	err := c.get(ctx, "/v1/artists/"+url.PathEscape(id), &out)
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
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return eris.Wrap(err, "spotify: fetch token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "spotify: create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "spotify: do request")
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
