// Package deezer is a minimal client for the public Deezer artist API.
// The API is unauthenticated.
package deezer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.deezer.com"

// ErrMalformed marks a response body that could not be decoded.
var ErrMalformed = eris.New("deezer: malformed response")

// Client performs artist lookups against the Deezer API.
type Client interface {
	SearchArtists(ctx context.Context, query string, limit int) ([]Artist, error)
	GetArtist(ctx context.Context, id string) (*Artist, error)
}

// Artist is the wire shape of a Deezer artist object.
type Artist struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Link     string `json:"link"`
	Picture  string `json:"picture_medium"`
	NbAlbums int    `json:"nb_album"`
	NbFans   int    `json:"nb_fan"`
}

// APIError is a non-success HTTP response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("deezer: http %d: %s", e.StatusCode, e.Body)
}

// apiFault is Deezer's in-band error envelope, delivered with HTTP 200.
type apiFault struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
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
	baseURL string
	http    *http.Client
}

// NewClient creates a Deezer API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
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
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/search/artist?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var out struct {
		apiFault
		Data []Artist `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(ErrMalformed, err.Error())
	}
	if out.Error != nil {
		return nil, eris.Wrapf(ErrMalformed, "deezer error %d: %s", out.Error.Code, out.Error.Message)
	}
	return out.Data, nil
}

func (c *httpClient) GetArtist(ctx context.Context, id string) (*Artist, error) {
	body, err := c.get(ctx, "/artist/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var fault apiFault
	if err := json.Unmarshal(body, &fault); err == nil && fault.Error != nil {
		// Unknown id is reported in-band.
		if fault.Error.Code == 800 {
			return nil, nil
		}
		return nil, eris.Wrapf(ErrMalformed, "deezer error %d: %s", fault.Error.Code, fault.Error.Message)
	}

	var artist Artist
	if err := json.Unmarshal(body, &artist); err != nil {
		return nil, eris.Wrap(ErrMalformed, err.Error())
	}
	return &artist, nil
}

func (c *httpClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrap(err, "deezer: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "deezer: do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "deezer: read response")
	}
	return body, nil
}
