package deezer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchArtists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/artist", r.URL.Path)
		assert.Equal(t, "daft punk", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"data": [{"id": 27, "name": "Daft Punk", "nb_album": 22, "nb_fan": 9000000}]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	artists, err := c.SearchArtists(context.Background(), "daft punk", 5)
	require.NoError(t, err)
	require.Len(t, artists, 1)
	assert.Equal(t, int64(27), artists[0].ID)
	assert.Equal(t, "Daft Punk", artists[0].Name)
}

func TestGetArtist_UnknownID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Deezer reports unknown ids in-band with HTTP 200.
		_, _ = w.Write([]byte(`{"error": {"type": "DataException", "message": "no data", "code": 800}}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	artist, err := c.GetArtist(context.Background(), "0")
	require.NoError(t, err)
	assert.Nil(t, artist)
}

func TestGetArtist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/artist/27", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 27, "name": "Daft Punk"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	artist, err := c.GetArtist(context.Background(), "27")
	require.NoError(t, err)
	require.NotNil(t, artist)
	assert.Equal(t, "Daft Punk", artist.Name)
}

func TestSearchArtists_QuotaFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"type": "Exception", "message": "quota", "code": 4}}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.SearchArtists(context.Background(), "x", 1)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	_, err := c.SearchArtists(context.Background(), "x", 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}
