package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadQueriesCSV_SingleColumn(t *testing.T) {
	path := writeTempCSV(t, "the beatles\nBjörk\n\nMF DOOM\n")

	queries, err := readQueriesCSV(path)
	require.NoError(t, err)
	require.Len(t, queries, 3)
	assert.Equal(t, "the beatles", queries[0].RawText)
	assert.Equal(t, "Björk", queries[1].RawText)
}

func TestReadQueriesCSV_HeaderColumns(t *testing.T) {
	path := writeTempCSV(t, "raw_text,external_id,authority_hint\nthe beatles,,\n,3WrFJ7z,spotify\n")

	queries, err := readQueriesCSV(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "the beatles", queries[0].RawText)
	assert.Empty(t, queries[0].ExternalID)
	assert.Equal(t, "3WrFJ7z", queries[1].ExternalID)
	assert.Equal(t, "spotify", queries[1].AuthorityHint)
}

func TestReadQueriesCSV_Empty(t *testing.T) {
	path := writeTempCSV(t, "\n")
	_, err := readQueriesCSV(path)
	assert.Error(t, err)
}
