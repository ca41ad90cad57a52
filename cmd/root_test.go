package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegate/resolver/internal/config"
)

func TestApplyMatchConfig_OverridesWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "match.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"match:\n  min_confidence: 0.8\n  tier_weights:\n    credited: 0.7\n",
	), 0o644))

	c, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, applyMatchConfig(c, path))

	assert.Equal(t, 0.8, c.Match.MinConfidence)
	assert.Equal(t, 0.7, c.Match.Weights.Credited)
	assert.Equal(t, 1.0, c.Match.Weights.Primary)
}

func TestApplyMatchConfig_NoFlagKeepsConfig(t *testing.T) {
	c, err := config.Load()
	require.NoError(t, err)
	before := c.Match

	require.NoError(t, applyMatchConfig(c, ""))
	assert.Equal(t, before, c.Match)
}

func TestApplyMatchConfig_MissingFile(t *testing.T) {
	c, err := config.Load()
	require.NoError(t, err)
	assert.Error(t, applyMatchConfig(c, filepath.Join(t.TempDir(), "absent.yaml")))
}
