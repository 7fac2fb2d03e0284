package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Address)
	assert.Equal(t, 24000, cfg.Review.MaxSingleChars)
	assert.Equal(t, 12000, cfg.Review.ChunkSize)
	assert.Equal(t, 800, cfg.Review.ChunkOverlap)
	assert.Equal(t, 4, cfg.Review.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Review.CallTimeout())
	assert.Equal(t, 3, cfg.Review.MaxRetries)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 10, cfg.Retrieval.HistoryTurns)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadOverridesAndBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
address: ":9090"
model:
  provider: gemini
  text: gemini-2.5-pro
review:
  concurrency: 8
redis:
  addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, "gemini", cfg.Model.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Model.Text)
	assert.Equal(t, 8, cfg.Review.Concurrency)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	// Unset fields still get defaults.
	assert.Equal(t, 12000, cfg.Review.ChunkSize)
	assert.Equal(t, "data/quill.json", cfg.DataPath)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("address: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}
