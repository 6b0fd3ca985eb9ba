package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"visionrag/internal/config"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, "hash", cfg.Embed.Text.Type)
	require.Equal(t, 384, cfg.Embed.Text.Dimension)
	require.Equal(t, "hash", cfg.Embed.Image.Type)
	require.Equal(t, 512, cfg.Embed.Image.Dimension)
	require.Equal(t, 600, cfg.Chunker.ChunkSize)
	require.NotNil(t, cfg.Chunker.Overlap)
	require.Equal(t, 80, *cfg.Chunker.Overlap)
	require.Equal(t, 30, cfg.Chunker.CSVRowBlock)
	require.Equal(t, "file", cfg.Index.Type)
	require.Equal(t, 5, cfg.Retrieval.TopKText)
	require.Equal(t, 4, cfg.Retrieval.TopKImage)
	require.Equal(t, "rrf", cfg.Retrieval.Fuse)
	require.NotNil(t, cfg.Retrieval.TextWeight)
	require.Equal(t, 1.0, *cfg.Retrieval.TextWeight)
	require.NotNil(t, cfg.Retrieval.ImageWeight)
	require.Equal(t, 1.0, *cfg.Retrieval.ImageWeight)
}

func TestLoadKeepsExplicitZeroes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
chunker:
  overlap: 0
retrieval:
  fuse: weighted_sum
  image_weight: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	// An explicit 0 is a choice, not an omission.
	require.NotNil(t, cfg.Chunker.Overlap)
	require.Equal(t, 0, *cfg.Chunker.Overlap)
	require.NotNil(t, cfg.Retrieval.ImageWeight)
	require.Equal(t, 0.0, *cfg.Retrieval.ImageWeight)
	// Unset knobs still pick up defaults.
	require.NotNil(t, cfg.Retrieval.TextWeight)
	require.Equal(t, 1.0, *cfg.Retrieval.TextWeight)
	require.Equal(t, 600, cfg.Chunker.ChunkSize)
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embed:
  text:
    type: openai
    model: text-embedding-3-large
retrieval:
  fuse: weighted_sum
  top_k_text: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "openai", cfg.Embed.Text.Type)
	require.Equal(t, "text-embedding-3-large", cfg.Embed.Text.Model)
	require.NotNil(t, cfg.Embed.Text.OpenAI)
	require.Equal(t, "https://api.openai.com/v1", cfg.Embed.Text.OpenAI.BaseURL)
	require.Equal(t, "OPENAI_API_KEY", cfg.Embed.Text.OpenAI.APIKeyEnv)

	require.Equal(t, "weighted_sum", cfg.Retrieval.Fuse)
	require.Equal(t, 8, cfg.Retrieval.TopKText)
	require.Equal(t, 4, cfg.Retrieval.TopKImage)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	cfg.Index.Dir = "custom/index"
	cfg.OCR.Enabled = true
	cfg.OCR.Lang = "deu"

	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "custom/index", loaded.Index.Dir)
	require.True(t, loaded.OCR.Enabled)
	require.Equal(t, "deu", loaded.OCR.Lang)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embed: [unclosed"), 0o644))
	_, err := config.Load(path)
	require.Error(t, err)
}
