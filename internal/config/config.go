package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds configuration for an OpenAI-compatible embeddings
// endpoint.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// TextEmbedConfig selects and configures the text embedder.
type TextEmbedConfig struct {
	Type      string        `yaml:"type"` // hash | openai
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	OpenAI    *OpenAIConfig `yaml:"openai,omitempty"`
}

// ImageEmbedConfig selects and configures the image embedder.
type ImageEmbedConfig struct {
	Type      string        `yaml:"type"` // hash | remote
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Remote    *OpenAIConfig `yaml:"remote,omitempty"`
}

// EmbedConfig groups the per-modality embedder settings.
type EmbedConfig struct {
	Text  TextEmbedConfig  `yaml:"text"`
	Image ImageEmbedConfig `yaml:"image"`
}

// OCRConfig configures the OCR fallback for scanned pages.
type OCRConfig struct {
	Enabled bool   `yaml:"enabled"`
	Lang    string `yaml:"lang"`
	Command string `yaml:"command"`
}

// RenderConfig configures PDF page rasterization.
type RenderConfig struct {
	Command string `yaml:"command"`
	DPI     int    `yaml:"dpi"`
}

// ChunkerConfig configures how extracted text is split into passages.
// Overlap is a pointer so an explicit 0 (no overlap) survives loading.
type ChunkerConfig struct {
	ChunkSize   int  `yaml:"chunk_size"`
	Overlap     *int `yaml:"overlap"`
	CSVRowBlock int  `yaml:"csv_row_block"`
}

// QdrantConfig contains connection details for a Qdrant index backend.
type QdrantConfig struct {
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// IndexConfig selects and configures the index store backend.
type IndexConfig struct {
	Type   string        `yaml:"type"` // file | qdrant
	Dir    string        `yaml:"dir"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// RetrievalConfig configures per-modality candidate counts and fusion.
// The weights are pointers so an explicit 0 (mute a modality's
// contribution) is distinguishable from unset.
type RetrievalConfig struct {
	TopKText    int      `yaml:"top_k_text"`
	TopKImage   int      `yaml:"top_k_image"`
	Fuse        string   `yaml:"fuse"` // rrf | weighted_sum | max
	TextWeight  *float64 `yaml:"text_weight"`
	ImageWeight *float64 `yaml:"image_weight"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embed     EmbedConfig     `yaml:"embed"`
	OCR       OCRConfig       `yaml:"ocr"`
	Render    RenderConfig    `yaml:"render"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/visionrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/visionrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "visionrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embed.Text.Type == "" {
		cfg.Embed.Text.Type = "hash"
	}
	if cfg.Embed.Text.Dimension == 0 {
		cfg.Embed.Text.Dimension = 384
	}
	if cfg.Embed.Image.Type == "" {
		cfg.Embed.Image.Type = "hash"
	}
	if cfg.Embed.Image.Dimension == 0 {
		cfg.Embed.Image.Dimension = 512
	}
	if cfg.Embed.Text.Type == "openai" {
		if cfg.Embed.Text.OpenAI == nil {
			cfg.Embed.Text.OpenAI = &OpenAIConfig{}
		}
		applyEndpointDefaults(cfg.Embed.Text.OpenAI)
		if cfg.Embed.Text.Model == "" {
			cfg.Embed.Text.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embed.Image.Type == "remote" {
		if cfg.Embed.Image.Remote == nil {
			cfg.Embed.Image.Remote = &OpenAIConfig{}
		}
		applyEndpointDefaults(cfg.Embed.Image.Remote)
		if cfg.Embed.Image.Model == "" {
			cfg.Embed.Image.Model = "clip-ViT-B-32"
		}
	}
	if cfg.OCR.Lang == "" {
		cfg.OCR.Lang = "eng"
	}
	if cfg.OCR.Command == "" {
		cfg.OCR.Command = "tesseract"
	}
	if cfg.Render.Command == "" {
		cfg.Render.Command = "pdftoppm"
	}
	if cfg.Render.DPI == 0 {
		cfg.Render.DPI = 150
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 600
	}
	if cfg.Chunker.Overlap == nil {
		overlap := 80
		cfg.Chunker.Overlap = &overlap
	}
	if cfg.Chunker.CSVRowBlock == 0 {
		cfg.Chunker.CSVRowBlock = 30
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "file"
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = filepath.Join("data", "embeddings")
	}
	if cfg.Index.Type == "qdrant" && cfg.Index.Qdrant != nil {
		if cfg.Index.Qdrant.CollectionPrefix == "" {
			cfg.Index.Qdrant.CollectionPrefix = "visionrag"
		}
		if cfg.Index.Qdrant.TimeoutSecs == 0 {
			cfg.Index.Qdrant.TimeoutSecs = 15
		}
	}
	if cfg.Retrieval.TopKText == 0 {
		cfg.Retrieval.TopKText = 5
	}
	if cfg.Retrieval.TopKImage == 0 {
		cfg.Retrieval.TopKImage = 4
	}
	if cfg.Retrieval.Fuse == "" {
		cfg.Retrieval.Fuse = "rrf"
	}
	if cfg.Retrieval.TextWeight == nil {
		w := 1.0
		cfg.Retrieval.TextWeight = &w
	}
	if cfg.Retrieval.ImageWeight == nil {
		w := 1.0
		cfg.Retrieval.ImageWeight = &w
	}
}

func applyEndpointDefaults(c *OpenAIConfig) {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 30
	}
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}
