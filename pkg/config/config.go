// Package config loads the application configuration from YAML, falling back
// to sane defaults when no file exists.
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig names the models used for text, embeddings and images.
type ModelConfig struct {
	Provider  string `yaml:"provider"`
	Text      string `yaml:"text"`
	Embedding string `yaml:"embedding"`
	Image     string `yaml:"image"`
	BaseURL   string `yaml:"base_url,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// ReviewConfig tunes the chunked review pipeline.
type ReviewConfig struct {
	MaxSingleChars  int `yaml:"max_single_chars"`
	ChunkSize       int `yaml:"chunk_size"`
	ChunkOverlap    int `yaml:"chunk_overlap"`
	Concurrency     int `yaml:"concurrency"`
	CallTimeoutSecs int `yaml:"call_timeout_secs"`
	MaxRetries      int `yaml:"max_retries"`
}

func (r ReviewConfig) CallTimeout() time.Duration {
	return time.Duration(r.CallTimeoutSecs) * time.Second
}

// RetrievalConfig tunes semantic search over notes and uploads.
type RetrievalConfig struct {
	TopK         int `yaml:"top_k"`
	HistoryTurns int `yaml:"history_turns"`
}

// RedisConfig enables the Redis chat-history backend when Addr is set.
type RedisConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Address   string          `yaml:"address"`
	DataPath  string          `yaml:"data_path"`
	IndexRoot string          `yaml:"index_root"`
	MediaRoot string          `yaml:"media_root"`
	Model     ModelConfig     `yaml:"model"`
	Review    ReviewConfig    `yaml:"review"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Redis     RedisConfig     `yaml:"redis"`
}

// Load reads a config from path. A missing file yields defaults.
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
	applyDefaults(&cfg)
	return &cfg, nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Address == "" {
		cfg.Address = ":8000"
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "data/quill.json"
	}
	if cfg.IndexRoot == "" {
		cfg.IndexRoot = "data/indexes"
	}
	if cfg.MediaRoot == "" {
		cfg.MediaRoot = "data/media"
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "openai"
	}
	if cfg.Model.APIKeyEnv == "" {
		cfg.Model.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Review.MaxSingleChars == 0 {
		cfg.Review.MaxSingleChars = 24000
	}
	if cfg.Review.ChunkSize == 0 {
		cfg.Review.ChunkSize = 12000
	}
	if cfg.Review.ChunkOverlap == 0 {
		cfg.Review.ChunkOverlap = 800
	}
	if cfg.Review.Concurrency == 0 {
		cfg.Review.Concurrency = 4
	}
	if cfg.Review.CallTimeoutSecs == 0 {
		cfg.Review.CallTimeoutSecs = 90
	}
	if cfg.Review.MaxRetries == 0 {
		cfg.Review.MaxRetries = 3
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}
	if cfg.Retrieval.HistoryTurns == 0 {
		cfg.Retrieval.HistoryTurns = 10
	}
}
