package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const FileName = "attune.yml"

// Config models attune.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Reasoning struct {
		BaseURL       string        `yaml:"base_url"`
		Model         string        `yaml:"model"`
		APIKey        string        `yaml:"api_key"`
		MaxTokens     int           `yaml:"max_tokens"`
		MaxIterations int           `yaml:"max_iterations"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"reasoning"`
	Pipeline struct {
		RetryAttempts     int           `yaml:"retry_attempts"`
		RetryUnit         time.Duration `yaml:"retry_unit"`
		MaxConcurrentRuns int64         `yaml:"max_concurrent_runs"`
	} `yaml:"pipeline"`
	Stream struct {
		Capacity  int           `yaml:"capacity"`
		Heartbeat time.Duration `yaml:"heartbeat"`
	} `yaml:"stream"`
	KnowledgeDir string `yaml:"knowledge_dir"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Reasoning.BaseURL == "" {
		return fmt.Errorf("config.reasoning.base_url is required")
	}
	if c.Reasoning.MaxIterations < 1 {
		return fmt.Errorf("config.reasoning.max_iterations must be at least 1")
	}
	if c.Pipeline.RetryAttempts < 1 {
		return fmt.Errorf("config.pipeline.retry_attempts must be at least 1")
	}
	if c.Pipeline.RetryUnit <= 0 {
		return fmt.Errorf("config.pipeline.retry_unit must be positive")
	}
	if c.Pipeline.MaxConcurrentRuns < 1 {
		return fmt.Errorf("config.pipeline.max_concurrent_runs must be at least 1")
	}
	if c.Stream.Capacity < 1 {
		return fmt.Errorf("config.stream.capacity must be at least 1")
	}
	if c.Stream.Heartbeat <= 0 {
		return fmt.Errorf("config.stream.heartbeat must be positive")
	}
	return nil
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads config from dir. A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8000
  base_path: /api

auth:
  # Set ATTUNE_JWT_SECRET instead of committing a secret here.
  jwt_secret: ""
  token_ttl: 168h

reasoning:
  base_url: https://api.anthropic.com/v1
  model: claude-sonnet-4-5
  api_key: ""
  max_tokens: 4096
  max_iterations: 10
  timeout: 2m

pipeline:
  retry_attempts: 3
  retry_unit: 1s
  max_concurrent_runs: 8

stream:
  capacity: 50
  heartbeat: 120s

knowledge_dir: knowledge
`
