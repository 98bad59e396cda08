package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tcgen configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Generation settings
	Generation GenerationConfig `yaml:"generation"`

	// Upload limits
	Upload UploadConfig `yaml:"upload"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model provider.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // anthropic, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	MaxTokens int    `yaml:"max_tokens"`
}

// GenerationConfig configures how ADO rows are produced.
type GenerationConfig struct {
	// Path to the system prompt file sent with every block
	PromptFile string `yaml:"prompt_file"`

	// State written on every test-case metadata row
	State string `yaml:"state"`

	// Area Path override; empty means the project id is used
	AreaPath string `yaml:"area_path"`

	// First test-case index per requirement block
	TCStart int `yaml:"tc_start"`
}

// UploadConfig limits accepted source documents.
type UploadConfig struct {
	MaxMB       int      `yaml:"max_mb"`
	AllowedExts []string `yaml:"allowed_exts"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "tcgen",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5-20250929",
			BaseURL:   "https://api.anthropic.com/v1",
			Timeout:   "600s",
			MaxTokens: 20000,
		},

		Generation: GenerationConfig{
			PromptFile: "prompt/prompt.txt",
			State:      "Design",
			TCStart:    1,
		},

		Upload: UploadConfig{
			MaxMB:       25,
			AllowedExts: []string{".pdf", ".docx", ".txt"},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "tcgen.log",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment (check in priority order)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}

	if model := os.Getenv("TCGEN_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if raw := os.Getenv("MAX_TOKENS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.LLM.MaxTokens = n
		}
	}
	if raw := os.Getenv("MAX_UPLOAD_MB"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.Upload.MaxMB = n
		}
	}
	if path := os.Getenv("TCGEN_PROMPT_FILE"); path != "" {
		c.Generation.PromptFile = path
	}
}

// GetTimeout returns the LLM timeout as a duration.
func (c LLMConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 600 * time.Second
	}
	return d
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return c.LLM.GetTimeout()
}
