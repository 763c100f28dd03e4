package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Easel configuration
type Config struct {
	// Board behavior
	Board BoardConfig `json:"board" mapstructure:"board"`

	// AI provider configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Hub (broadcast server) configuration
	Hub HubConfig `json:"hub" mapstructure:"hub"`

	// Renderer (snapshot capture) configuration
	Renderer RendererConfig `json:"renderer" mapstructure:"renderer"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// BoardConfig tunes the verification loop
type BoardConfig struct {
	ID            string `json:"id" mapstructure:"id"`
	MaxIterations int    `json:"max_iterations" mapstructure:"max_iterations"`
	SettleDelayMs int    `json:"settle_delay_ms" mapstructure:"settle_delay_ms"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles    []AIProfile `json:"profiles" mapstructure:"profiles"`
	Model       string      `json:"model" mapstructure:"model"`
	Temperature float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int         `json:"max_tokens" mapstructure:"max_tokens"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// HubConfig holds broadcast hub server configuration
type HubConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// RendererConfig holds snapshot capture configuration
type RendererConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	BoardURL string `json:"board_url" mapstructure:"board_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Board: BoardConfig{
			ID:            "main",
			MaxIterations: 5,
			SettleDelayMs: 500,
		},
		AI: AIConfig{
			Profiles:    []AIProfile{},
			Model:       "claude-sonnet-4",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Hub: HubConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Renderer: RendererConfig{
			Enabled:  false,
			BoardURL: "",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
	}

	if c.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return fmt.Errorf("ai temperature must be between 0 and 1")
	}

	if c.Board.ID == "" {
		return fmt.Errorf("board id is required")
	}
	if c.Board.MaxIterations <= 0 {
		return fmt.Errorf("board max_iterations must be positive")
	}
	if c.Board.SettleDelayMs < 0 {
		return fmt.Errorf("board settle_delay_ms cannot be negative")
	}

	if c.Hub.Port <= 0 || c.Hub.Port > 65535 {
		return fmt.Errorf("invalid hub port: %d", c.Hub.Port)
	}

	if c.Renderer.Enabled && c.Renderer.BoardURL == "" {
		return fmt.Errorf("renderer board_url is required when capture is enabled")
	}

	return nil
}
