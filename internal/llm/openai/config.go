package openai

import "time"

// Config holds the OpenAI provider configuration.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// DefaultConfig returns sensible defaults for OpenAI.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Timeout:     2 * time.Minute,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}
