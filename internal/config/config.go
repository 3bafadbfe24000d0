// Package config loads service configuration and constructs the logger.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment variables.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.dsn", "./data/flowforge.db")

	// Auth
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "720h")

	// Quotas
	v.SetDefault("quota.registered_daily", 5)
	v.SetDefault("quota.guest_monthly", 1)

	// LLM provider
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.timeout", "2m")
	v.SetDefault("llm.openai.temperature", 0.7)
	v.SetDefault("llm.openai.max_tokens", 4096)

	// Chat relay
	v.SetDefault("chat.max_messages", 50)
	v.SetDefault("chat.max_message_bytes", 32768)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("flowforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/flowforge")
	}

	// Environment variable support: FF_SERVER_PORT=9090
	v.SetEnvPrefix("FF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
