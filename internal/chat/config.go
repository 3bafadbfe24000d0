package chat

// Config holds chat request limits.
type Config struct {
	MaxMessages     int `mapstructure:"max_messages"`
	MaxMessageBytes int `mapstructure:"max_message_bytes"`
}

// DefaultConfig returns the default chat limits.
func DefaultConfig() Config {
	return Config{
		MaxMessages:     50,
		MaxMessageBytes: 32 * 1024,
	}
}
