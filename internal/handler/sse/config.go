package sse

import "time"

// Config holds configuration for SSE responses
type Config struct {
	// KeepAliveInterval is how often to send keep-alive comments while a turn runs.
	// Workers calling a model can stay silent for longer than most proxy idle timeouts.
	KeepAliveInterval time.Duration
}

// DefaultConfig returns the default SSE configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
	}
}
