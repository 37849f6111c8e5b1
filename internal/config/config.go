package config

import (
	"fmt"
	"time"
)

const (
	// DefaultPollInterval is how often the scheduler checks for due posts.
	DefaultPollInterval = 5 * time.Minute

	// DefaultMaxRetries bounds transient delivery reattempts per post.
	DefaultMaxRetries = 3
)

// Config holds all configuration for the application. It is populated by
// the entrypoint and injected explicitly; nothing reads ambient state.
type Config struct {
	// Addr is the HTTP listen address (e.g. ":8080").
	Addr string

	// DatabasePath is the SQLite database file path.
	DatabasePath string

	// PollInterval is how often the scheduler checks for due posts.
	PollInterval time.Duration

	// MaxRetries is the number of transient delivery failures tolerated
	// before a post is moved to failed.
	MaxRetries int

	// TwitterAPIURL overrides the Twitter API base URL. Empty means the
	// public endpoint.
	TwitterAPIURL string

	// TwitterBearerToken authenticates against the Twitter API. Empty
	// disables the twitter publisher.
	TwitterBearerToken string
}

// Validate checks the configuration for values the service cannot run
// with.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}
