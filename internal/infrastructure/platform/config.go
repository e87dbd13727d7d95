package platform

import "errors"

// Config holds the settings one platform adapter needs. Base URLs are
// overridable so tests and sandbox environments can point adapters at a
// local server.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Validate checks the configuration for required fields
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("platform: base URL is required")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("platform: timeout must be positive")
	}
	return nil
}
