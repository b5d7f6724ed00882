package auth

import (
	"fmt"
	"time"

	"github.com/grantsnap/statekit/auth/jwt"
)

// DefaultStorageKey is where the session is kept in storage.
const DefaultStorageKey = "statekit.auth.session"

// Config holds authentication configuration.
type Config struct {
	// StorageKey is the storage key of the persisted session.
	StorageKey string `mapstructure:"storage_key"`

	// CacheTTL is how long the auth cache serves an entry without
	// re-querying the provider.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// EncryptionKey seals the stored session. Empty stores it in the clear.
	EncryptionKey string `mapstructure:"encryption_key"`

	// JWT configures token signing and validation.
	JWT jwt.Config `mapstructure:"jwt"`
}

// ApplyDefaults sets sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 300 * time.Second
	}
	c.JWT.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.StorageKey == "" {
		return fmt.Errorf("auth: storage_key is required")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("auth: cache_ttl must not be negative")
	}
	if err := c.JWT.Validate(); err != nil {
		return fmt.Errorf("auth.jwt: %w", err)
	}
	return nil
}

// Describe returns a human-readable one-liner for the startup summary.
// Example: "JWT(HS256) TTL=1h0m0s cache=5m0s sealed"
func (c *Config) Describe() string {
	line := fmt.Sprintf("JWT(%s) TTL=%s cache=%s", c.JWT.Method, c.JWT.AccessTokenTTL, c.CacheTTL)
	if c.EncryptionKey != "" {
		line += " sealed"
	}
	return line
}
