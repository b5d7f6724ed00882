package app

import (
	"fmt"
	"time"

	"github.com/grantsnap/statekit/auth"
	"github.com/grantsnap/statekit/config"
	"github.com/grantsnap/statekit/ephemeral"
	"github.com/grantsnap/statekit/kv/redisstore"
	"github.com/grantsnap/statekit/kv/sqlstore"
	"github.com/grantsnap/statekit/observability"
	"github.com/grantsnap/statekit/persisted"
	"github.com/grantsnap/statekit/server"
	"github.com/grantsnap/statekit/validation"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the statekitd configuration.
//
//	name: statekitd
//	storage:
//	  backend: sqlite
//	  sqlite:
//	    dsn: statekit.db
//	auth:
//	  encryption_key: ${STATEKIT_AUTH_ENCRYPTION_KEY}
//	  jwt:
//	    secret: ${STATEKIT_AUTH_JWT_SECRET}
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Persist   PersistConfig              `yaml:"persist" mapstructure:"persist"`
	Ephemeral EphemeralConfig            `yaml:"ephemeral" mapstructure:"ephemeral"`
	Auth      auth.Config                `yaml:"auth" mapstructure:"auth"`
	Storage   StorageConfig              `yaml:"storage" mapstructure:"storage"`
	Server    server.Config              `yaml:"server" mapstructure:"server"`
	Metrics   observability.MeterConfig  `yaml:"metrics" mapstructure:"metrics"`
	Tracing   observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
}

// PersistConfig holds the defaults for persisted stores created by the app.
type PersistConfig struct {
	Debounce     time.Duration `yaml:"debounce" mapstructure:"debounce" validate:"gte=0"`
	Version      int           `yaml:"version" mapstructure:"version" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
}

// EphemeralConfig configures the component state cache.
type EphemeralConfig struct {
	MaxAge    time.Duration `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix" validate:"required"`
}

// StorageConfig selects the durable backend.
type StorageConfig struct {
	Backend string            `yaml:"backend" mapstructure:"backend" validate:"oneof=memory sqlite redis"`
	SQLite  sqlstore.Config   `yaml:"sqlite" mapstructure:"sqlite" validate:"-"`
	Redis   redisstore.Config `yaml:"redis" mapstructure:"redis" validate:"-"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "statekitd"
	}
	c.ServiceConfig.ApplyDefaults()

	if c.Persist.Debounce == 0 {
		c.Persist.Debounce = persisted.DefaultDebounce
	}
	if c.Persist.Version == 0 {
		c.Persist.Version = persisted.DefaultVersion
	}
	if c.Persist.WriteTimeout == 0 {
		c.Persist.WriteTimeout = persisted.DefaultWriteTimeout
	}
	if c.Ephemeral.MaxAge == 0 {
		c.Ephemeral.MaxAge = ephemeral.DefaultMaxAge
	}
	if c.Ephemeral.KeyPrefix == "" {
		c.Ephemeral.KeyPrefix = ephemeral.DefaultKeyPrefix
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	switch c.Storage.Backend {
	case BackendSQLite:
		c.Storage.SQLite.Enabled = true
	case BackendRedis:
		c.Storage.Redis.Enabled = true
	}
	c.Storage.SQLite.ApplyDefaults()
	c.Storage.Redis.ApplyDefaults()

	c.Auth.ApplyDefaults()
	c.Server.ApplyDefaults()

	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = c.Name
	}
	if c.Metrics.ServiceVersion == "" {
		c.Metrics.ServiceVersion = c.Version
	}
	if c.Metrics.Environment == "" {
		c.Metrics.Environment = c.Environment
	}
	c.Metrics.ApplyDefaults()

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
	if c.Tracing.ServiceVersion == "" {
		c.Tracing.ServiceVersion = c.Version
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = c.Environment
	}
	c.Tracing.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c.Persist); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := validation.Validate(c.Ephemeral); err != nil {
		return fmt.Errorf("ephemeral: %w", err)
	}
	if err := validation.Validate(c.Storage); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Storage.SQLite.Validate(); err != nil {
		return fmt.Errorf("storage.sqlite: %w", err)
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return fmt.Errorf("storage.redis: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Tracing.Validate()
}
