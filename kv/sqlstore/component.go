package sqlstore

import (
	"context"
	"fmt"

	"github.com/grantsnap/statekit/component"
	"github.com/grantsnap/statekit/logger"
)

// Component wraps Store and implements component.Component for lifecycle management.
type Component struct {
	store *Store
	cfg   Config
	log   *logger.Logger
	opts  []Option
}

// NewComponent creates a SQLite storage component for use with the component registry.
// opts are passed to Open on Start.
func NewComponent(cfg Config, log *logger.Logger, opts ...Option) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg:  cfg,
		log:  log.WithComponent("sqlite"),
		opts: opts,
	}
}

// ensure Component satisfies component.Component
var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "sqlite" }

// Store returns the kv.Storage, or nil if not started.
func (c *Component) Store() *Store { return c.store }

// Start opens the database and migrates the schema.
func (c *Component) Start(ctx context.Context) error {
	store, err := Open(ctx, c.cfg, c.log, c.opts...)
	if err != nil {
		return fmt.Errorf("sqlite start: %w", err)
	}
	c.store = store
	return nil
}

// Stop closes the database.
func (c *Component) Stop(_ context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Health returns the current health status of the database.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.store == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "sqlite not initialized",
		}
	}
	if err := c.store.Ping(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns infrastructure summary info for the startup log.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "SQLite store",
		Type:    "storage",
		Details: fmt.Sprintf("%s pool=%d/%d", c.cfg.DSN, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns),
	}
}
