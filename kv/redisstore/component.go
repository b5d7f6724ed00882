package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/grantsnap/statekit/component"
	"github.com/grantsnap/statekit/logger"
	"github.com/grantsnap/statekit/resilience"
)

// Component wraps Client and implements component.Component for lifecycle management.
type Component struct {
	client *Client
	store  *Store
	cfg    Config
	log    *logger.Logger
}

// NewComponent creates a Redis storage component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{
		cfg: cfg,
		log: log.WithComponent("redis"),
	}
}

// ensure Component satisfies component.Component
var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "redis" }

// Store returns the kv.Storage, or nil if not started.
func (c *Component) Store() *Store { return c.store }

// Start initializes the Redis client and verifies connectivity.
func (c *Component) Start(ctx context.Context) error {
	client, err := New(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("redis start: %w", err)
	}

	policy := resilience.DefaultPolicy()
	policy.Attempts = c.cfg.ConnectAttempts
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("redis not reachable, retrying", logger.Fields(
			"attempt", attempt,
			"wait", wait.String(),
			logger.FieldError, err.Error(),
		))
	}
	if err := resilience.Do(ctx, policy, client.Ping); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis start ping: %w", err)
	}

	c.client = client
	c.store = NewStore(client, c.cfg.KeyPrefix)
	return nil
}

// Stop gracefully closes the Redis connection.
func (c *Component) Stop(_ context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health returns the current health status of the Redis connection.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.client == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "redis not initialized",
		}
	}

	if err := c.client.Ping(ctx); err != nil {
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
		Name:    "Redis store",
		Type:    "storage",
		Details: fmt.Sprintf("%s db=%d prefix=%s", c.cfg.Addr, c.cfg.DB, c.cfg.KeyPrefix),
	}
}
