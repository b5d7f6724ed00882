package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/grantsnap/statekit/logger"
)

// MeterName is the instrumentation scope used by statekit instruments.
const MeterName = "github.com/grantsnap/statekit"

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// Enabled turns on the OTLP exporter. When false the global noop provider is kept.
	Enabled bool `mapstructure:"enabled"`
	// ServiceName is the name of the service.
	ServiceName string `mapstructure:"service_name"`
	// ServiceVersion is the version of the service.
	ServiceVersion string `mapstructure:"service_version"`
	// Environment is the deployment environment (dev, staging, prod).
	Environment string `mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string `mapstructure:"endpoint"`
	// Insecure allows insecure connections (for development).
	Insecure bool `mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `mapstructure:"interval"`
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// ApplyDefaults fills zero fields with development defaults.
func (c *MeterConfig) ApplyDefaults() {
	d := DefaultMeterConfig(c.ServiceName)
	if c.ServiceVersion == "" {
		c.ServiceVersion = d.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
	if c.Endpoint == "" {
		c.Endpoint = d.Endpoint
	}
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
}

// Validate checks the configuration when the exporter is enabled.
func (c *MeterConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return fmt.Errorf("observability: meter service_name is required")
	}
	if c.Interval < 0 {
		return fmt.Errorf("observability: meter interval must not be negative")
	}
	return nil
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds the instruments recorded by the persistence and auth layers.
type Metrics struct {
	persistWrites    metric.Int64Counter
	persistFailures  metric.Int64Counter
	persistCoalesced metric.Int64Counter
	ephemeralRestore metric.Int64Counter
	ephemeralExpired metric.Int64Counter
	authQueries      metric.Int64Counter
	authUpdates      metric.Int64Counter
	authQueryTime    metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.persistWrites, "statekit.persist.writes", "Durable entry writes attempted"},
		{&m.persistFailures, "statekit.persist.write_failures", "Durable entry writes that failed"},
		{&m.persistCoalesced, "statekit.persist.coalesced", "Updates absorbed by a pending debounce window"},
		{&m.ephemeralRestore, "statekit.ephemeral.restores", "Component states restored from session storage"},
		{&m.ephemeralExpired, "statekit.ephemeral.expired", "Component states discarded as expired"},
		{&m.authQueries, "statekit.auth.queries", "Queries sent to the authentication provider"},
		{&m.authUpdates, "statekit.auth.updates", "Auth cache updates broadcast to subscribers"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	queryTime, err := meter.Float64Histogram("statekit.auth.query.duration",
		metric.WithDescription("Duration of provider session queries in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating statekit.auth.query.duration histogram: %w", err)
	}
	m.authQueryTime = queryTime

	return m, nil
}

// RecordPersistWrite records a durable write for key. A non-nil err counts as a failure.
func (m *Metrics) RecordPersistWrite(ctx context.Context, key string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrKey, key))
	m.persistWrites.Add(ctx, 1, attrs)
	if err != nil {
		m.persistFailures.Add(ctx, 1, attrs)
	}
}

// RecordCoalesced records an update that replaced a pending debounced write.
func (m *Metrics) RecordCoalesced(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.persistCoalesced.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrKey, key)))
}

// RecordEphemeralRestore records a component state adopted from session storage.
func (m *Metrics) RecordEphemeralRestore(ctx context.Context, componentID string) {
	if m == nil {
		return
	}
	m.ephemeralRestore.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrComponentID, componentID)))
}

// RecordEphemeralExpired records a component state discarded because it aged out.
func (m *Metrics) RecordEphemeralExpired(ctx context.Context, componentID string) {
	if m == nil {
		return
	}
	m.ephemeralExpired.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrComponentID, componentID)))
}

// RecordAuthQuery records one provider session query and its outcome.
func (m *Metrics) RecordAuthQuery(ctx context.Context, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.authQueries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
	m.authQueryTime.Record(ctx, duration.Seconds())
}

// RecordAuthUpdate records a cache update triggered by event.
func (m *Metrics) RecordAuthUpdate(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.authUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrEvent, event)))
}
