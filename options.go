package rsg

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/rsg/config"
	"github.com/zero-day-ai/rsg/id"
	"github.com/zero-day-ai/rsg/queue"
	"github.com/zero-day-ai/rsg/registry"
)

// Option configures a WorldModel.
type Option func(*options)

type options struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.MeterProvider
	generator  id.Generator
	redis      queue.Client
	registry   *registry.Client
}

// WithConfig uses cfg as is. It takes precedence over WithConfigFile.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithConfigFile loads rsg.yaml from path, a file or a directory searched
// upwards, and applies RSG_* environment overrides.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithLogger sets a custom logger. If not provided, a text logger on
// stderr at the configured level is created.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for store writes, dispatch and
// queries.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMeterProvider records dispatcher delivery metrics.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) {
		o.meter = provider
	}
}

// WithGenerator sets the ID generator of the store.
func WithGenerator(g id.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

// WithRedisClient uses client instead of dialing the configured URL.
// The caller keeps ownership and closes it.
func WithRedisClient(client queue.Client) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithRegistryClient uses client instead of dialing the configured etcd
// endpoints. The caller keeps ownership and closes it.
func WithRegistryClient(client *registry.Client) Option {
	return func(o *options) {
		o.registry = client
	}
}
