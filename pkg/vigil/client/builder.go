package client

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/petrellis/vigil/pkg/vigil/o11y"
	"github.com/petrellis/vigil/pkg/vigil/presence"
)

// ClientBuilder provides a fluent interface for building presence
// clients. The endpoint is not part of the configuration; it is passed
// to Connect, matching how the client is driven interactively.
type ClientBuilder struct {
	logger           *zap.Logger
	dialTimeout      time.Duration
	writeChannelSize int
	headers          map[string][]string
	renderer         presence.Renderer
	monitor          Monitor
	metricsProvider  o11y.MetricsProvider
	tracingProvider  o11y.TracingProvider
}

// NewClient creates a new presence client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger:           zap.NewNop(),
		dialTimeout:      30 * time.Second,
		writeChannelSize: 16,
	}
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithDialTimeout sets the timeout for establishing the WebSocket
// connection.
func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.dialTimeout = timeout
	}
	return b
}

// WithWriteChannelSize sets the buffer size for the internal write
// channel.
func (b *ClientBuilder) WithWriteChannelSize(size int) *ClientBuilder {
	if size > 0 {
		b.writeChannelSize = size
	}
	return b
}

// WithHeader sets a single HTTP header for the WebSocket handshake.
func (b *ClientBuilder) WithHeader(key, value string) *ClientBuilder {
	if b.headers == nil {
		b.headers = make(map[string][]string)
	}
	b.headers[key] = []string{value}
	return b
}

// WithRenderer sets the display collaborator that will receive
// per-subject state notifications. Required.
func (b *ClientBuilder) WithRenderer(renderer presence.Renderer) *ClientBuilder {
	b.renderer = renderer
	return b
}

// WithMonitor sets an optional monitor that will receive connection
// status change notifications.
func (b *ClientBuilder) WithMonitor(monitor Monitor) *ClientBuilder {
	b.monitor = monitor
	return b
}

// WithMetricsProvider enables metrics collection through the given
// provider.
func (b *ClientBuilder) WithMetricsProvider(provider o11y.MetricsProvider) *ClientBuilder {
	b.metricsProvider = provider
	return b
}

// WithTracingProvider enables spans around Connect and Subscribe.
func (b *ClientBuilder) WithTracingProvider(provider o11y.TracingProvider) *ClientBuilder {
	b.tracingProvider = provider
	return b
}

// Build creates the client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	table := presence.NewTable()

	return &Client{
		logger:           b.logger,
		dialTimeout:      b.dialTimeout,
		writeChannelSize: b.writeChannelSize,
		headers:          b.headers,
		monitor:          b.monitor,
		metrics:          NewMetrics(b.metricsProvider),
		tracer:           b.tracingProvider,
		table:            table,
		reconciler:       presence.NewReconciler(table, b.renderer, b.logger),
	}, nil
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.renderer == nil {
		return fmt.Errorf("renderer is required")
	}

	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.dialTimeout <= 0 {
		b.dialTimeout = 30 * time.Second
	}
	if b.writeChannelSize <= 0 {
		b.writeChannelSize = 16
	}

	return nil
}
