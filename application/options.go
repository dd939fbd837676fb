package application

import (
	"io"

	"github.com/felixgeelhaar/multicall/infrastructure/observability"
)

// Option configures the dispatcher.
type Option func(*DispatcherConfig)

// WithTracer sets the tracer for dispatch spans.
func WithTracer(t *observability.Tracer) Option {
	return func(c *DispatcherConfig) {
		c.Tracer = t
	}
}

// WithMetrics sets the instruments dispatches are counted with.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *DispatcherConfig) {
		c.Metrics = m
	}
}

// WithHelpOutput sets where the usage text is written.
func WithHelpOutput(w io.Writer) Option {
	return func(c *DispatcherConfig) {
		c.Help = w
	}
}
