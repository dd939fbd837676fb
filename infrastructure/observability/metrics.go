package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names.
const (
	MetricDispatchCount   = "multicall.dispatch.count"
	MetricCommandCount    = "multicall.command.count"
	MetricCommandDuration = "multicall.command.duration"
)

// Dispatch outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeToolFailed  = "tool_failed"
	OutcomeHelp        = "help"
	OutcomeNotFound    = "not_found"
	OutcomeNotCallable = "not_callable"
)

// Metrics holds the instruments recorded by the dispatcher and executor.
type Metrics struct {
	dispatches      metric.Int64Counter
	commands        metric.Int64Counter
	commandDuration metric.Float64Histogram
}

// NewMetrics creates the instruments from mp, or from the global provider
// when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	dispatches, err := meter.Int64Counter(MetricDispatchCount,
		metric.WithDescription("Number of tool dispatches"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricDispatchCount, err)
	}

	commands, err := meter.Int64Counter(MetricCommandCount,
		metric.WithDescription("Number of executed commands"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricCommandCount, err)
	}

	duration, err := meter.Float64Histogram(MetricCommandDuration,
		metric.WithDescription("Command execution time"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricCommandDuration, err)
	}

	return &Metrics{
		dispatches:      dispatches,
		commands:        commands,
		commandDuration: duration,
	}, nil
}

// RecordDispatch counts one dispatch.
func (m *Metrics) RecordDispatch(ctx context.Context, tool, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome),
	))
}

// RecordCommand counts one executed command and its duration.
func (m *Metrics) RecordCommand(ctx context.Context, tool, kind string, succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("kind", kind),
		attribute.Bool("success", succeeded),
	)
	m.commands.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}
