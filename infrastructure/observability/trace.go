package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter of this module.
const InstrumentationName = "github.com/felixgeelhaar/multicall"

// Span names.
const (
	SpanDispatch = "multicall.dispatch"
	SpanCommand  = "multicall.command"
)

// Attribute keys.
const (
	AttrArgv0      = attribute.Key("multicall.argv0")
	AttrTool       = attribute.Key("multicall.tool")
	AttrExitCode   = attribute.Key("multicall.exit_code")
	AttrOutcome    = attribute.Key("multicall.outcome")
	AttrCommandID  = attribute.Key("multicall.command.id")
	AttrKind       = attribute.Key("multicall.command.kind")
	AttrNeedsShift = attribute.Key("multicall.prepend_arg")
)

// Tracer creates the spans of dispatch and command execution.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from tp, or from the global provider when tp is
// nil.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(InstrumentationName)}
}

// StartDispatch starts the span covering one dispatch of argv0.
func (t *Tracer) StartDispatch(ctx context.Context, argv0 string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDispatch,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrArgv0.String(argv0)),
	)
}

// StartCommand starts the span covering the execution of one command.
func (t *Tracer) StartCommand(ctx context.Context, id, tool, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanCommand,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			AttrCommandID.String(id),
			AttrTool.String(tool),
			AttrKind.String(kind),
		),
	)
}

// Finish records the result on span and ends it. A non-zero exit code or an
// error marks the span as failed.
func Finish(span trace.Span, exitCode int, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(AttrExitCode.Int(exitCode))
	span.SetAttributes(attrs...)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case exitCode != 0:
		span.SetStatus(codes.Error, "non-zero exit")
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
