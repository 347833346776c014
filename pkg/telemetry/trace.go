package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/polis-matrix/pkg/domain"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "polis-matrix"

const instrumentationName = "github.com/polisai/polis-matrix"

// Tracer returns the pipeline tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartStage opens a span for one pipeline stage.
func StartStage(ctx context.Context, runID, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{
		attribute.String("run.id", runID),
		attribute.String("pipeline.stage", stage),
	}, attrs...)
	return Tracer().Start(ctx, "matrix."+stage, trace.WithAttributes(attrs...))
}

// RecordStageError marks span as failed and tags it with the error kind.
func RecordStageError(span trace.Span, err error) {
	if span == nil || !span.IsRecording() || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error.kind", ErrorKind(err)))
}

// ErrorKind classifies err into a short label used by spans and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	case errors.Is(err, domain.ErrMalformedRow):
		return "malformed_row"
	case errors.Is(err, domain.ErrIncompleteAssembly):
		return "incomplete_assembly"
	case errors.Is(err, domain.ErrValidationRejected):
		return "validation_rejected"
	case errors.Is(err, domain.ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unknown"
	}
}
