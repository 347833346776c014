package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce           sync.Once
	metricsInitErr        error
	stageExecutionCounter metric.Int64Counter
	stageFailureCounter   metric.Int64Counter
	stageLatencyHistogram metric.Float64Histogram
)

// StageMetrics captures the fields needed to record one stage execution.
type StageMetrics struct {
	RunID     string
	Stage     string
	Outcome   string
	ErrorKind string
	Size      int
	Duration  time.Duration
}

// RecordStageMetrics emits counters and histograms describing a stage execution.
func RecordStageMetrics(ctx context.Context, m StageMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.stage", m.Stage),
		attribute.String("stage.outcome", m.Outcome),
		attribute.Int("matrix.size", m.Size),
	}

	stageExecutionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		stageLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}

	if m.ErrorKind != "" {
		stageFailureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pipeline.stage", m.Stage),
			attribute.String("error.kind", m.ErrorKind),
		))
	}
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)

		stageExecutionCounter, metricsInitErr = meter.Int64Counter(
			"matrix.stage.executions_total",
			metric.WithDescription("Pipeline stage executions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageFailureCounter, metricsInitErr = meter.Int64Counter(
			"matrix.stage.failures_total",
			metric.WithDescription("Pipeline stage failures partitioned by error kind"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"matrix.stage.duration_ms",
			metric.WithDescription("Observed stage latency"),
			metric.WithUnit("ms"),
		)
	})

	return metricsInitErr
}
