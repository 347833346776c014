// Package telemetry wires OpenTelemetry tracing and metering for the matrix
// pipeline.
//
// It sets up the process-wide tracer provider (OTLP over gRPC when an
// endpoint is configured), records per-stage execution counters and
// latencies, and annotates stage spans with the failure kind so a failed run
// can be traced back to the request that broke it.
package telemetry
