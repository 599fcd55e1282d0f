// Package telemetry provides observability for the optimization pipeline.
//
// It combines four concerns behind a single Telemetry aggregate:
//
//   - structured logging via zerolog, with component child loggers and
//     context propagation
//   - distributed tracing via OpenTelemetry, with OTLP and stdout exporters
//   - Prometheus metrics covering executions, workflows, retries, circuit
//     breakers, and rollbacks
//   - an asynchronous event bus for pipeline lifecycle events
//
// Each component is independently configurable and degrades to a no-op when
// disabled, so library consumers pay nothing for what they do not use.
package telemetry
