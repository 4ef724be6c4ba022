// Package sinks implements progress consumers for structured logs,
// Prometheus and job run history. Each sink satisfies progress.Sink.
package sinks
