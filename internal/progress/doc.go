// Package progress carries job lifecycle events from the pipeline to pluggable
// sinks. Producers call Emit, which never blocks; a background goroutine batches
// events and hands them to sinks such as structured logs or Prometheus.
package progress
