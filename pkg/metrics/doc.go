// Package metrics defines the Prometheus collectors for the sync
// pipeline: queue depth and drainage, flush rounds, ack outcomes,
// suppressed captures, inbound apply results, and session health. All
// collectors are registered at init and served by the control API on
// /metrics.
package metrics
