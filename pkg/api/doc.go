// Package api serves the localhost control surface over HTTP/JSON:
// session status, manual sync, bridge configuration (tokens redacted
// on read), the debug timeline, and local bookmark tree operations.
// These are the same ops the popup UI invokes, so the CLI and the UI
// share one contract. Prometheus metrics and a health probe ride on
// the same listener.
package api
