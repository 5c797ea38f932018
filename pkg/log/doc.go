/*
Package log provides structured logging for marksync built on zerolog.

Init configures the global logger once at process start; components
derive child loggers carrying stable identifying fields:

	logger := log.WithComponent("session")
	logger.Info().Str("reason", reason).Msg("ws ensure")

Console output (human-readable, RFC3339 timestamps) is the default;
JSONOutput switches to machine-readable lines for log shippers.

Two redaction rules hold everywhere: bridge token values are never
logged, and full bridge URLs are never logged (profiles are identified
by client id instead).
*/
package log
