// Package reverse implements the legacy HTTP delivery path for the
// reverse queue: one POST per flush round to <bridge>/reverse-sync,
// authenticated by the project token header. The WebSocket session is
// the primary transport; this path keeps older bridges working and
// covers the window while a socket is down.
package reverse
