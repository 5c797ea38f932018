// Package client is the HTTP client for the daemon's control API,
// used by the CLI subcommands.
package client
