// Package timeline retains the last 200 pipeline events for operator
// inspection through the status surface. It is a diagnostic ring, not
// a log: entries carry a level, an event name, and a short summary
// with identifiers only, never tokens or full URLs.
package timeline
