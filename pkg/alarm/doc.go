// Package alarm provides the two timing primitives the pipeline runs
// on: a Debouncer for responsiveness (a burst of captures flushes once,
// shortly after the burst ends) and a Periodic alarm for durability
// (a standing tick that guarantees progress after arbitrary pauses,
// when no in-process timer survived).
package alarm
