// Package lifecycle carries operation milestones (start, completion,
// cancellation, failure) from workers to pluggable sinks. Events are batched
// on a background goroutine by a non-blocking Hub so that metrics, logs and
// the history store never slow the pipelines down.
package lifecycle
