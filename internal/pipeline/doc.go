// Package pipeline runs the file operations behind the service: a two-phase
// search (sequential scan, then a parallel match), a sequential delete with
// optional empty-directory cleanup, and single-phase list and rename.
//
// Pipelines never block on their observer. They poll a Canceller and treat a
// failed progress send as if the operation had been cancelled. Cancellation
// is not an error: a cancelled search returns an empty result, a cancelled
// delete returns whatever it had done so far.
package pipeline
