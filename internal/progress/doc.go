// Package progress defines the ordered, per-operation event stream delivered
// to whoever launched a file operation, and the Sink abstraction the pipelines
// write it through. A Sink whose Send fails signals that the observer is gone;
// pipelines treat that as an implicit cancellation.
package progress
