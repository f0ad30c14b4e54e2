// Package memory holds the process-local stores: operation history, the
// renamer session and an in-memory report blob store.
package memory
