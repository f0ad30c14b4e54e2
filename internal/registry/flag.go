package registry

import "sync/atomic"

// Flag is a monotonic cancellation signal shared between the registry entry
// and the worker running the operation. Workers poll IsCancelled at their
// checkpoints; nothing ever blocks on it.
type Flag struct {
	cancelled atomic.Bool
}

// NewFlag returns a Flag in the not-cancelled state.
func NewFlag() *Flag {
	return &Flag{}
}

// Cancel sets the flag. Safe to call any number of times.
func (f *Flag) Cancel() {
	f.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called. A nil Flag is never
// cancelled.
func (f *Flag) IsCancelled() bool {
	if f == nil {
		return false
	}
	return f.cancelled.Load()
}

var correlationSeq atomic.Uint64

// NextCorrelationID returns a process-wide increasing number used to tie log
// lines for one command together. It carries no correctness guarantees.
func NextCorrelationID() uint64 {
	return correlationSeq.Add(1)
}
