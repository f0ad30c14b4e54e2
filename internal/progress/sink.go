package progress

import "errors"

// ErrDisconnected is returned by Send once the observer has gone away.
var ErrDisconnected = errors.New("progress observer disconnected")

// Sink receives the events of one operation, in order. Send must not block
// the producing worker for long; a non-nil error means the observer is gone
// and no further events will be read.
type Sink interface {
	Send(evt Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event) error

// Send calls f.
func (f SinkFunc) Send(evt Event) error {
	return f(evt)
}

// Discard is a Sink that accepts and drops everything. The synchronous
// operation variants run with it.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(Event) error { return nil }
