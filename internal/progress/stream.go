package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Stream is an ordered Sink connecting one producer (the worker) with one
// consumer (an HTTP response, a CLI renderer). Send never blocks.
//
// The queue holds at most its capacity of Scanning and Progress events; once
// full, further ones are dropped until the consumer catches up. Started,
// Matching and terminal events are always queued.
//
// The consumer calls Close when it stops reading; every later Send fails with
// ErrDisconnected. The producer calls Finish once it has sent its last event;
// Next then drains what is queued and returns io.EOF.
type Stream struct {
	mu       sync.Mutex
	queue    []Event
	capacity int
	dropped  int
	closed   bool
	finished bool
	notify   chan struct{}
}

// DefaultStreamCapacity bounds the queue of a Stream built by NewStream.
const DefaultStreamCapacity = 1024

// NewStream returns an open Stream with DefaultStreamCapacity.
func NewStream() *Stream {
	return NewStreamSize(DefaultStreamCapacity)
}

// NewStreamSize returns an open Stream holding up to capacity queued
// intermediate events. A capacity below 1 is treated as 1.
func NewStreamSize(capacity int) *Stream {
	return &Stream{capacity: max(capacity, 1), notify: make(chan struct{}, 1)}
}

// Send enqueues evt unless the consumer has closed the stream. An
// intermediate event arriving at a full queue is dropped without error.
func (s *Stream) Send(evt Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrDisconnected
	}
	if len(s.queue) >= s.capacity && droppable(evt) {
		s.dropped++
		s.mu.Unlock()
		return nil
	}
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	s.wake()
	return nil
}

// Dropped returns how many events were discarded on a full queue.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func droppable(evt Event) bool {
	return evt.Type == TypeScanning || evt.Type == TypeProgress
}

// Finish marks the end of production.
func (s *Stream) Finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.wake()
}

// Close disconnects the consumer and drops anything still queued.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.wake()
}

// Next returns the next queued event, waiting until one arrives, the stream
// is finished (io.EOF), closed (ErrDisconnected), or ctx is done.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		switch {
		case s.closed:
			s.mu.Unlock()
			return Event{}, ErrDisconnected
		case len(s.queue) > 0:
			evt := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return evt, nil
		case s.finished:
			s.mu.Unlock()
			return Event{}, io.EOF
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return Event{}, fmt.Errorf("wait for progress: %w", ctx.Err())
		}
	}
}

func (s *Stream) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
