package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fileops/internal/progress"
)

// recorder keeps every accepted event. hook runs first; a non-nil error
// rejects the event as a disconnected observer would.
type recorder struct {
	mu     sync.Mutex
	events []progress.Event
	hook   func(progress.Event) error
}

func (r *recorder) Send(evt progress.Event) error {
	if r.hook != nil {
		if err := r.hook(evt); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *recorder) Types() []progress.Type {
	var out []progress.Type
	for _, evt := range r.Events() {
		out = append(out, evt.Type)
	}
	return out
}

func (r *recorder) Last() progress.Event {
	events := r.Events()
	if len(events) == 0 {
		return progress.Event{}
	}
	return events[len(events)-1]
}

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
	}
}

func newTestRunner(cfg Config) *Runner {
	return New(cfg, nil)
}
