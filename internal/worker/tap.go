package worker

import "github.com/JakeFAU/fileops/internal/progress"

// tapSink forwards events and remembers how the stream ended. The pipeline
// sends from a single goroutine and the worker reads the tap only after the
// pipeline has returned.
type tapSink struct {
	next   progress.Sink
	last   progress.Type
	failed bool
}

func (t *tapSink) Send(evt progress.Event) error {
	if err := t.next.Send(evt); err != nil {
		t.failed = true
		return err
	}
	t.last = evt.Type
	return nil
}

func (t *tapSink) cancelled() bool {
	return t.last == progress.TypeCancelled
}

func (t *tapSink) disconnected() bool {
	return t.failed
}
