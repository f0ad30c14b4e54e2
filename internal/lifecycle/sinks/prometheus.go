package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/fileops/internal/lifecycle"
)

// PrometheusSink exports operation lifecycle metrics.
type PrometheusSink struct {
	started   *prometheus.CounterVec
	finished  *prometheus.CounterVec
	running   prometheus.Gauge
	runtime   *prometheus.HistogramVec
	processed *prometheus.CounterVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileops_operations_started_total",
			Help: "Operations that started running.",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileops_operations_finished_total",
			Help: "Operations that reached a terminal state, by result.",
		}, []string{"kind", "result"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fileops_operations_running",
			Help: "Operations currently running.",
		}),
		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fileops_operation_runtime_seconds",
			Help:    "Wall time per finished operation.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"kind", "result"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileops_items_processed_total",
			Help: "Items handled by finished operations, by outcome.",
		}, []string{"kind", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{s.started, s.finished, s.running, s.runtime, s.processed} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register lifecycle collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []lifecycle.Event) error {
	for _, evt := range batch {
		kind := string(evt.Kind)
		if evt.Stage == lifecycle.StageStart {
			s.started.WithLabelValues(kind).Inc()
			s.tracker.start(evt.OperationID)
			s.running.Inc()
			continue
		}
		result := evt.Stage.Result()
		s.finished.WithLabelValues(kind, result).Inc()
		if evt.Dur > 0 {
			s.runtime.WithLabelValues(kind, result).Observe(evt.Dur.Seconds())
		}
		if evt.Succeeded > 0 {
			s.processed.WithLabelValues(kind, "succeeded").Add(float64(evt.Succeeded))
		}
		if evt.Failed > 0 {
			s.processed.WithLabelValues(kind, "failed").Add(float64(evt.Failed))
		}
		if s.tracker.finish(evt.OperationID) {
			s.running.Dec()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker counts starts per id so a reused id is not double counted.
type runTracker struct {
	mu      sync.Mutex
	running map[string]int
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[string]int)}
}

func (t *runTracker) start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running[id]++
}

func (t *runTracker) finish(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.running[id]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.running, id)
	} else {
		t.running[id] = n - 1
	}
	return true
}
