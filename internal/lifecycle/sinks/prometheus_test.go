package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fileops/internal/lifecycle"
	"github.com/JakeFAU/fileops/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []lifecycle.Event{
		{OperationID: "op-1", Kind: progress.KindDelete, TS: now, Stage: lifecycle.StageStart},
		{OperationID: "op-2", Kind: progress.KindSearch, TS: now, Stage: lifecycle.StageStart},
		{
			OperationID: "op-1",
			Kind:        progress.KindDelete,
			TS:          now.Add(time.Second),
			Stage:       lifecycle.StageDone,
			Items:       3,
			Succeeded:   2,
			Failed:      1,
			Dur:         time.Second,
		},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.started.WithLabelValues("delete")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.started.WithLabelValues("search")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("delete", "completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.running))
	require.InDelta(t, 2.0, testutil.ToFloat64(sink.processed.WithLabelValues("delete", "succeeded")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.processed.WithLabelValues("delete", "failed")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.runtime, "fileops_operation_runtime_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []lifecycle.Event{
		{OperationID: "op-2", Kind: progress.KindSearch, TS: now, Stage: lifecycle.StageCancelled},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.running))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("search", "cancelled")))
}

func TestPrometheusSinkRejectedDoesNotTouchRunning(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []lifecycle.Event{
		{OperationID: "op-9", Kind: progress.KindSearch, TS: time.Now(), Stage: lifecycle.StageRejected},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.running))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.finished.WithLabelValues("search", "rejected")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
