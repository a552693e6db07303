package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuforge/conversion-engine/internal/storage"
)

func TestMemoryQueue_PriorityOrdering(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	low := Job{ConversionID: uuid.New(), Priority: storage.PriorityLow}
	def := Job{ConversionID: uuid.New(), Priority: storage.PriorityDefault}
	high := Job{ConversionID: uuid.New(), Priority: storage.PriorityHigh}

	require.NoError(t, q.Enqueue(ctx, low))
	require.NoError(t, q.Enqueue(ctx, def))
	require.NoError(t, q.Enqueue(ctx, high))
	assert.Equal(t, 3, q.Len())

	// High drains first regardless of enqueue order, then default, then low.
	for _, want := range []uuid.UUID{high.ConversionID, def.ConversionID, low.ConversionID} {
		job, err := q.Dequeue(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, want, job.ConversionID)
	}
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_FIFOWithinLane(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	first := Job{ConversionID: uuid.New()}
	second := Job{ConversionID: uuid.New()}
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, first.ConversionID, job.ConversionID)
}

func TestMemoryQueue_DequeueEmptyTimesOut(t *testing.T) {
	q := NewMemoryQueue()

	start := time.Now()
	_, err := q.Dequeue(context.Background(), 50*time.Millisecond)

	assert.ErrorIs(t, err, ErrEmpty)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryQueue_DequeueWakesOnEnqueue(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	job := Job{ConversionID: uuid.New()}

	done := make(chan *Job, 1)
	go func() {
		got, err := q.Dequeue(ctx, 5*time.Second)
		if err == nil {
			done <- got
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(ctx, job))

	select {
	case got := <-done:
		assert.Equal(t, job.ConversionID, got.ConversionID)
	case <-time.After(2 * time.Second):
		t.Fatal("dequeue did not wake on enqueue")
	}
}

func TestMemoryQueue_DequeueHonorsContextCancel(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := q.Dequeue(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_EnqueueDefaults(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ConversionID: uuid.New()}))

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, storage.PriorityDefault, job.Priority)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestMemoryQueue_ClosedRejectsEnqueueButDrains(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	job := Job{ConversionID: uuid.New()}

	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Close())

	assert.Error(t, q.Enqueue(ctx, Job{ConversionID: uuid.New()}))

	got, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err, "jobs enqueued before close stay drainable")
	assert.Equal(t, job.ConversionID, got.ConversionID)
}

func TestLaneKey(t *testing.T) {
	assert.Equal(t, "ce:jobs:high", laneKey("ce:", storage.PriorityHigh))
	assert.Equal(t, "ce:jobs:default", laneKey("ce:", storage.PriorityDefault))
	assert.Equal(t, "ce:jobs:low", laneKey("ce:", storage.PriorityLow))
}
