package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/novel-crawler/internal/novel"
)

func item(id string) novel.QueueItem {
	return novel.QueueItem{Job: novel.Job{ID: id}}
}

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan novel.QueueItem, 1)
	errCh := make(chan error, 1)

	go func() {
		got, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- got
	}()

	require.NoError(t, q.Enqueue(context.Background(), item("12345")))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "12345", got.Job.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueFIFOAndLen(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	require.Equal(t, 3, q.Cap())
	for _, id := range []string{"a1", "b2", "c3"} {
		require.NoError(t, q.Enqueue(context.Background(), item(id)))
	}
	require.Equal(t, 3, q.Len())

	for _, want := range []string{"a1", "b2", "c3"} {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, got.Job.ID)
	}
	require.Zero(t, q.Len())
}

func TestQueueFullEnqueueHonorsDeadline(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), item("primed")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, item("overflow"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCanceledDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, novel.ErrQueueClosed)
	q.Close()
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	require.ErrorIs(t, q.Enqueue(context.Background(), item("late")), novel.ErrQueueClosed)
}

func TestQueueCloseWakesBlockedEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), item("primed")))

	errCh := make(chan error, 1)
	go func() {
		errCh <- q.Enqueue(context.Background(), item("blocked"))
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, novel.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not return after close")
	}

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "primed", got.Job.ID)
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, novel.ErrQueueClosed)
}
