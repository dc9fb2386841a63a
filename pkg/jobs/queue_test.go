package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	done := make(chan struct{}, 4)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 8})

	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "noop"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "a"})
	require.Error(t, err)
}

func TestQueueFullDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("tiny", func(ctx context.Context, job Job) error {
		<-block
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	q.Start(context.Background())
	defer func() {
		close(block)
		q.Stop()
	}()

	// First job occupies the worker, second fills the buffer.
	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Enqueue(Job{ID: "b"}))

	err := q.Enqueue(Job{ID: "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")
}

func TestQueueRetriesFailedJob(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q := NewQueue("flaky", func(ctx context.Context, job Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4, MaxRetries: 5, RetryDelay: 10 * time.Millisecond})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a", Type: "flaky"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried to success")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}
