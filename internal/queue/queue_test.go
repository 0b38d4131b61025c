package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

func TestQueue_EnqueueAndProcess(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond

	q := New(cfg, func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.Episode.EpisodeID)
		mu.Unlock()
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.Start(ctx)
	defer q.Stop()

	ok := q.Enqueue(Job{Episode: &episode.Episode{EpisodeID: "ep-1"}, EnqueuedAt: time.Now()})
	require.True(t, ok)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, time.Second, 5*time.Millisecond)

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Processed)
}

func TestQueue_EnqueueRejectsWhenFull(t *testing.T) {
	cfg := Config{WorkerCount: 1, MaxQueueSize: 1, PollInterval: time.Hour}
	blockCh := make(chan struct{})

	q := New(cfg, func(ctx context.Context, job Job) error {
		<-blockCh
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer func() {
		close(blockCh)
		q.Stop()
	}()

	require.True(t, q.Enqueue(Job{Episode: &episode.Episode{EpisodeID: "a"}}))

	require.Eventually(t, func() bool {
		return true
	}, 20*time.Millisecond, 5*time.Millisecond)

	accepted := 0
	for i := 0; i < 5; i++ {
		if q.Enqueue(Job{Episode: &episode.Episode{EpisodeID: "b"}}) {
			accepted++
		}
	}
	assert.LessOrEqual(t, accepted, 1)
}

func TestQueue_RecordsFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond

	q := New(cfg, func(ctx context.Context, job Job) error {
		return assert.AnError
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	q.Enqueue(Job{Episode: &episode.Episode{EpisodeID: "ep-1"}})

	require.Eventually(t, func() bool {
		return q.Stats().Failed == 1
	}, time.Second, 5*time.Millisecond)
}

func TestQueue_Unbounded_NeverRejectsAndDrainsAll(t *testing.T) {
	blockCh := make(chan struct{})

	cfg := Config{WorkerCount: 1, MaxQueueSize: 0, PollInterval: time.Hour}
	q := New(cfg, func(ctx context.Context, job Job) error {
		<-blockCh
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	const jobCount = 50
	for i := 0; i < jobCount; i++ {
		ok := q.Enqueue(Job{Episode: &episode.Episode{EpisodeID: string(rune('a' + i%26))}})
		require.True(t, ok, "unbounded queue must never reject")
	}

	require.Eventually(t, func() bool {
		return q.Stats().CurrentQueueSize == jobCount-1
	}, time.Second, 5*time.Millisecond)

	close(blockCh)
	q.Stop()

	require.Eventually(t, func() bool {
		return q.Stats().Processed == jobCount
	}, time.Second, 5*time.Millisecond)
}

func TestQueue_StopIsIdempotentAndRestartable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond

	q := New(cfg, func(ctx context.Context, job Job) error { return nil }, nil)
	ctx := context.Background()

	q.Start(ctx)
	q.Stop()
	q.Stop() // second Stop must not block or panic

	q.Start(ctx)
	defer q.Stop()

	ok := q.Enqueue(Job{Episode: &episode.Episode{EpisodeID: "after-restart"}})
	assert.True(t, ok)
}
