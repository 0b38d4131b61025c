package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
	"github.com/r3e-network/agentmemory/internal/logging"
	"github.com/r3e-network/agentmemory/internal/memerr"
	"github.com/r3e-network/agentmemory/internal/patterns"
	"github.com/r3e-network/agentmemory/internal/queue"
	"github.com/r3e-network/agentmemory/internal/storage"
	"github.com/r3e-network/agentmemory/internal/storage/coordinator"
	"github.com/r3e-network/agentmemory/internal/storage/embedded"
)

// fakeBackend is a minimal in-memory storage.Backend, mirroring the
// coordinator package's own fakeDurable test double.
type fakeBackend struct {
	mu       sync.Mutex
	episodes map[string]*episode.Episode
	patterns map[string]*pattern.Pattern
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{episodes: make(map[string]*episode.Episode), patterns: make(map[string]*pattern.Pattern)}
}

func (f *fakeBackend) Name() string { return "fake" }

type fakeWrite struct{ onCommit func() error }

func (w *fakeWrite) Commit(context.Context) error   { return w.onCommit() }
func (w *fakeWrite) Rollback(context.Context) error { return nil }

func (f *fakeBackend) PrepareStoreEpisode(_ context.Context, ep *episode.Episode) (storage.PreparedWrite, error) {
	return &fakeWrite{onCommit: func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.episodes[ep.EpisodeID] = ep
		return nil
	}}, nil
}

func (f *fakeBackend) GetEpisode(_ context.Context, id string) (*episode.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return nil, memerr.ErrNotFound("no such episode")
	}
	return ep, nil
}

func (f *fakeBackend) DeleteEpisode(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.episodes, id)
	return nil
}

func (f *fakeBackend) QueryEpisodes(_ context.Context, _ storage.QueryFilter) ([]*episode.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*episode.Episode, 0, len(f.episodes))
	for _, ep := range f.episodes {
		out = append(out, ep)
	}
	return out, nil
}

func (f *fakeBackend) CountEpisodes(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.episodes), nil
}

func (f *fakeBackend) ListEpisodesForEviction(ctx context.Context) ([]*episode.Episode, error) {
	return f.QueryEpisodes(ctx, storage.QueryFilter{})
}

func (f *fakeBackend) GetPattern(_ context.Context, id string) (*pattern.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok {
		return nil, memerr.ErrNotFound("no such pattern")
	}
	return p, nil
}

func (f *fakeBackend) DeletePattern(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.patterns, id)
	return nil
}

func (f *fakeBackend) QueryPatterns(context.Context, storage.PatternFilter) ([]*pattern.Pattern, error) {
	return nil, nil
}

func (f *fakeBackend) PrepareStorePattern(_ context.Context, p *pattern.Pattern) (storage.PreparedWrite, error) {
	return &fakeWrite{onCommit: func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.patterns[p.PatternID] = p
		return nil
	}}, nil
}

func newTestEngine(t *testing.T, q *queue.Queue) (*Engine, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	log := logging.New("test", "error", "text")
	coordCfg := coordinator.DefaultConfig()
	coord := coordinator.New(backend, embedded.New(embedded.DefaultConfig()), coordCfg, log)

	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.MaxBufferAge = time.Hour
	cfg.SyncExtraction = q == nil

	tracker := patterns.NewTracker(patterns.DefaultWeights())
	eng := New(coord, q, tracker, nil, cfg, log)
	return eng, backend
}

func validContext() episode.Context {
	return episode.Context{Domain: "backend", Complexity: episode.Moderate}
}

func TestEngine_StartLogComplete_SyncExtraction(t *testing.T) {
	eng, backend := newTestEngine(t, nil)
	ctx := context.Background()
	eng.Start(ctx)
	defer eng.Stop()

	id, err := eng.StartEpisode(ctx, "build and test the service", validContext(), "build")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "compiler", Action: "compile", Result: episode.Success("ok")}))
	require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "tester", Action: "test", Result: episode.Success("pass")}))

	outcome := episode.NewSuccess("build passed", []string{"binary"})
	require.NoError(t, eng.CompleteEpisode(ctx, id, outcome))

	stored, err := backend.GetEpisode(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)
	assert.NotNil(t, stored.Reward)
	assert.NotNil(t, stored.Reflection)
	assert.NotNil(t, stored.EndTime)
}

func TestEngine_CompleteEpisode_SeedsTrackerForExtractedPatterns(t *testing.T) {
	eng, backend := newTestEngine(t, nil)
	ctx := context.Background()
	eng.Start(ctx)
	defer eng.Stop()

	id, err := eng.StartEpisode(ctx, "build and test the service", validContext(), "build")
	require.NoError(t, err)
	require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "compiler", Action: "compile", Result: episode.Success("ok")}))
	require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "tester", Action: "test", Result: episode.Success("pass")}))
	require.NoError(t, eng.CompleteEpisode(ctx, id, episode.NewSuccess("build passed", []string{"binary"})))

	stored, err := backend.GetEpisode(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, stored.PatternIDs, "extraction should have produced at least one pattern")

	for _, patternID := range stored.PatternIDs {
		p, ok := backend.patterns[patternID]
		require.True(t, ok)
		assert.False(t, p.CreatedAt.IsZero())
		assert.False(t, p.LastUsedAt.IsZero())

		_, tracked := eng.tracker.Snapshot(patternID)
		assert.True(t, tracked, "pattern %s must be seeded in the tracker even before any retrieval", patternID)
	}

	decayed := eng.tracker.DecayOldPatterns(time.Now().AddDate(0, 0, 90))
	for _, patternID := range stored.PatternIDs {
		assert.Contains(t, decayed, patternID, "a never-retrieved pattern must still surface as a decay candidate")
	}
}

func TestEngine_LogStep_UnknownEpisodeReturnsNotFound(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	err := eng.LogStep(context.Background(), "missing", episode.Step{Tool: "x", Result: episode.Success("ok")})
	assert.True(t, memerr.Is(err, memerr.NotFound))
}

func TestEngine_CompleteEpisode_TwiceIsInvalidState(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := eng.StartEpisode(ctx, "task", validContext(), "t")
	require.NoError(t, err)

	outcome := episode.NewSuccess("done", nil)
	require.NoError(t, eng.CompleteEpisode(ctx, id, outcome))

	err = eng.CompleteEpisode(ctx, id, outcome)
	assert.True(t, memerr.Is(err, memerr.InvalidState))
}

func TestEngine_LogStep_AfterCompleteIsInvalidState(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := eng.StartEpisode(ctx, "task", validContext(), "t")
	require.NoError(t, err)
	require.NoError(t, eng.CompleteEpisode(ctx, id, episode.NewSuccess("done", nil)))

	err = eng.LogStep(ctx, id, episode.Step{Tool: "x", Result: episode.Success("ok")})
	assert.True(t, memerr.Is(err, memerr.InvalidState))
}

func TestEngine_StartEpisode_RejectsEmptyDescription(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	_, err := eng.StartEpisode(context.Background(), "  ", validContext(), "t")
	assert.True(t, memerr.Is(err, memerr.Validation))
}

func TestEngine_LogStep_FlushesAtBatchSize(t *testing.T) {
	eng, backend := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := eng.StartEpisode(ctx, "task", validContext(), "t")
	require.NoError(t, err)

	require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "a", Result: episode.Success("ok")}))
	// BatchSize is 2; after this second step a flush should have happened.
	require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "b", Result: episode.Success("ok")}))

	stored, err := backend.GetEpisode(ctx, id)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)
}

func TestEngine_ConcurrentLogStep_NoDuplicationOrRace(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := eng.StartEpisode(ctx, "task", validContext(), "t")
	require.NoError(t, err)

	const callers = 20
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(n int) {
			defer wg.Done()
			_ = eng.LogStep(ctx, id, episode.Step{Tool: "worker", Result: episode.Success("ok")})
		}(i)
	}
	wg.Wait()

	ae, ok := eng.lookup(id)
	require.True(t, ok)
	assert.Len(t, ae.ep.Steps, callers)

	seen := make(map[int]bool)
	for _, s := range ae.ep.Steps {
		assert.False(t, seen[s.StepNumber], "duplicate step number")
		seen[s.StepNumber] = true
	}
}

func TestEngine_CompleteEpisode_AsyncExtraction(t *testing.T) {
	backend := newFakeBackend()
	log := logging.New("test", "error", "text")
	coord := coordinator.New(backend, embedded.New(embedded.DefaultConfig()), coordinator.DefaultConfig(), log)

	cfg := DefaultConfig()
	cfg.BatchSize = 100
	tracker := patterns.NewTracker(patterns.DefaultWeights())

	eng := New(coord, nil, tracker, nil, cfg, log)
	q := queue.New(queue.Config{WorkerCount: 1, MaxQueueSize: 10, PollInterval: 5 * time.Millisecond}, eng.ExtractionHandler(), log)
	eng.q = q

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	defer eng.Stop()

	id, err := eng.StartEpisode(ctx, "task requiring extraction", validContext(), "t")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, eng.LogStep(ctx, id, episode.Step{Tool: "tool", Action: "act", Result: episode.Success("ok")}))
	}
	require.NoError(t, eng.CompleteEpisode(ctx, id, episode.NewSuccess("done", nil)))

	require.Eventually(t, func() bool {
		return q.Stats().Processed+q.Stats().Failed >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_CompleteEpisode_RejectsOutcomeWithoutVerdict(t *testing.T) {
	eng, _ := newTestEngine(t, nil)
	ctx := context.Background()

	id, err := eng.StartEpisode(ctx, "task", validContext(), "t")
	require.NoError(t, err)

	badOutcome := episode.NewSuccess("", nil)
	err = eng.CompleteEpisode(ctx, id, badOutcome)
	require.Error(t, err)
	assert.True(t, memerr.Is(err, memerr.Validation))

	// The episode must still be completable afterward with a valid outcome.
	require.NoError(t, eng.CompleteEpisode(ctx, id, episode.NewSuccess("done", nil)))
}
