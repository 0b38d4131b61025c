package embedded

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/storage"
)

func newTestEpisode(id, domain string) *episode.Episode {
	return &episode.Episode{
		EpisodeID:       id,
		TaskType:        "refactor",
		TaskDescription: "test episode",
		Context:         episode.Context{Domain: domain, Complexity: episode.Moderate},
		StartTime:       time.Now().UTC(),
	}
}

func TestStore_StoreAndGetEpisode(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()

	write, err := s.PrepareStoreEpisode(ctx, newTestEpisode("ep-1", "backend"))
	require.NoError(t, err)
	require.NoError(t, write.Commit(ctx))

	got, err := s.GetEpisode(ctx, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, "ep-1", got.EpisodeID)
	assert.Equal(t, "backend", got.Context.Domain)
}

func TestStore_PrepareRollbackDoesNotCommit(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()

	write, err := s.PrepareStoreEpisode(ctx, newTestEpisode("ep-2", "backend"))
	require.NoError(t, err)
	require.NoError(t, write.Rollback(ctx))

	_, err = s.GetEpisode(ctx, "ep-2")
	assert.Error(t, err)
}

func TestStore_GetEpisode_NotFound(t *testing.T) {
	s := New(DefaultConfig())
	_, err := s.GetEpisode(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStore_QueryEpisodes_FiltersAndOrders(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()

	older := newTestEpisode("ep-old", "backend")
	older.StartTime = time.Now().Add(-48 * time.Hour)
	newer := newTestEpisode("ep-new", "backend")
	other := newTestEpisode("ep-other", "frontend")

	for _, ep := range []*episode.Episode{older, newer, other} {
		w, err := s.PrepareStoreEpisode(ctx, ep)
		require.NoError(t, err)
		require.NoError(t, w.Commit(ctx))
	}

	results, err := s.QueryEpisodes(ctx, storage.QueryFilter{Domain: "backend"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ep-new", results[0].EpisodeID)
	assert.Equal(t, "ep-old", results[1].EpisodeID)
}

func TestStore_QueryCache_RoundTrip(t *testing.T) {
	s := New(DefaultConfig())
	filter := storage.QueryFilter{Domain: "backend"}

	_, _, ok := s.CachedQuery(filter)
	assert.False(t, ok)

	results := []*episode.Episode{newTestEpisode("ep-1", "backend")}
	s.CacheQuery(filter, results, time.Minute, true)

	cached, degraded, ok := s.CachedQuery(filter)
	require.True(t, ok)
	assert.True(t, degraded)
	assert.Len(t, cached, 1)
}

func TestStore_DeleteEpisode_InvalidatesQueryCache(t *testing.T) {
	s := New(DefaultConfig())
	ctx := context.Background()
	ep := newTestEpisode("ep-1", "backend")

	w, err := s.PrepareStoreEpisode(ctx, ep)
	require.NoError(t, err)
	require.NoError(t, w.Commit(ctx))

	filter := storage.QueryFilter{Domain: "backend"}
	s.CacheQuery(filter, []*episode.Episode{ep}, time.Minute, false)

	require.NoError(t, s.DeleteEpisode(ctx, "ep-1"))

	_, _, ok := s.CachedQuery(filter)
	assert.False(t, ok)
}
