package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/storage/embedded"
)

func TestRelevance_DecaysWithAge(t *testing.T) {
	now := time.Now().UTC()
	fresh := &episode.Episode{StartTime: now, Reward: &episode.RewardScore{Total: 0.8}}
	old := &episode.Episode{StartTime: now.Add(-60 * 24 * time.Hour), Reward: &episode.RewardScore{Total: 0.8}}

	assert.Greater(t, Relevance(fresh, now), Relevance(old, now))
}

func TestManager_Enforce_EvictsLowestRelevanceFirst(t *testing.T) {
	store := embedded.New(embedded.DefaultConfig())
	ctx := context.Background()
	now := time.Now().UTC()

	low := &episode.Episode{EpisodeID: "low", StartTime: now.Add(-90 * 24 * time.Hour), Reward: &episode.RewardScore{Total: 0.1}}
	high := &episode.Episode{EpisodeID: "high", StartTime: now, Reward: &episode.RewardScore{Total: 0.9}}

	for _, ep := range []*episode.Episode{low, high} {
		w, err := store.PrepareStoreEpisode(ctx, ep)
		require.NoError(t, err)
		require.NoError(t, w.Commit(ctx))
	}

	mgr := New(Config{MaxEpisodes: 1, Policy: RelevanceWeighted})
	evicted, err := mgr.Enforce(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = store.GetEpisode(ctx, "low")
	assert.Error(t, err)
	_, err = store.GetEpisode(ctx, "high")
	assert.NoError(t, err)
}

func TestManager_Enforce_NoOpUnderLimit(t *testing.T) {
	store := embedded.New(embedded.DefaultConfig())
	ctx := context.Background()

	w, err := store.PrepareStoreEpisode(ctx, &episode.Episode{EpisodeID: "e1", StartTime: time.Now()})
	require.NoError(t, err)
	require.NoError(t, w.Commit(ctx))

	mgr := New(DefaultConfig())
	evicted, err := mgr.Enforce(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 0, evicted)
}
