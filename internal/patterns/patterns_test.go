package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
)

func TestExtract_FindsErrorRecovery(t *testing.T) {
	ep := &episode.Episode{
		EpisodeID: "ep-1",
		Steps: []episode.Step{
			{Tool: "build", Result: episode.Error("compile failed")},
			{Tool: "fix_imports", Result: episode.Success("ok")},
		},
	}

	candidates := Extract(context.Background(), ep)
	found := false
	for _, p := range candidates {
		if p.Variant == pattern.ErrorRecovery && p.Fields.FailingTool == "build" && p.Fields.RecoveryTool == "fix_imports" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExtract_FindsContextPattern(t *testing.T) {
	success := episode.NewSuccess("done", nil)
	ep := &episode.Episode{
		EpisodeID: "ep-1",
		Context:   episode.Context{Domain: "backend", Language: "go"},
		Outcome:   &success,
	}

	candidates := Extract(context.Background(), ep)
	found := false
	for _, p := range candidates {
		if p.Variant == pattern.ContextPattern && p.Fields.Domain == "backend" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSimilarity_IdenticalToolSequencesScoreOne(t *testing.T) {
	a := &pattern.Pattern{Variant: pattern.ToolSequence, Fields: pattern.RepresentativeFields{Tools: []string{"read", "write"}}}
	b := &pattern.Pattern{Variant: pattern.ToolSequence, Fields: pattern.RepresentativeFields{Tools: []string{"read", "write"}}}

	assert.InDelta(t, 1.0, Similarity(a, b), 0.001)
}

func TestSimilarity_DifferentVariantsScoreZero(t *testing.T) {
	a := &pattern.Pattern{Variant: pattern.ToolSequence}
	b := &pattern.Pattern{Variant: pattern.ContextPattern}
	assert.Equal(t, 0.0, Similarity(a, b))
}

func TestDeduplicate_MergesSimilarPatterns(t *testing.T) {
	a := &pattern.Pattern{
		PatternID: "a", Variant: pattern.ToolSequence, Confidence: 0.8,
		Fields: pattern.RepresentativeFields{Tools: []string{"read", "write"}, SourceEpisodeIDs: []string{"ep-1"}, EvidenceCount: 1},
	}
	b := &pattern.Pattern{
		PatternID: "b", Variant: pattern.ToolSequence, Confidence: 0.9,
		Fields: pattern.RepresentativeFields{Tools: []string{"read", "write"}, SourceEpisodeIDs: []string{"ep-2"}, EvidenceCount: 1},
	}

	merged := Deduplicate([]*pattern.Pattern{a, b}, 0.8)
	require.Len(t, merged, 1)
	assert.ElementsMatch(t, []string{"ep-1", "ep-2"}, merged[0].Fields.SourceEpisodeIDs)
}

func TestValidate_PerfectMatchScoresOne(t *testing.T) {
	p := &pattern.Pattern{Variant: pattern.ToolSequence, Fields: pattern.RepresentativeFields{Tools: []string{"a", "b"}}}
	metrics := Validate([]*pattern.Pattern{p}, []*pattern.Pattern{p}, 0.8)

	assert.Equal(t, 1.0, metrics.Precision)
	assert.Equal(t, 1.0, metrics.Recall)
	assert.Equal(t, 1.0, metrics.F1)
}

func TestTracker_RecordAndScore(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	now := time.Now()

	tr.RecordRetrieval("p1", now)
	tr.RecordApplication("p1", true, now)

	snap, ok := tr.Snapshot("p1")
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.RetrievalCount)
	assert.Equal(t, int64(1), snap.ApplicationCount)
	assert.Equal(t, int64(1), snap.SuccessCount)
	assert.Greater(t, snap.EffectivenessScore, 0.0)
}

func TestTracker_DecayOldPatterns(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	now := time.Now()
	old := now.Add(-120 * 24 * time.Hour)

	for i := 0; i < 5; i++ {
		tr.RecordRetrieval("stale", old)
	}
	tr.RecordApplication("stale", false, old)

	ids := tr.DecayOldPatterns(now)
	assert.Contains(t, ids, "stale")
}

func TestTracker_DecayOldPatterns_SeededButNeverRetrieved(t *testing.T) {
	tr := NewTracker(DefaultWeights())
	created := time.Now()

	tr.Seed("never-retrieved", created)

	future := created.AddDate(0, 0, 90)
	ids := tr.DecayOldPatterns(future)
	assert.Contains(t, ids, "never-retrieved")
}

func TestCluster_SeparatesDistinctFeatures(t *testing.T) {
	features := []Feature{
		{EpisodeID: "c", Vector: []float64{50, 50, 0}},
		{EpisodeID: "a", Vector: []float64{1, 1, 1}},
		{EpisodeID: "b", Vector: []float64{1, 1, 1}},
	}

	assignments := Cluster(features, 2, 20)
	assert.Equal(t, assignments[1], assignments[2])
	assert.NotEqual(t, assignments[0], assignments[1])
}
