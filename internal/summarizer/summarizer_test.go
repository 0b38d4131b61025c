package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

func TestPassesQualityGate(t *testing.T) {
	low := &episode.Episode{Reward: &episode.RewardScore{Total: 0.3}}
	high := &episode.Episode{Reward: &episode.RewardScore{Total: 0.9}}
	unscored := &episode.Episode{}

	assert.False(t, PassesQualityGate(low, DefaultQualityThreshold))
	assert.True(t, PassesQualityGate(high, DefaultQualityThreshold))
	assert.True(t, PassesQualityGate(unscored, DefaultQualityThreshold))
}

func buildEpisode() *episode.Episode {
	success := episode.NewSuccess("build passed", []string{"binary"})
	return &episode.Episode{
		EpisodeID:       "ep-1",
		TaskType:        "build",
		TaskDescription: "compile and test the service",
		Context:         episode.Context{Domain: "backend"},
		Steps: []episode.Step{
			{StepNumber: 0, Tool: "compiler", Action: "compile", Result: episode.Error("syntax error")},
			{StepNumber: 1, Tool: "linter", Action: "fix", Result: episode.Success("fixed"), Parameters: map[string]any{"condition": "retry"}},
			{StepNumber: 2, Tool: "compiler", Action: "compile", Result: episode.Success("ok")},
		},
		Outcome: &success,
	}
}

func TestExtractFeatures(t *testing.T) {
	ep := buildEpisode()
	features := ExtractFeatures(ep)

	assert.NotEmpty(t, features.Decisions)
	assert.NotEmpty(t, features.ToolCombinations)
	assert.NotEmpty(t, features.ErrorRecoveries)
	assert.NotEmpty(t, features.KeyInsights)
	assert.Equal(t, "backend", features.TaskContext.Domain)
}

func TestSummarize_WordCountWithinRange(t *testing.T) {
	ep := buildEpisode()
	features := ExtractFeatures(ep)

	summarized := Summarize(ep, features)
	wordCount := len(strings.Fields(summarized.Summary))

	require.GreaterOrEqual(t, wordCount, MinWords)
	require.LessOrEqual(t, wordCount, MaxWords)
}

func TestSummarize_CarriesFeatureFields(t *testing.T) {
	ep := buildEpisode()
	features := ExtractFeatures(ep)

	summarized := Summarize(ep, features)
	assert.Equal(t, features.Decisions, summarized.KeyDecisions)
	assert.Equal(t, features.ToolCombinations, summarized.ToolCombinations)
	assert.Equal(t, features.KeyInsights, summarized.KeyInsights)
}
