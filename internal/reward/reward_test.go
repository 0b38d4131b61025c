package reward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

func baseEpisode() *episode.Episode {
	start := time.Now()
	end := start.Add(10 * time.Second)
	outcome := episode.NewSuccess("done", nil)
	return &episode.Episode{
		Context:   episode.Context{Complexity: episode.Moderate},
		StartTime: start,
		EndTime:   &end,
		Outcome:   &outcome,
		Steps: []episode.Step{
			{Tool: "read", Result: episode.Success("ok")},
			{Tool: "write", Result: episode.Success("ok")},
		},
	}
}

func TestCalculate_IsDeterministic(t *testing.T) {
	ep := baseEpisode()
	r1 := Calculate(ep)
	r2 := Calculate(ep)
	assert.Equal(t, r1, r2)
}

func TestCalculate_FailureYieldsZeroBase(t *testing.T) {
	ep := baseEpisode()
	failure := episode.NewFailure("broke", "panic")
	ep.Outcome = &failure

	r := Calculate(ep)
	assert.Equal(t, 0.0, r.Base)
	// A zero base zeroes the product term; only the learning bonus remains
	// (+0.1 for an episode of at most 10 steps finishing in under 30s).
	assert.Equal(t, 0.1, r.Total)
}

func TestCalculate_PartialSuccessHalvesBase(t *testing.T) {
	ep := baseEpisode()
	partial := episode.NewPartialSuccess("partial", []string{"a"}, []string{"b"})
	ep.Outcome = &partial

	r := Calculate(ep)
	assert.Equal(t, 0.5, r.Base)
}

func TestCalculate_ComplexityBonusIncreasesWithComplexity(t *testing.T) {
	simple := baseEpisode()
	simple.Context.Complexity = episode.Simple
	complex := baseEpisode()
	complex.Context.Complexity = episode.Complex

	assert.Less(t, Calculate(simple).ComplexityBonus, Calculate(complex).ComplexityBonus)
}

func TestCalculate_HighErrorRatePenalizesQuality(t *testing.T) {
	ep := baseEpisode()
	ep.Steps = []episode.Step{
		{Tool: "a", Result: episode.Error("boom")},
		{Tool: "b", Result: episode.Error("boom")},
		{Tool: "c", Result: episode.Success("ok")},
	}

	clean := baseEpisode()

	assert.Less(t, Calculate(ep).QualityMultiplier, Calculate(clean).QualityMultiplier)
}

func TestCalculate_LearningBonusCappedAtMax(t *testing.T) {
	ep := baseEpisode()
	ep.PatternIDs = []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	ep.Steps = make([]episode.Step, 6)
	for i := range ep.Steps {
		ep.Steps[i] = episode.Step{Tool: "t", Result: episode.Success("ok")}
	}

	r := Calculate(ep)
	assert.LessOrEqual(t, r.LearningBonus, 0.5)
}
