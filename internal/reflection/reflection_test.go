package reflection

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

func TestGenerate_BoundsListsAtFive(t *testing.T) {
	steps := make([]episode.Step, 0)
	for i := 0; i < 10; i++ {
		steps = append(steps, episode.Step{StepNumber: i, Tool: "read", Result: episode.Success("ok"), LatencyMS: int64(10 + i)})
	}
	ep := &episode.Episode{Context: episode.Context{Domain: "backend", Language: "go"}, Steps: steps, PatternIDs: []string{"p1"}}

	r := Generate(ep, time.Now())
	assert.LessOrEqual(t, len(r.Successes), 5)
	assert.LessOrEqual(t, len(r.Improvements), 5)
	assert.LessOrEqual(t, len(r.Insights), 5)
}

func TestGenerate_DetectsBottleneck(t *testing.T) {
	// Mean latency is (4*10+1000)/5 = 208ms, so the 1000ms step clears the
	// 3x-mean threshold of 624ms.
	ep := &episode.Episode{
		Steps: []episode.Step{
			{StepNumber: 0, Tool: "a", Result: episode.Success("ok"), LatencyMS: 10},
			{StepNumber: 1, Tool: "b", Result: episode.Success("ok"), LatencyMS: 10},
			{StepNumber: 2, Tool: "c", Result: episode.Success("ok"), LatencyMS: 10},
			{StepNumber: 3, Tool: "d", Result: episode.Success("ok"), LatencyMS: 10},
			{StepNumber: 4, Tool: "e", Result: episode.Success("ok"), LatencyMS: 1000},
		},
	}

	r := Generate(ep, time.Now())
	found := false
	for _, s := range r.Improvements {
		if strings.HasPrefix(s, "bottleneck:") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestGenerate_DetectsRedundancy(t *testing.T) {
	ep := &episode.Episode{
		Steps: []episode.Step{
			{Tool: "grep", Result: episode.Success("ok")},
			{Tool: "grep", Result: episode.Success("ok")},
			{Tool: "grep", Result: episode.Success("ok")},
		},
	}

	tool, run := longestRepeatedRun(ep.Steps)
	assert.Equal(t, "grep", tool)
	assert.Equal(t, 3, run)
}

func TestGenerate_DetectsErrorRecoveryRootCause(t *testing.T) {
	steps := []episode.Step{
		{Tool: "build", Result: episode.Error("fail")},
		{Tool: "build", Result: episode.Error("fail")},
		{Tool: "build", Result: episode.Error("fail")},
		{Tool: "build", Result: episode.Success("ok")},
	}

	tool, ok := repeatedFailureRootCause(steps)
	assert.True(t, ok)
	assert.Equal(t, "build", tool)
}
