// Package reflection generates the three bounded textual insight lists for
// a completed episode (spec.md §4.4) via deterministic heuristics over its
// steps and outcome.
package reflection

import (
	"fmt"
	"time"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

const maxItems = 5

// Generate produces a Reflection for ep. now is injected rather than read
// from time.Now() so callers (and tests) control GeneratedAt.
func Generate(ep *episode.Episode, now time.Time) episode.Reflection {
	return episode.Reflection{
		Successes:    bound(successes(ep)),
		Improvements: bound(improvements(ep)),
		Insights:     bound(insights(ep)),
		GeneratedAt:  now,
	}
}

func bound(items []string) []string {
	if len(items) > maxItems {
		return items[:maxItems]
	}
	return items
}

func successes(ep *episode.Episode) []string {
	var out []string

	tools := toolCounts(ep.Steps)
	if len(tools) >= 3 {
		out = append(out, fmt.Sprintf("diverse tool strategy: %d distinct tools used", len(tools)))
	} else if len(tools) > 0 {
		out = append(out, "focused tool strategy: consistent use of a small tool set")
	}

	if rate := successRate(ep.Steps); rate >= 0.9 {
		out = append(out, fmt.Sprintf("smooth execution: %.0f%% of steps succeeded", rate*100))
	}

	if ep.Context.Language != "" && ep.Context.Domain != "" {
		out = append(out, fmt.Sprintf("context-aligned approach for %s in %s", ep.Context.Domain, ep.Context.Language))
	}

	if dur := duration(ep); dur > 0 && len(ep.Steps) > 0 && dur/time.Duration(len(ep.Steps)) < 2*time.Second {
		out = append(out, "efficient pacing: low average latency per step")
	}

	if ep.Outcome != nil && ep.Outcome.IsSuccess() {
		out = append(out, "task completed with a verified successful outcome")
	}

	return out
}

func improvements(ep *episode.Episode) []string {
	var out []string

	if mean := meanLatency(ep.Steps); mean > 0 {
		for _, s := range ep.Steps {
			if float64(s.LatencyMS) >= 3*mean {
				out = append(out, fmt.Sprintf("bottleneck: step %d (%s) took %dms, ≥3x the episode average", s.StepNumber, s.Tool, s.LatencyMS))
				break
			}
		}
	}

	if tool, count := longestRepeatedRun(ep.Steps); count >= 3 {
		out = append(out, fmt.Sprintf("redundancy: %s invoked %d times consecutively", tool, count))
	}

	if tool, ok := repeatedFailureRootCause(ep.Steps); ok {
		out = append(out, fmt.Sprintf("root cause: %s failed repeatedly before recovery or abandonment", tool))
	}

	if hasIndependentToolPairs(ep.Steps) {
		out = append(out, "parallelization candidate: some steps show no data dependency on their predecessor")
	}

	if tok, ok := tokenExtreme(ep.Steps); ok {
		out = append(out, fmt.Sprintf("token usage extreme: step using %s consumed significantly more tokens than average", tok))
	}

	return out
}

func insights(ep *episode.Episode) []string {
	var out []string

	out = append(out, fmt.Sprintf("complexity/step alignment: %s task completed in %d steps", ep.Context.Complexity, len(ep.Steps)))

	if len(ep.PatternIDs) > 0 {
		out = append(out, fmt.Sprintf("pattern discovery: %d pattern(s) associated with this episode", len(ep.PatternIDs)))
	}

	rate := successRate(ep.Steps)
	switch {
	case rate >= 0.9:
		out = append(out, "strategy effectiveness: high step success rate suggests the approach generalizes well")
	case rate < 0.5:
		out = append(out, "strategy effectiveness: low step success rate suggests the approach needs revision")
	}

	if ep.Context.Domain != "" {
		out = append(out, fmt.Sprintf("recommendation: for similar %s tasks, favor the tool sequence used here", ep.Context.Domain))
	}

	return out
}

func toolCounts(steps []episode.Step) map[string]int {
	counts := make(map[string]int)
	for _, s := range steps {
		counts[s.Tool]++
	}
	return counts
}

func successRate(steps []episode.Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	successes := 0
	for _, s := range steps {
		if s.Result.IsSuccess() {
			successes++
		}
	}
	return float64(successes) / float64(len(steps))
}

func duration(ep *episode.Episode) time.Duration {
	if ep.EndTime == nil {
		return 0
	}
	return ep.EndTime.Sub(ep.StartTime)
}

func meanLatency(steps []episode.Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	var total int64
	for _, s := range steps {
		total += s.LatencyMS
	}
	return float64(total) / float64(len(steps))
}

func longestRepeatedRun(steps []episode.Step) (string, int) {
	bestTool, bestRun := "", 0
	curTool, curRun := "", 0

	for _, s := range steps {
		if s.Tool == curTool {
			curRun++
		} else {
			curTool, curRun = s.Tool, 1
		}
		if curRun > bestRun {
			bestTool, bestRun = curTool, curRun
		}
	}
	return bestTool, bestRun
}

func repeatedFailureRootCause(steps []episode.Step) (string, bool) {
	curTool, curRun := "", 0
	for _, s := range steps {
		if s.Result.IsError() && s.Tool == curTool {
			curRun++
		} else if s.Result.IsError() {
			curTool, curRun = s.Tool, 1
		} else {
			curTool, curRun = "", 0
		}
		if curRun >= 3 {
			return curTool, true
		}
	}
	return "", false
}

// hasIndependentToolPairs is a coarse proxy for parallelizable steps:
// consecutive steps using different tools with no overlapping parameter
// keys are treated as independent.
func hasIndependentToolPairs(steps []episode.Step) bool {
	for i := 1; i < len(steps); i++ {
		if steps[i].Tool == steps[i-1].Tool {
			continue
		}
		if !sharesParamKeys(steps[i-1].Parameters, steps[i].Parameters) {
			return true
		}
	}
	return false
}

func sharesParamKeys(a, b map[string]any) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}

func tokenExtreme(steps []episode.Step) (string, bool) {
	var total int
	var count int
	for _, s := range steps {
		if s.TokensUsed != nil {
			total += *s.TokensUsed
			count++
		}
	}
	if count == 0 {
		return "", false
	}
	mean := float64(total) / float64(count)

	for _, s := range steps {
		if s.TokensUsed != nil && float64(*s.TokensUsed) >= 3*mean && mean > 0 {
			return s.Tool, true
		}
	}
	return "", false
}
