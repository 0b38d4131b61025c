package summarizer

import (
	"fmt"
	"sort"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/summary"
)

// ExtractFeatures derives the salient facts from a completed episode: its
// decision steps, tool-pair combinations, error-recovery transitions, and a
// short list of key insights (spec.md §3's SalientFeatures).
func ExtractFeatures(ep *episode.Episode) summary.Features {
	return summary.Features{
		Decisions:        decisionSteps(ep.Steps),
		ToolCombinations: toolCombinations(ep.Steps),
		ErrorRecoveries:  errorRecoveries(ep.Steps),
		KeyInsights:      keyInsights(ep),
		TaskContext:      ep.Context,
	}
}

func decisionSteps(steps []episode.Step) []string {
	var out []string
	for _, s := range steps {
		if len(s.Parameters) > 0 && (s.Parameters["condition"] != nil || s.Parameters["if"] != nil || s.Parameters["branch"] != nil) {
			out = append(out, fmt.Sprintf("%s: %s", s.Tool, s.Action))
		}
	}
	return out
}

func toolCombinations(steps []episode.Step) [][]string {
	var out [][]string
	for i := 1; i < len(steps); i++ {
		if steps[i].Tool != steps[i-1].Tool {
			out = append(out, []string{steps[i-1].Tool, steps[i].Tool})
		}
	}
	return dedupePairs(out)
}

func dedupePairs(pairs [][]string) [][]string {
	seen := make(map[string]struct{})
	var out [][]string
	for _, p := range pairs {
		key := p[0] + ">" + p[1]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func errorRecoveries(steps []episode.Step) []string {
	var out []string
	for i := 1; i < len(steps); i++ {
		if steps[i-1].Result.IsError() && steps[i].Result.IsSuccess() {
			out = append(out, fmt.Sprintf("%s -> %s", steps[i-1].Tool, steps[i].Tool))
		}
	}
	return out
}

func keyInsights(ep *episode.Episode) []string {
	var out []string

	toolCounts := make(map[string]int)
	for _, s := range ep.Steps {
		toolCounts[s.Tool]++
	}
	if len(toolCounts) > 0 {
		tools := make([]string, 0, len(toolCounts))
		for t := range toolCounts {
			tools = append(tools, t)
		}
		sort.Strings(tools)
		out = append(out, fmt.Sprintf("used %d distinct tool(s) across %d steps", len(toolCounts), len(ep.Steps)))
	}

	if ep.Outcome != nil {
		out = append(out, fmt.Sprintf("outcome: %s", ep.Outcome.Kind))
	}

	return out
}
