// Package patterns implements the pattern extraction subsystem: candidate
// extraction from a completed episode (spec.md §4.5), similarity/merge/
// clustering (§4.6), and effectiveness tracking (§4.7).
package patterns

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PaesslerAG/jsonpath"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
)

// MinConfidence is the default floor below which extracted candidates are
// discarded (spec.md §4.5).
const MinConfidence = 0.7

// conditionalIndicatorPaths are JSONPath queries checked against each step's
// Parameters tree; a match marks the step as a decision point candidate.
var conditionalIndicatorPaths = []string{
	"$.condition",
	"$.if",
	"$.branch",
	"$..conditional",
}

// Extract runs all four extractors concurrently against ep and returns the
// merged, confidence-filtered candidate set (spec.md §4.5: "all extractors
// run concurrently per episode").
func Extract(ctx context.Context, ep *episode.Episode) []*pattern.Pattern {
	var wg sync.WaitGroup
	results := make([][]*pattern.Pattern, 4)

	extractors := []func(*episode.Episode) []*pattern.Pattern{
		extractToolSequences,
		extractDecisionPoints,
		extractErrorRecoveries,
		extractContextPatterns,
	}

	for i, extractor := range extractors {
		wg.Add(1)
		go func(i int, extractor func(*episode.Episode) []*pattern.Pattern) {
			defer wg.Done()
			results[i] = extractor(ep)
		}(i, extractor)
	}
	wg.Wait()

	var candidates []*pattern.Pattern
	for _, r := range results {
		candidates = append(candidates, r...)
	}

	merged := Deduplicate(candidates, DefaultSimilarityThreshold)

	filtered := merged[:0]
	for _, p := range merged {
		if p.Confidence >= MinConfidence {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// extractToolSequences finds subsequences of >=2 tools whose final step
// succeeds, scoring confidence from the subsequence's own success rate and
// length (spec.md §4.5 ToolSequence).
func extractToolSequences(ep *episode.Episode) []*pattern.Pattern {
	var out []*pattern.Pattern

	const windowSize = 3
	for start := 0; start+1 < len(ep.Steps); start++ {
		end := start + windowSize
		if end > len(ep.Steps) {
			end = len(ep.Steps)
		}
		window := ep.Steps[start:end]
		if len(window) < 2 || !window[len(window)-1].Result.IsSuccess() {
			continue
		}

		tools := toolNames(window)
		confidence := clampConfidence(successRate(window)*0.7 + lengthBonus(len(tools))*0.3)

		out = append(out, &pattern.Pattern{
			PatternID:  fmt.Sprintf("tool_sequence:%s", strings.Join(tools, ">")),
			Variant:    pattern.ToolSequence,
			Confidence: confidence,
			Fields: pattern.RepresentativeFields{
				Tools:            tools,
				SourceEpisodeIDs: []string{ep.EpisodeID},
				EvidenceCount:    1,
			},
		})
	}
	return out
}

// extractDecisionPoints flags steps whose Parameters tree contains a
// conditional indicator (checked via JSONPath queries), scoring confidence
// from how settled the subsequent outcomes were.
func extractDecisionPoints(ep *episode.Episode) []*pattern.Pattern {
	var out []*pattern.Pattern

	for i, step := range ep.Steps {
		indicators := matchConditionalIndicators(step.Parameters)
		if len(indicators) == 0 {
			continue
		}

		variance := subsequentOutcomeVariance(ep.Steps, i)
		confidence := clampConfidence(1.0 - variance)

		out = append(out, &pattern.Pattern{
			PatternID:  fmt.Sprintf("decision_point:%s:%d", ep.EpisodeID, step.StepNumber),
			Variant:    pattern.DecisionPoint,
			Confidence: confidence,
			Fields: pattern.RepresentativeFields{
				Action:           step.Action,
				Indicators:       indicators,
				SourceEpisodeIDs: []string{ep.EpisodeID},
				EvidenceCount:    1,
			},
		})
	}
	return out
}

func matchConditionalIndicators(params map[string]any) []string {
	if len(params) == 0 {
		return nil
	}

	var matched []string
	for _, path := range conditionalIndicatorPaths {
		if _, err := jsonpath.Get(path, map[string]any(params)); err == nil {
			matched = append(matched, path)
		}
	}
	return matched
}

// subsequentOutcomeVariance is a coarse [0,1] measure of how mixed the
// results were after index i: 0 means every later step agreed, 1 means an
// even split.
func subsequentOutcomeVariance(steps []episode.Step, i int) float64 {
	if i+1 >= len(steps) {
		return 0
	}
	successes, total := 0, 0
	for _, s := range steps[i+1:] {
		total++
		if s.Result.IsSuccess() {
			successes++
		}
	}
	if total == 0 {
		return 0
	}
	rate := float64(successes) / float64(total)
	return 1.0 - 2.0*absFloat(rate-0.5)
}

// extractErrorRecoveries finds every Error->Success transition and records
// the failing/recovery tool pair (spec.md §4.5 ErrorRecovery).
func extractErrorRecoveries(ep *episode.Episode) []*pattern.Pattern {
	var out []*pattern.Pattern

	for i := 1; i < len(ep.Steps); i++ {
		prev, cur := ep.Steps[i-1], ep.Steps[i]
		if !prev.Result.IsError() || !cur.Result.IsSuccess() {
			continue
		}

		out = append(out, &pattern.Pattern{
			PatternID:  fmt.Sprintf("error_recovery:%s:%s", prev.Tool, cur.Tool),
			Variant:    pattern.ErrorRecovery,
			Confidence: 0.75,
			Fields: pattern.RepresentativeFields{
				FailingTool:      prev.Tool,
				RecoveryTool:     cur.Tool,
				ErrorSignature:   prev.Result.Message,
				SourceEpisodeIDs: []string{ep.EpisodeID},
				EvidenceCount:    1,
			},
		})
	}
	return out
}

// extractContextPatterns summarizes the episode's own context as a single
// candidate, to be merged across episodes sharing domain/tags/language
// (spec.md §4.5 ContextPattern).
func extractContextPatterns(ep *episode.Episode) []*pattern.Pattern {
	if ep.Context.Domain == "" {
		return nil
	}

	polarity := "mixed"
	if ep.Outcome != nil {
		if ep.Outcome.IsSuccess() {
			polarity = "positive"
		} else if ep.Outcome.Kind == episode.OutcomeFailure {
			polarity = "negative"
		}
	}

	tags := append([]string(nil), ep.Context.Tags...)
	sort.Strings(tags)

	return []*pattern.Pattern{{
		PatternID:  fmt.Sprintf("context_pattern:%s:%s", ep.Context.Domain, strings.Join(tags, ",")),
		Variant:    pattern.ContextPattern,
		Confidence: 0.7,
		Fields: pattern.RepresentativeFields{
			Domain:           ep.Context.Domain,
			Tags:             tags,
			Language:         ep.Context.Language,
			OutcomePolarity:  polarity,
			SourceEpisodeIDs: []string{ep.EpisodeID},
			EvidenceCount:    1,
		},
	}}
}

func toolNames(steps []episode.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Tool
	}
	return names
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

func lengthBonus(n int) float64 {
	return clampConfidence(float64(n) / 5.0)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
