// Package reward computes the deterministic reward score for a completed
// episode (spec.md §4.3). Calculate is a pure function: identical inputs
// always yield identical outputs, with no clock or randomness involved.
package reward

import (
	"math"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

const (
	minEfficiency = 0.5
	maxEfficiency = 1.5

	minQuality = 0.5
	maxQuality = 1.5

	maxLearningBonus = 0.5
)

// Calculate scores a completed episode per spec.md §4.3's component table.
func Calculate(ep *episode.Episode) episode.RewardScore {
	base := baseScore(ep.Outcome)
	efficiency := efficiencyScore(ep)
	complexityBonus := complexityBonusScore(ep.Context.Complexity)
	qualityMultiplier := qualityMultiplierScore(ep)
	learningBonus := learningBonusScore(ep)

	total := base*efficiency*complexityBonus*qualityMultiplier + learningBonus

	return episode.RewardScore{
		Total:             total,
		Base:              base,
		Efficiency:        efficiency,
		ComplexityBonus:   complexityBonus,
		QualityMultiplier: qualityMultiplier,
		LearningBonus:     learningBonus,
	}
}

func baseScore(outcome *episode.Outcome) float64 {
	if outcome == nil {
		return 0.0
	}
	switch outcome.Kind {
	case episode.OutcomeSuccess:
		return 1.0
	case episode.OutcomePartialSuccess:
		return 0.5
	default:
		return 0.0
	}
}

// efficiencyScore rewards fewer steps and lower total duration. It is
// anchored so that a single fast step scores near the ceiling and scores
// decay toward the floor as duration and step count grow, clamped to
// [0.5, 1.5].
func efficiencyScore(ep *episode.Episode) float64 {
	durationMS := durationMillis(ep)
	stepCount := len(ep.Steps)
	if stepCount == 0 {
		return maxEfficiency
	}

	// Normalize against soft references: 30s / 10 steps maps roughly to the
	// midpoint of the range, matching the "learning bonus" thresholds that
	// treat <=10 steps and <30s as efficient (spec.md §4.3 learning_bonus).
	durationFactor := 1.0 - math.Min(1.0, float64(durationMS)/60000.0)
	stepFactor := 1.0 - math.Min(1.0, float64(stepCount)/20.0)

	score := minEfficiency + (durationFactor+stepFactor)/2.0*(maxEfficiency-minEfficiency)
	return clamp(score, minEfficiency, maxEfficiency)
}

func durationMillis(ep *episode.Episode) int64 {
	if ep.EndTime == nil {
		return 0
	}
	return ep.EndTime.Sub(ep.StartTime).Milliseconds()
}

func complexityBonusScore(c episode.Complexity) float64 {
	switch c {
	case episode.Complex:
		return 1.2
	case episode.Moderate:
		return 1.1
	default:
		return 1.0
	}
}

func qualityMultiplierScore(ep *episode.Episode) float64 {
	score := 1.0

	if coverage, ok := floatMetadata(ep.Metadata, "test_coverage"); ok && coverage >= 0.8 {
		score += 0.15
	}
	if hasQualityArtifacts(ep.Outcome) {
		score += 0.10
	}
	if errorRate(ep.Steps) > 0.25 {
		score -= 0.15
	}
	if linterWarnings, ok := floatMetadata(ep.Metadata, "linter_warnings"); ok {
		score -= 0.10 * linterWarnings
	}

	return clamp(score, minQuality, maxQuality)
}

func hasQualityArtifacts(outcome *episode.Outcome) bool {
	return outcome != nil && len(outcome.Artifacts) > 0
}

func errorRate(steps []episode.Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	errors := 0
	for _, s := range steps {
		if s.Result.IsError() {
			errors++
		}
	}
	return float64(errors) / float64(len(steps))
}

func learningBonusScore(ep *episode.Episode) float64 {
	bonus := 0.0

	newPatterns := len(ep.PatternIDs)
	bonus += math.Min(0.3, 0.1*float64(newPatterns))

	if uniqueTools(ep.Steps) >= 5 {
		bonus += 0.15
	}
	if len(ep.Steps) >= 5 && successRate(ep.Steps) >= 0.9 {
		bonus += 0.2
	}
	if hasErrorRecoveryTransition(ep.Steps) {
		bonus += 0.15
	}
	if len(ep.Steps) <= 10 && durationMillis(ep) < 30000 {
		bonus += 0.1
	}

	return math.Min(maxLearningBonus, bonus)
}

func uniqueTools(steps []episode.Step) int {
	seen := make(map[string]struct{})
	for _, s := range steps {
		seen[s.Tool] = struct{}{}
	}
	return len(seen)
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

// hasErrorRecoveryTransition reports whether any step transitions from an
// Error result to a Success result on the following step, mirroring the
// pattern extraction subsystem's ErrorRecovery variant (spec.md §4.5).
func hasErrorRecoveryTransition(steps []episode.Step) bool {
	for i := 1; i < len(steps); i++ {
		if steps[i-1].Result.IsError() && steps[i].Result.IsSuccess() {
			return true
		}
	}
	return false
}

func floatMetadata(metadata map[string]any, key string) (float64, bool) {
	v, ok := metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}
