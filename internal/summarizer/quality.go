// Package summarizer implements pre-storage quality gating, salient
// feature extraction, and compact episode summary generation (spec.md §3,
// §4.2's "Quality & Salient Extractors, Semantic Summarizer").
package summarizer

import "github.com/r3e-network/agentmemory/internal/domain/episode"

// DefaultQualityThreshold is the confidence-style floor a completed
// episode's reward must clear to be retained durably (spec.md §6 default
// 0.7, reused here for episode-level gating alongside pattern confidence).
const DefaultQualityThreshold = 0.7

// PassesQualityGate reports whether ep is worth the full durable write
// (spec.md §4.2's "pre-storage quality gating"). An episode with no reward
// yet has not failed the gate — gating only rejects confirmed low quality.
func PassesQualityGate(ep *episode.Episode, threshold float64) bool {
	if ep.Reward == nil {
		return true
	}
	return ep.Reward.Total >= threshold
}
