package patterns

import "github.com/r3e-network/agentmemory/internal/domain/pattern"

// Deduplicate merges pairs of candidates whose Similarity is at or above
// threshold into one, taking representative fields from the higher-
// confidence pattern and combining confidences by weighted average over
// evidence counts (spec.md §4.6). The merge is applied repeatedly until no
// pair exceeds the threshold, so chains of near-duplicates collapse to one.
func Deduplicate(candidates []*pattern.Pattern, threshold float64) []*pattern.Pattern {
	merged := append([]*pattern.Pattern(nil), candidates...)

	for {
		i, j, found := findMergeCandidate(merged, threshold)
		if !found {
			return merged
		}
		combined := mergeTwo(merged[i], merged[j])
		merged = removeIndices(merged, i, j)
		merged = append(merged, combined)
	}
}

func findMergeCandidate(patterns []*pattern.Pattern, threshold float64) (int, int, bool) {
	for i := 0; i < len(patterns); i++ {
		for j := i + 1; j < len(patterns); j++ {
			if Similarity(patterns[i], patterns[j]) >= threshold {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func mergeTwo(a, b *pattern.Pattern) *pattern.Pattern {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}

	evidenceA := evidenceCount(a)
	evidenceB := evidenceCount(b)
	totalEvidence := evidenceA + evidenceB

	combinedConfidence := a.Confidence
	if totalEvidence > 0 {
		combinedConfidence = (a.Confidence*float64(evidenceA) + b.Confidence*float64(evidenceB)) / float64(totalEvidence)
	}

	merged := *winner
	merged.Confidence = combinedConfidence
	merged.Fields.SourceEpisodeIDs = dedupeStrings(append(
		append([]string(nil), a.Fields.SourceEpisodeIDs...),
		b.Fields.SourceEpisodeIDs...,
	))
	merged.Fields.EvidenceCount = totalEvidence
	merged.UsageCount = a.UsageCount + b.UsageCount
	merged.SuccessCount = a.SuccessCount + b.SuccessCount

	return &merged
}

func evidenceCount(p *pattern.Pattern) int {
	if p.Fields.EvidenceCount > 0 {
		return p.Fields.EvidenceCount
	}
	return 1
}

func removeIndices(patterns []*pattern.Pattern, i, j int) []*pattern.Pattern {
	out := make([]*pattern.Pattern, 0, len(patterns)-2)
	for idx, p := range patterns {
		if idx == i || idx == j {
			continue
		}
		out = append(out, p)
	}
	return out
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
