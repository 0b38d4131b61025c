package patterns

import (
	"strings"

	"github.com/r3e-network/agentmemory/internal/domain/pattern"
)

// DefaultSimilarityThreshold is the merge threshold (spec.md §4.6 default 0.8).
const DefaultSimilarityThreshold = 0.8

// Similarity returns a [0,1] similarity score between two patterns; patterns
// of different variants always score 0. ToolSequence patterns use Jaccard
// over their tool sets refined by bounded edit distance; DecisionPoint
// patterns use word overlap of their actions; ErrorRecovery patterns weigh
// an exact failing/recovery tool match 0.6 and error-signature word overlap
// 0.4; ContextPattern patterns weigh domain equality and tag Jaccard 0.5
// each (spec.md §4.6).
func Similarity(a, b *pattern.Pattern) float64 {
	if a.Variant != b.Variant {
		return 0
	}

	switch a.Variant {
	case pattern.ToolSequence:
		return sequenceSimilarity(a.Fields.Tools, b.Fields.Tools)
	case pattern.DecisionPoint:
		return wordOverlap(a.Fields.Action, b.Fields.Action)
	case pattern.ErrorRecovery:
		sameTools := 0.0
		if a.Fields.FailingTool == b.Fields.FailingTool && a.Fields.RecoveryTool == b.Fields.RecoveryTool {
			sameTools = 1.0
		}
		return 0.6*sameTools + 0.4*wordOverlap(a.Fields.ErrorSignature, b.Fields.ErrorSignature)
	case pattern.ContextPattern:
		domainMatch := 0.0
		if a.Fields.Domain == b.Fields.Domain {
			domainMatch = 1.0
		}
		return 0.5*domainMatch + 0.5*jaccard(a.Fields.Tags, b.Fields.Tags)
	default:
		return 0
	}
}

// sequenceSimilarity combines Jaccard over the tool-name sets with a bounded
// edit-distance refinement over the ordered sequences, matching spec.md
// §4.6's "Jaccard over tool-name sets with bounded edit-distance refinement".
func sequenceSimilarity(a, b []string) float64 {
	set := jaccard(a, b)
	order := 1.0 - normalizedEditDistance(a, b)
	return 0.6*set + 0.4*order
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := toSet(a)
	setB := toSet(b)

	intersection := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// normalizedEditDistance returns the Levenshtein distance between a and b
// (treating each element as a token) normalized to [0,1] by the longer
// sequence's length, bounded to avoid O(n*m) blowups on pathological inputs
// by capping both sequences at 32 tokens.
func normalizedEditDistance(a, b []string) float64 {
	a, b = capTokens(a, 32), capTokens(b, 32)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}

	dist := prev[len(b)]
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return float64(dist) / float64(longest)
}

func capTokens(items []string, max int) []string {
	if len(items) <= max {
		return items
	}
	return items[:max]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// wordOverlap is a Jaccard similarity over lower-cased whitespace-split
// tokens, used for free-text string fields (spec.md §4.6).
func wordOverlap(a, b string) float64 {
	return jaccard(strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b)))
}
