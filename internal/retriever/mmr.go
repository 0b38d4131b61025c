package retriever

// DefaultLambda balances relevance against diversity in MMR selection (spec.md
// §4.9 step 3's default trade-off point).
const DefaultLambda = 0.7

// SimilarityFunc returns a [0,1] similarity between two candidate ids,
// used by MMR to penalize picks too close to what's already selected.
type SimilarityFunc func(a, b string) float64

// MMR greedily selects up to limit ids from ranked (already sorted by
// relevance, most relevant first) by Maximal Marginal Relevance:
//
//	MMR(x) = lambda * relevance(x) - (1 - lambda) * max_{y in selected} similarity(x, y)
//
// (spec.md §4.9 step 3). The first pick is always the most relevant
// candidate; subsequent picks trade relevance against similarity to
// already-selected items.
func MMR(ranked []string, relevance map[string]float64, sim SimilarityFunc, lambda float64, limit int) []string {
	if limit <= 0 || len(ranked) == 0 {
		return nil
	}
	if limit > len(ranked) {
		limit = len(ranked)
	}

	remaining := append([]string(nil), ranked...)
	selected := make([]string, 0, limit)

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx, bestScore := -1, 0.0
		for i, candidate := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if d := sim(candidate, s); d > maxSim {
					maxSim = d
				}
			}
			score := lambda*relevance[candidate] - (1-lambda)*maxSim
			if bestIdx == -1 || score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
