package retriever

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

// Weights configure the ranking signal set (spec.md §4.9 step 3 defaults:
// semantic 0.4, context 0.2, effectiveness 0.2, recency 0.1, success 0.1).
type Weights struct {
	Semantic      float64
	Context       float64
	Effectiveness float64
	Recency       float64
	Success       float64
}

func DefaultWeights() Weights {
	return Weights{Semantic: 0.4, Context: 0.2, Effectiveness: 0.2, Recency: 0.1, Success: 0.1}
}

// Signals are the per-candidate component scores, each normalized to
// [0,1], that feed into the weighted ranking sum.
type Signals struct {
	Semantic      float64
	Context       float64
	Effectiveness float64
	Recency       float64
	Success       float64
}

// Score combines a candidate's signals via w, producing the relevance
// value Rank and MMR both consume.
func (w Weights) Score(s Signals) float64 {
	return w.Semantic*s.Semantic + w.Context*s.Context + w.Effectiveness*s.Effectiveness +
		w.Recency*s.Recency + w.Success*s.Success
}

// SemanticScore returns the cosine similarity between a query embedding
// and a candidate embedding (spec.md §4.9 step 1). Callers fall back to
// KeywordOverlap when no embedding is available for either side.
func SemanticScore(query, candidate []float64) float64 {
	if len(query) == 0 || len(candidate) == 0 || len(query) != len(candidate) {
		return 0
	}
	var dot, qn, cn float64
	for i := range query {
		dot += query[i] * candidate[i]
		qn += query[i] * query[i]
		cn += candidate[i] * candidate[i]
	}
	if qn == 0 || cn == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(qn) * math.Sqrt(cn))
	if cos < 0 {
		return 0
	}
	return cos
}

// KeywordOverlap is the no-embedding fallback: Jaccard similarity between
// the query text's tokens and a candidate's task description tokens
// (spec.md §4.9 step 1, "else fall back to keyword overlap").
func KeywordOverlap(query string, ep *episode.Episode) float64 {
	q := tokenize(query)
	c := tokenize(ep.TaskDescription)
	if len(q) == 0 && len(c) == 0 {
		return 0
	}
	intersection := 0
	for t := range q {
		if _, ok := c[t]; ok {
			intersection++
		}
	}
	union := len(q) + len(c) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenize(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// ContextMatch scores how well an episode's context matches a reference
// context: 1.0 for an exact domain+language match, partial credit for a
// domain-only match, plus a tag-Jaccard bonus.
func ContextMatch(query episode.Context, ep *episode.Episode) float64 {
	score := 0.0
	if query.Domain != "" && query.Domain == ep.Context.Domain {
		score += 0.6
	}
	if query.Language != "" && query.Language == ep.Context.Language {
		score += 0.2
	}
	score += 0.2 * tagJaccard(query.Tags, ep.Context.Tags)
	return math.Min(1.0, score)
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := toSet(a)
	setB := toSet(b)
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// MatchesFilter evaluates an ad hoc gjson path/value predicate against an
// episode's marshaled JSON representation — the "ad hoc JSON filter
// matching" consumer of tidwall/gjson alongside the durable/embedded
// backends' own QueryFilter evaluation.
func MatchesFilter(ep *episode.Episode, path string, expected string) bool {
	raw, err := json.Marshal(ep)
	if err != nil {
		return false
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return false
	}
	return result.String() == expected
}

// Rank scores and sorts candidates by weighted relevance, descending.
func Rank(candidateIDs []string, signals map[string]Signals, w Weights) []string {
	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		ranked = append(ranked, scored{id: id, score: w.Score(signals[id])})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.id
	}
	return out
}
