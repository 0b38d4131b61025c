package retriever

import (
	"time"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/patterns"
)

// Request describes a retrieval query (spec.md §4.9).
type Request struct {
	QueryText      string
	QueryEmbedding []float64
	Context        episode.Context
	Filter         Filter
	Limit          int
	Lambda         float64 // 0 uses DefaultLambda
}

// Result pairs a retrieved episode with the relevance score it was ranked
// by, before MMR re-ranking discounted it for similarity to earlier picks.
type Result struct {
	Episode   *episode.Episode
	Relevance float64
}

// Retriever implements the three-level retrieval pipeline: spatiotemporal
// pruning, weighted ranking, and MMR diversity re-ranking (spec.md §4.9).
type Retriever struct {
	index   *SpatiotemporalIndex
	tracker *patterns.Tracker
	weights Weights
	now     func() time.Time
}

func New(index *SpatiotemporalIndex, tracker *patterns.Tracker, weights Weights) *Retriever {
	return &Retriever{index: index, tracker: tracker, weights: weights, now: time.Now}
}

// Retrieve runs the full pipeline and returns at most req.Limit episodes.
func (r *Retriever) Retrieve(req Request) []Result {
	candidateIDs := r.index.Candidates(req.Filter)
	if len(candidateIDs) == 0 {
		return nil
	}

	now := r.now()
	signals := make(map[string]Signals, len(candidateIDs))
	for _, id := range candidateIDs {
		ep, ok := r.index.Episode(id)
		if !ok {
			continue
		}
		signals[id] = r.computeSignals(req, ep, now)
	}

	relevance := make(map[string]float64, len(candidateIDs))
	for id, s := range signals {
		relevance[id] = r.weights.Score(s)
	}

	ranked := Rank(candidateIDs, signals, r.weights)

	lambda := req.Lambda
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	limit := req.Limit
	if limit <= 0 {
		limit = len(ranked)
	}

	selected := MMR(ranked, relevance, r.similarity, lambda, limit)

	out := make([]Result, 0, len(selected))
	for _, id := range selected {
		ep, ok := r.index.Episode(id)
		if !ok {
			continue
		}
		out = append(out, Result{Episode: ep, Relevance: relevance[id]})
	}
	return out
}

func (r *Retriever) computeSignals(req Request, ep *episode.Episode, now time.Time) Signals {
	semantic := 0.0
	if embedding, ok := r.index.Embedding(ep.EpisodeID); ok && len(req.QueryEmbedding) > 0 {
		semantic = SemanticScore(req.QueryEmbedding, embedding)
	} else if req.QueryText != "" {
		semantic = KeywordOverlap(req.QueryText, ep)
	}

	contextScore := ContextMatch(req.Context, ep)

	effectiveness, success := 0.0, 0.0
	if r.tracker != nil {
		for _, pid := range ep.PatternIDs {
			if snap, ok := r.tracker.Snapshot(pid); ok {
				effectiveness += snap.EffectivenessScore
				success += snap.SuccessRate()
			}
		}
		if n := len(ep.PatternIDs); n > 0 {
			effectiveness /= float64(n)
			success /= float64(n)
		}
	}

	recency := recencyScore(ep.StartTime, now)

	return Signals{
		Semantic:      semantic,
		Context:       contextScore,
		Effectiveness: effectiveness,
		Recency:       recency,
		Success:       success,
	}
}

// recencyScore decays linearly over a 90-day horizon, floored at 0; this
// is independent of the effectiveness tracker's exponential half-life
// decay, which scores pattern staleness rather than episode age.
func recencyScore(at time.Time, now time.Time) float64 {
	if at.IsZero() {
		return 0
	}
	age := now.Sub(at)
	horizon := 90 * 24 * time.Hour
	if age <= 0 {
		return 1
	}
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

// similarity measures how alike two candidate episodes are for MMR's
// diversity penalty: tag-Jaccard plus task-type equality.
func (r *Retriever) similarity(a, b string) float64 {
	epA, okA := r.index.Episode(a)
	epB, okB := r.index.Episode(b)
	if !okA || !okB {
		return 0
	}
	score := tagJaccard(epA.Context.Tags, epB.Context.Tags)
	if epA.TaskType == epB.TaskType {
		score = score*0.7 + 0.3
	}
	return score
}
