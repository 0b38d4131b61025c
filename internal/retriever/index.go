// Package retriever implements hierarchical spatiotemporal retrieval over
// stored episodes: a spatiotemporal index prunes candidates, a weighted
// signal set ranks them, and Maximal Marginal Relevance re-ranks the top
// pool for diversity (spec.md §4.9).
package retriever

import (
	"sort"
	"time"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

// SpatiotemporalIndex holds the three auxiliary indexes spec.md §4.9
// describes: an ordered-by-time id list, domain/task_type id lists, and an
// id->embedding map, each pruning the candidate set before ranking.
type SpatiotemporalIndex struct {
	byTime     []timedID // sorted ascending by timestamp
	byDomain   map[string]map[string]struct{}
	byTaskType map[string]map[string]struct{}
	embeddings map[string][]float64
	episodes   map[string]*episode.Episode
}

type timedID struct {
	id string
	at time.Time
}

func NewSpatiotemporalIndex() *SpatiotemporalIndex {
	return &SpatiotemporalIndex{
		byDomain:   make(map[string]map[string]struct{}),
		byTaskType: make(map[string]map[string]struct{}),
		embeddings: make(map[string][]float64),
		episodes:   make(map[string]*episode.Episode),
	}
}

// Upsert adds or replaces an episode's entry across all three indexes.
// embedding may be nil when no embedding is available for this episode.
func (idx *SpatiotemporalIndex) Upsert(ep *episode.Episode, embedding []float64) {
	idx.Remove(ep.EpisodeID)

	idx.episodes[ep.EpisodeID] = ep
	idx.byTime = insertSorted(idx.byTime, timedID{id: ep.EpisodeID, at: ep.StartTime})

	if idx.byDomain[ep.Context.Domain] == nil {
		idx.byDomain[ep.Context.Domain] = make(map[string]struct{})
	}
	idx.byDomain[ep.Context.Domain][ep.EpisodeID] = struct{}{}

	if idx.byTaskType[ep.TaskType] == nil {
		idx.byTaskType[ep.TaskType] = make(map[string]struct{})
	}
	idx.byTaskType[ep.TaskType][ep.EpisodeID] = struct{}{}

	if embedding != nil {
		idx.embeddings[ep.EpisodeID] = embedding
	}
}

// Remove drops an episode from every index.
func (idx *SpatiotemporalIndex) Remove(id string) {
	ep, ok := idx.episodes[id]
	if !ok {
		return
	}
	delete(idx.episodes, id)
	delete(idx.embeddings, id)
	if set := idx.byDomain[ep.Context.Domain]; set != nil {
		delete(set, id)
	}
	if set := idx.byTaskType[ep.TaskType]; set != nil {
		delete(set, id)
	}
	for i, t := range idx.byTime {
		if t.id == id {
			idx.byTime = append(idx.byTime[:i], idx.byTime[i+1:]...)
			break
		}
	}
}

func insertSorted(list []timedID, item timedID) []timedID {
	i := sort.Search(len(list), func(i int) bool { return list[i].at.After(item.at) })
	list = append(list, timedID{})
	copy(list[i+1:], list[i:])
	list[i] = item
	return list
}

// Filter describes the spatiotemporal pruning stage (spec.md §4.9 step 2):
// time range, domain, task_type, applied in that order before intersection.
type Filter struct {
	Start, End time.Time
	Domain     string
	TaskType   string
}

// Candidates returns the episode ids surviving the spatiotemporal filter,
// intersecting time range, domain, and task_type in that order (spec.md
// §4.9 step 2).
func (idx *SpatiotemporalIndex) Candidates(f Filter) []string {
	var timeFiltered []string
	if !f.Start.IsZero() || !f.End.IsZero() {
		lo := sort.Search(len(idx.byTime), func(i int) bool {
			return f.Start.IsZero() || !idx.byTime[i].at.Before(f.Start)
		})
		for i := lo; i < len(idx.byTime); i++ {
			if !f.End.IsZero() && idx.byTime[i].at.After(f.End) {
				break
			}
			timeFiltered = append(timeFiltered, idx.byTime[i].id)
		}
	} else {
		for _, t := range idx.byTime {
			timeFiltered = append(timeFiltered, t.id)
		}
	}

	result := toSet(timeFiltered)
	if f.Domain != "" {
		result = intersect(result, idx.byDomain[f.Domain])
	}
	if f.TaskType != "" {
		result = intersect(result, idx.byTaskType[f.TaskType])
	}

	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (idx *SpatiotemporalIndex) Episode(id string) (*episode.Episode, bool) {
	ep, ok := idx.episodes[id]
	return ep, ok
}

func (idx *SpatiotemporalIndex) Embedding(id string) ([]float64, bool) {
	v, ok := idx.embeddings[id]
	return v, ok
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
