package patterns

import (
	"math"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
)

// Feature is a hand-crafted numeric summary of an episode, used for
// clustering when no embedding is available (spec.md §4.6).
type Feature struct {
	EpisodeID      string
	Vector         []float64
}

// BuildFeature derives a feature vector from step-count, tool-diversity,
// and outcome polarity, per spec.md §4.6's "hand-crafted feature vector
// (step-count, tool-diversity, outcome polarity)".
func BuildFeature(ep *episode.Episode) Feature {
	polarity := 0.0
	if ep.Outcome != nil {
		switch ep.Outcome.Kind {
		case episode.OutcomeSuccess:
			polarity = 1.0
		case episode.OutcomePartialSuccess:
			polarity = 0.5
		}
	}

	return Feature{
		EpisodeID: ep.EpisodeID,
		Vector:    []float64{float64(len(ep.Steps)), float64(uniqueTools(ep.Steps)), polarity},
	}
}

// Cluster groups features into k clusters using Lloyd's k-means algorithm,
// with a fixed iteration cap. Membership is advisory (spec.md §4.6): a
// feature's cluster index is returned alongside it rather than mutating the
// pattern set.
func Cluster(features []Feature, k int, maxIterations int) []int {
	if len(features) == 0 {
		return nil
	}
	if k > len(features) {
		k = len(features)
	}
	if k <= 0 {
		k = 1
	}
	if maxIterations <= 0 {
		maxIterations = 50
	}

	centroids := make([][]float64, k)
	for i := range centroids {
		centroids[i] = append([]float64(nil), features[i*len(features)/k].Vector...)
	}

	assignments := make([]int, len(features))

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, f := range features {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				d := euclidean(f.Vector, centroid)
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		recomputeCentroids(features, assignments, centroids)
	}

	return assignments
}

// ElbowK picks a cluster count by the elbow heuristic: the smallest k in
// [1,maxK] past which additional clusters stop meaningfully reducing total
// within-cluster distance (spec.md §4.6: "K adaptive by elbow heuristic").
func ElbowK(features []Feature, maxK int) int {
	if len(features) <= 1 {
		return 1
	}
	if maxK > len(features) {
		maxK = len(features)
	}
	if maxK < 1 {
		maxK = 1
	}

	prevInertia := math.Inf(1)
	for k := 1; k <= maxK; k++ {
		assignments := Cluster(features, k, 50)
		inertia := totalInertia(features, assignments, k)
		if prevInertia-inertia < 0.1*prevInertia && k > 1 {
			return k - 1
		}
		prevInertia = inertia
	}
	return maxK
}

func totalInertia(features []Feature, assignments []int, k int) float64 {
	centroids := make([][]float64, k)
	counts := make([]int, k)
	for i, f := range features {
		c := assignments[i]
		if centroids[c] == nil {
			centroids[c] = make([]float64, len(f.Vector))
		}
		for d, v := range f.Vector {
			centroids[c][d] += v
		}
		counts[c]++
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := range centroids[c] {
			centroids[c][d] /= float64(counts[c])
		}
	}

	total := 0.0
	for i, f := range features {
		total += euclidean(f.Vector, centroids[assignments[i]])
	}
	return total
}

func recomputeCentroids(features []Feature, assignments []int, centroids [][]float64) {
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for i := range sums {
		sums[i] = make([]float64, len(centroids[i]))
	}

	for i, f := range features {
		c := assignments[i]
		counts[c]++
		for d, v := range f.Vector {
			sums[c][d] += v
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := range centroids[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
