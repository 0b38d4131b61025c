package patterns

import (
	"math"
	"sync"
	"time"

	"github.com/r3e-network/agentmemory/internal/domain/pattern"
)

// EffectivenessWeights weight the three components of a pattern's
// effectiveness score (spec.md §4.7 default 0.5/0.3/0.2).
type EffectivenessWeights struct {
	SuccessRate     float64
	ApplicationRate float64
	Recency         float64
}

func DefaultWeights() EffectivenessWeights {
	return EffectivenessWeights{SuccessRate: 0.5, ApplicationRate: 0.3, Recency: 0.2}
}

// HalfLife is the recency half-life (spec.md §4.7 default ~30 days).
const HalfLife = 30 * 24 * time.Hour

// DecayThreshold is the effectiveness floor below which a pattern is a
// decay candidate (spec.md §4.7, §9 default 0.3).
const DecayThreshold = 0.3

// Tracker maintains per-pattern usage statistics under a single-writer
// discipline: record_* calls are serialized by mu, and Snapshot takes a
// short read lock rather than an atomically-swapped copy, which spec.md
// §4.7 allows as an equally valid discipline.
type Tracker struct {
	mu      sync.RWMutex
	usage   map[string]*pattern.Usage
	weights EffectivenessWeights
}

func NewTracker(weights EffectivenessWeights) *Tracker {
	return &Tracker{usage: make(map[string]*pattern.Usage), weights: weights}
}

func (t *Tracker) getOrCreate(id string) *pattern.Usage {
	u, ok := t.usage[id]
	if !ok {
		u = &pattern.Usage{PatternID: id}
		t.usage[id] = u
	}
	return u
}

// Seed registers a pattern with the tracker at the moment it is first
// stored, before it has ever been retrieved or applied. Without this, a
// pattern that is stored but never retrieved has no Usage entry at all, so
// DecayOldPatterns (which only walks t.usage) can never surface it as a
// decay candidate even after a long idle span (spec.md §8's "store a
// pattern, retrieve it zero times, expect it in decay_old_patterns()
// after the half-life"). A no-op if the pattern is already tracked.
func (t *Tracker) Seed(id string, createdAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.getOrCreate(id)
	if u.LastAccess.IsZero() {
		u.LastAccess = createdAt
	}
}

// RecordRetrieval increments a pattern's retrieval count.
func (t *Tracker) RecordRetrieval(id string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.getOrCreate(id)
	if !u.LastAccess.IsZero() {
		interval := now.Sub(u.LastAccess)
		u.AvgInterval = runningAverage(u.AvgInterval, interval, u.RetrievalCount)
	}
	u.RetrievalCount++
	u.LastAccess = now
}

// RecordApplication increments a pattern's application count and, on
// success, its success count, then recomputes its effectiveness score.
func (t *Tracker) RecordApplication(id string, success bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.getOrCreate(id)
	u.ApplicationCount++
	if success {
		u.SuccessCount++
	}
	u.EffectivenessScore = t.score(u, now)
}

// Snapshot returns a copy of a pattern's usage stats.
func (t *Tracker) Snapshot(id string) (pattern.Usage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.usage[id]
	if !ok {
		return pattern.Usage{}, false
	}
	return *u, true
}

// DecayOldPatterns returns the ids of every tracked pattern whose
// effectiveness score is below DecayThreshold as of now.
func (t *Tracker) DecayOldPatterns(now time.Time) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, u := range t.usage {
		if t.score(u, now) < DecayThreshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// score computes the weighted effectiveness signal. Callers must hold at
// least a read lock.
func (t *Tracker) score(u *pattern.Usage, now time.Time) float64 {
	recency := recencyFactor(u.LastAccess, now)
	return t.weights.SuccessRate*u.SuccessRate() +
		t.weights.ApplicationRate*u.ApplicationRate() +
		t.weights.Recency*recency
}

func recencyFactor(last time.Time, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	delta := now.Sub(last)
	if delta < 0 {
		delta = 0
	}
	return math.Exp(-float64(delta) / float64(HalfLife))
}

func runningAverage(avg time.Duration, sample time.Duration, n int64) time.Duration {
	if n <= 0 {
		return sample
	}
	total := time.Duration(int64(avg)*n + int64(sample))
	return total / time.Duration(n+1)
}
