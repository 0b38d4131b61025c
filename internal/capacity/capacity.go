// Package capacity enforces the durable backend's episode count bound,
// evicting the lowest-relevance episodes once the bound is exceeded
// (spec.md §4.2, §6).
package capacity

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/storage"
)

// Policy selects how victims are chosen once capacity is exceeded.
type Policy string

const (
	// RelevanceWeighted scores episodes by quality * recency and evicts the
	// lowest scorers first (spec.md §4.2 default).
	RelevanceWeighted Policy = "relevance_weighted"
	// LRU evicts the oldest episodes by start time, ignoring quality.
	LRU Policy = "lru"
)

// Config configures a Manager.
type Config struct {
	MaxEpisodes int
	Policy      Policy
}

// DefaultConfig returns the spec.md §6 default (10000 episodes, relevance-weighted).
func DefaultConfig() Config {
	return Config{MaxEpisodes: 10000, Policy: RelevanceWeighted}
}

// Manager enforces Config.MaxEpisodes against a storage.Backend.
type Manager struct {
	cfg Config
}

func New(cfg Config) *Manager {
	if cfg.MaxEpisodes <= 0 {
		cfg.MaxEpisodes = DefaultConfig().MaxEpisodes
	}
	if cfg.Policy == "" {
		cfg.Policy = DefaultConfig().Policy
	}
	return &Manager{cfg: cfg}
}

// Relevance scores an episode for eviction ranking: quality_score times an
// age-decay factor that falls to one half at 30 days and one third at 60
// days (age_decay(d) = 1/(1+d/30), spec.md §4.2).
func Relevance(ep *episode.Episode, now time.Time) float64 {
	quality := qualityScore(ep)
	days := now.Sub(ep.StartTime).Hours() / 24
	if days < 0 {
		days = 0
	}
	decay := 1.0 / (1.0 + days/30.0)
	return quality * decay
}

func qualityScore(ep *episode.Episode) float64 {
	if ep.Reward != nil {
		return clamp01(ep.Reward.Total)
	}
	return 0.5
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Enforce evicts episodes from backend until its count is at or below
// cfg.MaxEpisodes, returning how many were evicted. It is called after every
// successful episode commit (spec.md §4.2: "before inserting into a backend
// at its max_episodes limit, evict the lowest-relevance episode first").
func (m *Manager) Enforce(ctx context.Context, backend storage.Backend) (int, error) {
	count, err := backend.CountEpisodes(ctx)
	if err != nil {
		return 0, err
	}
	if count <= m.cfg.MaxEpisodes {
		return 0, nil
	}

	episodes, err := backend.ListEpisodesForEviction(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	m.rank(episodes, now)

	toEvict := count - m.cfg.MaxEpisodes
	if toEvict > len(episodes) {
		toEvict = len(episodes)
	}

	evicted := 0
	for i := 0; i < toEvict; i++ {
		if err := backend.DeleteEpisode(ctx, episodes[i].EpisodeID); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// rank sorts episodes ascending by eviction priority: the first entries are
// evicted first.
func (m *Manager) rank(episodes []*episode.Episode, now time.Time) {
	switch m.cfg.Policy {
	case LRU:
		sort.Slice(episodes, func(i, j int) bool {
			return episodes[i].StartTime.Before(episodes[j].StartTime)
		})
	default:
		sort.Slice(episodes, func(i, j int) bool {
			return Relevance(episodes[i], now) < Relevance(episodes[j], now)
		})
	}
}
