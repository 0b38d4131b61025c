package embedded

import (
	"context"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
	"github.com/r3e-network/agentmemory/internal/memerr"
	"github.com/r3e-network/agentmemory/internal/storage"
)

// Config configures Store.
type Config struct {
	// QueryCacheSize bounds the number of distinct filter fingerprints held
	// in the query-result bucket (spec.md §6 cache.max_entries, default 1000).
	QueryCacheSize int
	// QueryCacheTTL is the default TTL for a cached query result
	// (spec.md §6 cache.default_ttl_secs, default 1h).
	QueryCacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{QueryCacheSize: 1000, QueryCacheTTL: time.Hour}
}

// Store is the embedded, in-process Backend implementation: bucketed maps
// keyed by entity id plus a bounded, TTL'd query-result bucket keyed by
// filter fingerprint (spec.md §4.2, §6 cache schema).
//
// Adapted from the teacher's internal/app/storage.Memory, which is a
// thread-safe map-per-entity store behind the same capability interfaces the
// Postgres store implements. The per-entity maps and mutex discipline carry
// over directly; CRUD against multiple entity types collapses into CRUD
// against the two this engine owns (episodes, patterns), and a bounded LRU
// query-result bucket is added on top since this store doubles as a cache in
// front of the durable backend, not only a standalone one.
type Store struct {
	mu       sync.RWMutex
	episodes map[string]*episode.Episode
	patterns map[string]*pattern.Pattern

	queryCache *lru.Cache[string, queryCacheEntry]
	queryTTL   time.Duration
}

type queryCacheEntry struct {
	episodes   []*episode.Episode
	expiration time.Time
	// degraded marks a result cached while the durable backend's circuit was
	// open, so the coordinator can flag it as degraded on reuse.
	degraded bool
}

// New creates an empty embedded store.
func New(cfg Config) *Store {
	if cfg.QueryCacheSize <= 0 {
		cfg.QueryCacheSize = DefaultConfig().QueryCacheSize
	}
	if cfg.QueryCacheTTL <= 0 {
		cfg.QueryCacheTTL = DefaultConfig().QueryCacheTTL
	}

	qc, _ := lru.New[string, queryCacheEntry](cfg.QueryCacheSize)

	return &Store{
		episodes:   make(map[string]*episode.Episode),
		patterns:   make(map[string]*pattern.Pattern),
		queryCache: qc,
		queryTTL:   cfg.QueryCacheTTL,
	}
}

func (s *Store) Name() string { return "embedded" }

// preparedEpisode stages an episode write. Embedded writes are always
// immediately durable in the map, so prepare buffers the value and commit/
// rollback only decide whether it becomes visible.
type preparedEpisode struct {
	store *Store
	ep    *episode.Episode
}

func (p *preparedEpisode) Commit(_ context.Context) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.episodes[p.ep.EpisodeID] = p.ep
	p.store.invalidateQueryCacheLocked()
	return nil
}

func (p *preparedEpisode) Rollback(_ context.Context) error { return nil }

func (s *Store) PrepareStoreEpisode(_ context.Context, ep *episode.Episode) (storage.PreparedWrite, error) {
	if ep == nil || ep.EpisodeID == "" {
		return nil, memerr.New(memerr.Validation, "episode id is required")
	}
	return &preparedEpisode{store: s, ep: ep.Clone()}, nil
}

func (s *Store) GetEpisode(_ context.Context, id string) (*episode.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.episodes[id]
	if !ok {
		return nil, memerr.New(memerr.NotFound, "episode not found").WithDetails("episode_id", id)
	}
	return ep.Clone(), nil
}

func (s *Store) DeleteEpisode(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.episodes[id]; !ok {
		return memerr.New(memerr.NotFound, "episode not found").WithDetails("episode_id", id)
	}
	delete(s.episodes, id)
	s.invalidateQueryCacheLocked()
	return nil
}

func (s *Store) CountEpisodes(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes), nil
}

// ListEpisodesForEviction returns every episode, for the capacity manager to
// score and pick victims from. The embedded store holds everything in
// memory, so there is no cheaper partial scan to offer.
func (s *Store) ListEpisodesForEviction(_ context.Context) ([]*episode.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*episode.Episode, 0, len(s.episodes))
	for _, ep := range s.episodes {
		out = append(out, ep.Clone())
	}
	return out, nil
}

func (s *Store) QueryEpisodes(_ context.Context, filter storage.QueryFilter) ([]*episode.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterEpisodesLocked(filter), nil
}

// CachedQuery returns a previously cached result for filter, and whether it
// was flagged degraded at write time.
func (s *Store) CachedQuery(filter storage.QueryFilter) ([]*episode.Episode, bool, bool) {
	entry, ok := s.queryCache.Get(filter.Fingerprint())
	if !ok || time.Now().After(entry.expiration) {
		return nil, false, false
	}
	return entry.episodes, entry.degraded, true
}

// CacheQuery stores a query result under filter's fingerprint. ttl<=0 uses
// the store's default; degraded marks a result served while the durable
// backend was unavailable, shortening its effective lifetime is the
// coordinator's call, not this store's (spec.md §4.2 adaptive TTL).
func (s *Store) CacheQuery(filter storage.QueryFilter, results []*episode.Episode, ttl time.Duration, degraded bool) {
	if ttl <= 0 {
		ttl = s.queryTTL
	}
	s.queryCache.Add(filter.Fingerprint(), queryCacheEntry{
		episodes:   results,
		expiration: time.Now().Add(ttl),
		degraded:   degraded,
	})
}

func (s *Store) invalidateQueryCacheLocked() {
	s.queryCache.Purge()
}

func (s *Store) filterEpisodesLocked(filter storage.QueryFilter) []*episode.Episode {
	matched := make([]*episode.Episode, 0)
	for _, ep := range s.episodes {
		if !matchesFilter(ep, filter) {
			continue
		}
		matched = append(matched, ep.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched
}

func matchesFilter(ep *episode.Episode, filter storage.QueryFilter) bool {
	if filter.Domain != "" && ep.Context.Domain != filter.Domain {
		return false
	}
	if filter.TaskType != "" && ep.TaskType != filter.TaskType {
		return false
	}
	if filter.Start != nil && ep.StartTime.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && ep.StartTime.After(*filter.End) {
		return false
	}
	for _, want := range filter.Tags {
		if !containsTag(ep.Context.Tags, want) {
			return false
		}
	}
	return true
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// preparedPattern stages a pattern write, mirroring preparedEpisode.
type preparedPattern struct {
	store *Store
	p     *pattern.Pattern
}

func (p *preparedPattern) Commit(_ context.Context) error {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	p.store.patterns[p.p.PatternID] = p.p
	return nil
}

func (p *preparedPattern) Rollback(_ context.Context) error { return nil }

func (s *Store) PrepareStorePattern(_ context.Context, p *pattern.Pattern) (storage.PreparedWrite, error) {
	if p == nil || p.PatternID == "" {
		return nil, memerr.New(memerr.Validation, "pattern id is required")
	}
	cp := *p
	return &preparedPattern{store: s, p: &cp}, nil
}

func (s *Store) GetPattern(_ context.Context, id string) (*pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[id]
	if !ok {
		return nil, memerr.New(memerr.NotFound, "pattern not found").WithDetails("pattern_id", id)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) DeletePattern(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patterns[id]; !ok {
		return memerr.New(memerr.NotFound, "pattern not found").WithDetails("pattern_id", id)
	}
	delete(s.patterns, id)
	return nil
}

func (s *Store) QueryPatterns(_ context.Context, filter storage.PatternFilter) ([]*pattern.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*pattern.Pattern, 0)
	for _, p := range s.patterns {
		if filter.Variant != "" && p.Variant != filter.Variant {
			continue
		}
		if filter.MinConfidence > 0 && p.Confidence < filter.MinConfidence {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Confidence > matched[j].Confidence
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}
