// Package storage defines the capability set shared by the durable and
// embedded backends (spec.md §9: "a single capability set
// {get, store, delete, query, prepare, commit, rollback}; backends
// implement the subset they support; the coordinator composes them").
//
// Modeled on the teacher's internal/app/storage package, which defines one
// interface per entity (AccountStore, FunctionStore, ...) implemented by
// both internal/app/storage/postgres.Store and internal/app/storage.Memory.
// Here the many entity-specific interfaces collapse into one capability
// interface over the two entities this engine owns: episodes and patterns.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
)

// QueryFilter narrows an episode query (spec.md §4.2 query_episodes).
type QueryFilter struct {
	Domain   string     `json:"domain,omitempty"`
	TaskType string     `json:"task_type,omitempty"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	Tags     []string   `json:"tags,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// Fingerprint returns a deterministic identifier for the filter, used as the
// query-result cache key (spec.md §4.2, §6). It is an FNV-1a hash of the
// filter's canonical JSON form rather than a cryptographic hash since this
// key only needs to be collision-resistant within one process's cache, not
// adversarially unguessable (hash/fnv, standard library — see DESIGN.md).
func (f QueryFilter) Fingerprint() string {
	tags := append([]string(nil), f.Tags...)
	sort.Strings(tags)
	canonical := struct {
		Domain   string     `json:"domain"`
		TaskType string     `json:"task_type"`
		Start    *time.Time `json:"start"`
		End      *time.Time `json:"end"`
		Tags     []string   `json:"tags"`
		Limit    int        `json:"limit"`
	}{f.Domain, f.TaskType, f.Start, f.End, tags, f.Limit}

	encoded, _ := json.Marshal(canonical)
	h := fnv.New64a()
	_, _ = h.Write(encoded)
	return fmt.Sprintf("query:%x", h.Sum64())
}

// PatternFilter narrows a pattern query.
type PatternFilter struct {
	Variant       pattern.Variant `json:"variant,omitempty"`
	MinConfidence float64         `json:"min_confidence,omitempty"`
	Limit         int             `json:"limit,omitempty"`
}

// PreparedWrite is a staged write that has not yet taken effect. Commit
// makes it visible; Rollback discards it. Implementations must make both
// idempotent against a single prepared write and safe to call exactly once
// in practice (the coordinator never calls both).
type PreparedWrite interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Backend is the capability set a storage backend exposes. Both the durable
// (Postgres) and embedded (in-process) backends implement it fully. The
// coordinator holds the durable side through this interface and the
// embedded side as a concrete *embedded.Store, whose query-result cache
// methods are not part of the interface.
type Backend interface {
	Name() string

	GetEpisode(ctx context.Context, id string) (*episode.Episode, error)
	DeleteEpisode(ctx context.Context, id string) error
	QueryEpisodes(ctx context.Context, filter QueryFilter) ([]*episode.Episode, error)
	PrepareStoreEpisode(ctx context.Context, ep *episode.Episode) (PreparedWrite, error)
	CountEpisodes(ctx context.Context) (int, error)
	ListEpisodesForEviction(ctx context.Context) ([]*episode.Episode, error)

	GetPattern(ctx context.Context, id string) (*pattern.Pattern, error)
	DeletePattern(ctx context.Context, id string) error
	QueryPatterns(ctx context.Context, filter PatternFilter) ([]*pattern.Pattern, error)
	PrepareStorePattern(ctx context.Context, p *pattern.Pattern) (PreparedWrite, error)
}
