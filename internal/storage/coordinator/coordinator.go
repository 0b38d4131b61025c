// Package coordinator composes the durable and embedded backends behind a
// single entry point: cache-first reads, two-phase commit on writes,
// circuit-breaker-guarded durable access with degraded cache-only reads when
// it trips, and capacity enforcement after every write (spec.md §4.2).
package coordinator

import (
	"context"
	"time"

	multierror "github.com/hashicorp/go-multierror"

	"github.com/r3e-network/agentmemory/internal/capacity"
	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/domain/pattern"
	"github.com/r3e-network/agentmemory/internal/logging"
	"github.com/r3e-network/agentmemory/internal/memerr"
	"github.com/r3e-network/agentmemory/internal/resilience"
	"github.com/r3e-network/agentmemory/internal/storage"
	"github.com/r3e-network/agentmemory/internal/storage/embedded"
)

// Config configures a Coordinator.
type Config struct {
	Breaker  resilience.Config
	Retry    resilience.RetryConfig
	Capacity capacity.Config
	// DegradedTTL is the shortened query-result cache lifetime used while
	// the durable backend's circuit is open, so a stale cache-only result
	// does not linger once the durable backend recovers (spec.md §4.2
	// adaptive TTL).
	DegradedTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Breaker:     resilience.DefaultConfig("durable"),
		Retry:       resilience.DefaultRetryConfig(),
		Capacity:    capacity.DefaultConfig(),
		DegradedTTL: 30 * time.Second,
	}
}

// Coordinator is the storage facade the episode engine depends on.
type Coordinator struct {
	durable  storage.Backend
	embedded *embedded.Store
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	capacity *capacity.Manager
	degraded time.Duration
	log      *logging.Logger
}

// New composes durable and embedded into a Coordinator.
func New(durableBackend storage.Backend, embeddedStore *embedded.Store, cfg Config, log *logging.Logger) *Coordinator {
	return &Coordinator{
		durable:  durableBackend,
		embedded: embeddedStore,
		breaker:  resilience.New(cfg.Breaker),
		retry:    cfg.Retry,
		capacity: capacity.New(cfg.Capacity),
		degraded: cfg.DegradedTTL,
		log:      log,
	}
}

// ReadResult wraps a read with whether it was served from a degraded
// (cache-only, durable circuit open) path, per spec.md §4.2.
type ReadResult struct {
	Episode  *episode.Episode
	Degraded bool
}

// GetEpisode reads cache-first, falling back to the durable backend on a
// cache miss, and writing the result back into the cache. If the durable
// backend's circuit is open, a cache hit is returned with Degraded=true
// rather than attempting the call.
func (c *Coordinator) GetEpisode(ctx context.Context, id string) (*ReadResult, error) {
	if ep, err := c.embedded.GetEpisode(ctx, id); err == nil {
		degraded := c.breaker.State() == resilience.StateOpen
		return &ReadResult{Episode: ep, Degraded: degraded}, nil
	}

	if c.breaker.State() == resilience.StateOpen {
		return nil, memerr.ErrCircuitOpen("durable backend unavailable and not cached")
	}

	var ep *episode.Episode
	err := c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			var innerErr error
			ep, innerErr = c.durable.GetEpisode(ctx, id)
			return innerErr
		})
	})
	if err != nil {
		return nil, err
	}

	if prepared, prepErr := c.embedded.PrepareStoreEpisode(ctx, ep); prepErr == nil {
		_ = prepared.Commit(ctx)
	}
	return &ReadResult{Episode: ep}, nil
}

// QueryEpisodes serves from the query-result cache bucket when fresh;
// otherwise it queries the durable backend (unless its circuit is open, in
// which case it falls back to the embedded store's own records and marks
// the result degraded) and caches the result.
func (c *Coordinator) QueryEpisodes(ctx context.Context, filter storage.QueryFilter) ([]*episode.Episode, bool, error) {
	if cached, degraded, ok := c.embedded.CachedQuery(filter); ok {
		return cached, degraded, nil
	}

	if c.breaker.State() == resilience.StateOpen {
		results, err := c.embedded.QueryEpisodes(ctx, filter)
		if err != nil {
			return nil, false, err
		}
		c.embedded.CacheQuery(filter, results, c.degraded, true)
		return results, true, nil
	}

	var results []*episode.Episode
	err := c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			var innerErr error
			results, innerErr = c.durable.QueryEpisodes(ctx, filter)
			return innerErr
		})
	})
	if err != nil {
		// Durable call failed for this request even though the breaker was
		// closed going in (e.g. first failure of a streak); degrade to the
		// embedded store rather than surface the error if it has anything.
		if fallback, fbErr := c.embedded.QueryEpisodes(ctx, filter); fbErr == nil && len(fallback) > 0 {
			c.embedded.CacheQuery(filter, fallback, c.degraded, true)
			return fallback, true, nil
		}
		return nil, false, err
	}

	c.embedded.CacheQuery(filter, results, 0, false)
	return results, false, nil
}

// StoreEpisode commits ep to both backends using two-phase commit: both
// prepares must succeed before either commits, and a failure anywhere rolls
// back whatever was already prepared (spec.md §4.2, §9 Open Question 3).
// After a successful commit, capacity is enforced against the durable
// backend.
func (c *Coordinator) StoreEpisode(ctx context.Context, ep *episode.Episode) error {
	embeddedWrite, err := c.embedded.PrepareStoreEpisode(ctx, ep)
	if err != nil {
		return err
	}

	if c.breaker.State() == resilience.StateOpen {
		// Durable is unavailable; commit to the embedded cache only and
		// surface the degraded state by still reporting the circuit error,
		// so the caller knows durability was not achieved, while the data
		// remains retrievable from the cache in the meantime.
		_ = embeddedWrite.Commit(ctx)
		return memerr.ErrCircuitOpen("episode cached but not durably stored")
	}

	var durableWrite storage.PreparedWrite
	err = c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			var prepErr error
			durableWrite, prepErr = c.durable.PrepareStoreEpisode(ctx, ep)
			return prepErr
		})
	})
	if err != nil {
		_ = embeddedWrite.Rollback(ctx)
		return err
	}

	if err := durableWrite.Commit(ctx); err != nil {
		_ = embeddedWrite.Rollback(ctx)
		return memerr.Wrap(memerr.Storage, "commit durable write", err)
	}
	if err := embeddedWrite.Commit(ctx); err != nil {
		// Durable already committed; embedded is only a cache, so a failure
		// here does not require rolling back the durable side — the next
		// read will simply re-populate the cache from durable on miss.
		c.log.WithContext(ctx).WithError(err).Warn("embedded cache commit failed after durable commit")
	}

	if _, err := c.capacity.Enforce(ctx, c.durable); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("capacity enforcement failed")
	}
	return nil
}

// DeleteEpisode removes ep from both backends, combining any errors from
// either side via multierror rather than stopping at the first failure.
func (c *Coordinator) DeleteEpisode(ctx context.Context, id string) error {
	var result *multierror.Error

	if err := c.embedded.DeleteEpisode(ctx, id); err != nil && !memerr.Is(err, memerr.NotFound) {
		result = multierror.Append(result, err)
	}

	err := c.breaker.Execute(ctx, func() error {
		return c.durable.DeleteEpisode(ctx, id)
	})
	if err != nil && !memerr.Is(err, memerr.NotFound) {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// StorePattern mirrors StoreEpisode's two-phase commit for patterns.
func (c *Coordinator) StorePattern(ctx context.Context, p *pattern.Pattern) error {
	embeddedWrite, err := c.embedded.PrepareStorePattern(ctx, p)
	if err != nil {
		return err
	}

	var durableWrite storage.PreparedWrite
	err = c.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, c.retry, func() error {
			var prepErr error
			durableWrite, prepErr = c.durable.PrepareStorePattern(ctx, p)
			return prepErr
		})
	})
	if err != nil {
		_ = embeddedWrite.Rollback(ctx)
		return err
	}

	if err := durableWrite.Commit(ctx); err != nil {
		_ = embeddedWrite.Rollback(ctx)
		return memerr.Wrap(memerr.Storage, "commit durable pattern write", err)
	}
	if err := embeddedWrite.Commit(ctx); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("embedded pattern cache commit failed after durable commit")
	}
	return nil
}

// GetPattern reads cache-first, same as GetEpisode.
func (c *Coordinator) GetPattern(ctx context.Context, id string) (*pattern.Pattern, error) {
	if p, err := c.embedded.GetPattern(ctx, id); err == nil {
		return p, nil
	}

	if c.breaker.State() == resilience.StateOpen {
		return nil, memerr.ErrCircuitOpen("durable backend unavailable and pattern not cached")
	}

	var p *pattern.Pattern
	err := c.breaker.Execute(ctx, func() error {
		var innerErr error
		p, innerErr = c.durable.GetPattern(ctx, id)
		return innerErr
	})
	if err != nil {
		return nil, err
	}

	if prepared, prepErr := c.embedded.PrepareStorePattern(ctx, p); prepErr == nil {
		_ = prepared.Commit(ctx)
	}
	return p, nil
}

// QueryPatterns delegates to the durable backend when available, otherwise
// to the embedded store.
func (c *Coordinator) QueryPatterns(ctx context.Context, filter storage.PatternFilter) ([]*pattern.Pattern, error) {
	if c.breaker.State() == resilience.StateOpen {
		return c.embedded.QueryPatterns(ctx, filter)
	}

	var results []*pattern.Pattern
	err := c.breaker.Execute(ctx, func() error {
		var innerErr error
		results, innerErr = c.durable.QueryPatterns(ctx, filter)
		return innerErr
	})
	if err != nil {
		return c.embedded.QueryPatterns(ctx, filter)
	}
	return results, nil
}

// BreakerState exposes the durable backend's circuit state for observability.
func (c *Coordinator) BreakerState() resilience.State {
	return c.breaker.State()
}

// EnforceCapacity runs the capacity manager's eviction pass against the
// durable backend directly, for callers (the scheduler's independent
// eviction sweep, spec.md §9) that want this outside the write path
// StoreEpisode already enforces it on.
func (c *Coordinator) EnforceCapacity(ctx context.Context) (int, error) {
	return c.capacity.Enforce(ctx, c.durable)
}
