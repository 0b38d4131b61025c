// Package engine implements the episode lifecycle engine: start_episode,
// log_step, complete_episode, and their state machine, step-batching, and
// synchronous-or-queued pattern extraction handoff (spec.md §4.1).
//
// Modeled on the teacher's infrastructure/service.BaseService for its
// worker/ticker-lifecycle shape (AddTickerWorker's single cooperative
// flush loop, idempotent Stop via sync.Once), generalized from an
// HTTP-service base to an in-process engine with no marble/HTTP surface.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/agentmemory/internal/domain/episode"
	"github.com/r3e-network/agentmemory/internal/logging"
	"github.com/r3e-network/agentmemory/internal/memerr"
	"github.com/r3e-network/agentmemory/internal/patterns"
	"github.com/r3e-network/agentmemory/internal/queue"
	"github.com/r3e-network/agentmemory/internal/reflection"
	"github.com/r3e-network/agentmemory/internal/retriever"
	"github.com/r3e-network/agentmemory/internal/reward"
	"github.com/r3e-network/agentmemory/internal/storage/coordinator"
	"github.com/r3e-network/agentmemory/internal/summarizer"
	"github.com/r3e-network/agentmemory/internal/validation"
)

// Config controls batching, completion thresholds, and extraction mode.
type Config struct {
	BatchSize        int
	MaxBufferAge     time.Duration
	FlushInterval    time.Duration
	QualityThreshold float64
	// SyncExtraction runs pattern extraction inline during CompleteEpisode
	// instead of enqueueing to Queue (spec.md §4.5's "if the extraction
	// queue is disabled"). Queue may be nil either way; SyncExtraction=false
	// with a nil Queue degrades to synchronous extraction automatically.
	SyncExtraction bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        10,
		MaxBufferAge:     5 * time.Second,
		FlushInterval:    time.Second,
		QualityThreshold: summarizer.DefaultQualityThreshold,
	}
}

// activeEpisode is the in-memory, authoritative record for one episode
// while it accepts steps. A per-episode mutex serializes log_step/flush
// calls on the same id; different episodes proceed fully in parallel
// (spec.md §4.1 "Step-batching policy").
type activeEpisode struct {
	mu          sync.Mutex
	ep          *episode.Episode
	state       state
	pending     int
	lastFlush   time.Time
	completedAt time.Time
}

// Engine is the facade the rest of the system calls into: start_episode,
// log_step, complete_episode, plus a thin Retrieve wrapper that records
// pattern-retrieval stats.
type Engine struct {
	coord   *coordinator.Coordinator
	q       *queue.Queue
	tracker *patterns.Tracker
	index   *retriever.SpatiotemporalIndex
	ret     *retriever.Retriever
	cfg     Config
	log     *logging.Logger

	mu       sync.Mutex
	episodes map[string]*activeEpisode

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds an Engine. q may be nil for synchronous-only extraction.
func New(coord *coordinator.Coordinator, q *queue.Queue, tracker *patterns.Tracker, index *retriever.SpatiotemporalIndex, cfg Config, log *logging.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxBufferAge <= 0 {
		cfg.MaxBufferAge = DefaultConfig().MaxBufferAge
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	e := &Engine{
		coord:    coord,
		q:        q,
		tracker:  tracker,
		index:    index,
		cfg:      cfg,
		log:      log,
		episodes: make(map[string]*activeEpisode),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if index != nil {
		e.ret = retriever.New(index, tracker, retriever.DefaultWeights())
	}
	return e
}

// Start launches the flush ticker: a single cooperative task that wakes
// every FlushInterval and serializes any episode whose un-flushed steps
// are older than MaxBufferAge (spec.md §4.1).
func (e *Engine) Start(ctx context.Context) {
	if e.q != nil {
		e.q.Start(ctx)
	}

	go func() {
		defer close(e.doneCh)
		ticker := time.NewTicker(e.cfg.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
}

// Stop halts the flush ticker and, if owned, the extraction queue.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	<-e.doneCh
	if e.q != nil {
		e.q.Stop()
	}
}

// sweep flushes every active episode whose buffered steps are older than
// MaxBufferAge, and evicts completed episodes once they are no longer
// needed to answer a log_step with InvalidState (an hour's grace period).
func (e *Engine) sweep(ctx context.Context) {
	e.mu.Lock()
	candidates := make([]*activeEpisode, 0, len(e.episodes))
	for id, ae := range e.episodes {
		candidates = append(candidates, ae)
		_ = id
	}
	e.mu.Unlock()

	now := time.Now()
	var toEvict []string
	for _, ae := range candidates {
		ae.mu.Lock()
		if ae.state == stateCompleted {
			if !ae.completedAt.IsZero() && now.Sub(ae.completedAt) > time.Hour {
				toEvict = append(toEvict, ae.ep.EpisodeID)
			}
			ae.mu.Unlock()
			continue
		}
		if ae.pending > 0 && now.Sub(ae.lastFlush) >= e.cfg.MaxBufferAge {
			e.flushLocked(ctx, ae)
		}
		ae.mu.Unlock()
	}

	if len(toEvict) > 0 {
		e.mu.Lock()
		for _, id := range toEvict {
			delete(e.episodes, id)
		}
		e.mu.Unlock()
	}
}

// StartEpisode validates the description and context, creates the
// in-memory episode record, writes an initial record through the
// coordinator, and returns the new episode id (spec.md §4.1).
func (e *Engine) StartEpisode(ctx context.Context, description string, taskContext episode.Context, taskType string) (string, error) {
	if err := validation.Description(description); err != nil {
		return "", err
	}
	if err := validation.Context(taskContext); err != nil {
		return "", err
	}

	id := uuid.NewString()
	ep := &episode.Episode{
		EpisodeID:       id,
		TaskType:        taskType,
		TaskDescription: description,
		Context:         taskContext,
		StartTime:       time.Now().UTC(),
	}

	ae := &activeEpisode{ep: ep, state: stateStarted, lastFlush: time.Now()}
	e.mu.Lock()
	e.episodes[id] = ae
	e.mu.Unlock()

	if err := e.coord.StoreEpisode(ctx, ep); err != nil {
		e.log.WithContext(ctx).WithError(err).WithField("episode_id", id).Warn("initial episode write-through failed; in-memory state remains authoritative")
	}

	return id, nil
}

// LogStep validates and appends a step to id's in-memory buffer, flushing
// to storage once the buffer reaches BatchSize (spec.md §4.1).
func (e *Engine) LogStep(ctx context.Context, id string, step episode.Step) error {
	ae, ok := e.lookup(id)
	if !ok {
		return memerr.ErrNotFound("episode not found: " + id)
	}

	ae.mu.Lock()
	defer ae.mu.Unlock()

	if !ae.state.canAcceptStep() {
		return memerr.ErrInvalidState("episode " + id + " is already complete")
	}
	if err := validation.StepCount(len(ae.ep.Steps)); err != nil {
		return err
	}
	if err := validation.Step(step); err != nil {
		return err
	}

	step.StepNumber = len(ae.ep.Steps)
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now().UTC()
	}
	ae.ep.Steps = append(ae.ep.Steps, step)
	ae.pending++
	ae.state = stateActive

	if ae.pending >= e.cfg.BatchSize {
		e.flushLocked(ctx, ae)
	}
	return nil
}

// flushLocked writes ae's full step buffer through the coordinator.
// Callers must hold ae.mu. Failures are logged as warnings per spec.md
// §4.1: in-memory state remains authoritative until completion.
func (e *Engine) flushLocked(ctx context.Context, ae *activeEpisode) {
	if ae.pending == 0 {
		return
	}
	if err := e.coord.StoreEpisode(ctx, ae.ep); err != nil {
		e.log.WithContext(ctx).WithError(err).WithField("episode_id", ae.ep.EpisodeID).Warn("step buffer flush failed; in-memory state remains authoritative")
	}
	ae.pending = 0
	ae.lastFlush = time.Now()
}

// CompleteEpisode flushes any pending steps, finalizes the episode with
// outcome, computes its reward and reflection, runs or enqueues pattern
// extraction, and persists the final state (spec.md §4.1).
func (e *Engine) CompleteEpisode(ctx context.Context, id string, outcome episode.Outcome) error {
	ae, ok := e.lookup(id)
	if !ok {
		return memerr.ErrNotFound("episode not found: " + id)
	}

	ae.mu.Lock()
	defer ae.mu.Unlock()

	if !ae.state.canComplete() {
		return memerr.ErrInvalidState("episode " + id + " is already complete")
	}
	if err := validation.Outcome(outcome); err != nil {
		return err
	}

	e.flushLocked(ctx, ae)

	now := time.Now().UTC()
	ae.ep.EndTime = &now
	ae.ep.Outcome = &outcome

	if err := validation.SerializedSize(ae.ep); err != nil {
		return err
	}

	rewardScore := reward.Calculate(ae.ep)
	ae.ep.Reward = &rewardScore

	refl := reflection.Generate(ae.ep, now)
	ae.ep.Reflection = &refl

	ae.state = stateCompleted
	ae.completedAt = now

	if e.q == nil || e.cfg.SyncExtraction {
		e.extractAndStore(ctx, ae.ep)
	}

	if err := e.coord.StoreEpisode(ctx, ae.ep); err != nil {
		return memerr.Wrap(memerr.Storage, "persist completed episode", err)
	}

	if e.index != nil {
		e.index.Upsert(ae.ep, nil)
	}

	if e.q != nil && !e.cfg.SyncExtraction {
		if !e.q.Enqueue(queue.Job{Episode: ae.ep.Clone(), EnqueuedAt: now}) {
			e.log.WithContext(ctx).WithField("episode_id", id).Warn("extraction queue full; episode persisted without patterns and may be re-enqueued")
		}
	}

	return nil
}

// extractAndStore runs the pattern extractors against ep, stores every
// surviving candidate, and records ep.PatternIDs. Used both for
// synchronous completion and as the async queue's job handler.
func (e *Engine) extractAndStore(ctx context.Context, ep *episode.Episode) {
	now := time.Now()
	candidates := patterns.Extract(ctx, ep)
	ids := make([]string, 0, len(candidates))
	for _, p := range candidates {
		p.CreatedAt = now
		p.LastUsedAt = now
		if err := e.coord.StorePattern(ctx, p); err != nil {
			e.log.WithContext(ctx).WithError(err).WithField("pattern_id", p.PatternID).Warn("pattern store failed")
			continue
		}
		if e.tracker != nil {
			e.tracker.Seed(p.PatternID, now)
		}
		ids = append(ids, p.PatternID)
	}
	ep.PatternIDs = ids
}

// ExtractionHandler returns the queue.Handler that re-persists ep with its
// extracted pattern ids once extraction completes (spec.md §4.1's "async
// mode: after worker processes id").
func (e *Engine) ExtractionHandler() queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		e.extractAndStore(ctx, job.Episode)
		return e.coord.StoreEpisode(ctx, job.Episode)
	}
}

// Retrieve runs the retrieval pipeline and records a retrieval against
// every pattern referenced by a returned episode, if a tracker is wired.
func (e *Engine) Retrieve(req retriever.Request) []retriever.Result {
	if e.ret == nil {
		return nil
	}
	results := e.ret.Retrieve(req)
	if e.tracker != nil {
		now := time.Now()
		for _, r := range results {
			for _, pid := range r.Episode.PatternIDs {
				e.tracker.RecordRetrieval(pid, now)
			}
		}
	}
	return results
}

func (e *Engine) lookup(id string) (*activeEpisode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ae, ok := e.episodes[id]
	return ae, ok
}
