// Package scheduler runs the memory engine's periodic background sweeps —
// pattern effectiveness decay and capacity eviction — on independent cron
// schedules, decoupled from the request path (spec.md §9, §4.7, §4.2).
//
// Grounded on github.com/robfig/cron/v3, a teacher go.mod dependency with
// no consumer anywhere in the corpus (see DESIGN.md); this package is its
// first real wiring, in place of a hand-rolled ticker loop, since both
// sweeps here run on their own cron-style schedules rather than a single
// fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/r3e-network/agentmemory/internal/logging"
	"github.com/r3e-network/agentmemory/internal/patterns"
	"github.com/r3e-network/agentmemory/internal/storage/coordinator"
)

// Config controls the two sweep schedules. Specs use the five-field cron
// format (minute hour day month weekday); defaults run once an hour and
// once a day respectively.
type Config struct {
	DecaySpec    string
	CapacitySpec string
}

func DefaultConfig() Config {
	return Config{
		DecaySpec:    "0 * * * *",
		CapacitySpec: "0 0 * * *",
	}
}

// Scheduler wraps a cron.Cron running the decay and capacity sweeps.
type Scheduler struct {
	cron    *cron.Cron
	tracker *patterns.Tracker
	coord   *coordinator.Coordinator
	log     *logging.Logger
	now     func() time.Time
}

// New builds a Scheduler and registers both sweeps. An invalid cron spec
// in cfg is a programming error and panics, matching cron.Cron's own
// AddFunc contract (it returns an error; callers that ignore it here would
// otherwise silently run with one fewer sweep).
func New(cfg Config, tracker *patterns.Tracker, coord *coordinator.Coordinator, log *logging.Logger) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		tracker: tracker,
		coord:   coord,
		log:     log,
		now:     time.Now,
	}

	if _, err := s.cron.AddFunc(cfg.DecaySpec, s.runDecaySweep); err != nil {
		panic("scheduler: invalid decay cron spec: " + err.Error())
	}
	if _, err := s.cron.AddFunc(cfg.CapacitySpec, s.runCapacitySweep); err != nil {
		panic("scheduler: invalid capacity cron spec: " + err.Error())
	}

	return s
}

// Start launches the cron scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDecaySweep() {
	if s.tracker == nil {
		return
	}
	decayed := s.tracker.DecayOldPatterns(s.now())
	if len(decayed) == 0 {
		return
	}
	s.log.WithContext(context.Background()).WithField("count", len(decayed)).Info("pattern effectiveness decay sweep found stale patterns")
}

func (s *Scheduler) runCapacitySweep() {
	if s.coord == nil {
		return
	}
	ctx := context.Background()
	evicted, err := s.coord.EnforceCapacity(ctx)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("capacity eviction sweep failed")
		return
	}
	if evicted > 0 {
		s.log.WithContext(ctx).WithField("evicted", evicted).Info("capacity eviction sweep ran")
	}
}
