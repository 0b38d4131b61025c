package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentmemory/internal/logging"
	"github.com/r3e-network/agentmemory/internal/patterns"
)

func TestScheduler_RunDecaySweep_FindsStalePatterns(t *testing.T) {
	tracker := patterns.NewTracker(patterns.DefaultWeights())
	log := logging.New("test", "error", "text")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.RecordRetrieval("p-stale", base)
	tracker.RecordRetrieval("p-stale", base)
	tracker.RecordApplication("p-stale", false, base)

	s := &Scheduler{tracker: tracker, log: log, now: func() time.Time { return base.AddDate(0, 4, 0) }}
	s.runDecaySweep() // must not panic; exercised for side-effect-free logging path

	decayed := tracker.DecayOldPatterns(base.AddDate(0, 4, 0))
	require.Contains(t, decayed, "p-stale")
}

func TestScheduler_RunDecaySweep_NoOpWithoutTracker(t *testing.T) {
	s := &Scheduler{log: logging.New("test", "error", "text"), now: time.Now}
	s.runDecaySweep() // must not panic with a nil tracker
}

func TestScheduler_RunCapacitySweep_NoOpWithoutCoordinator(t *testing.T) {
	s := &Scheduler{log: logging.New("test", "error", "text"), now: time.Now}
	s.runCapacitySweep() // must not panic with a nil coordinator
}

func TestDefaultConfig_ProducesValidCronSpecs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotEmpty(t, cfg.DecaySpec)
	require.NotEmpty(t, cfg.CapacitySpec)

	tracker := patterns.NewTracker(patterns.DefaultWeights())
	log := logging.New("test", "error", "text")

	require.NotPanics(t, func() {
		s := New(cfg, tracker, nil, log)
		s.Start()
		s.Stop()
	})
}

func TestNew_PanicsOnInvalidCronSpec(t *testing.T) {
	require.Panics(t, func() {
		New(Config{DecaySpec: "not a cron spec", CapacitySpec: "0 0 * * *"}, nil, nil, logging.New("test", "error", "text"))
	})
}
