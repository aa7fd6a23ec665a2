package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldwatch/internal/types"
)

// DefaultCycleInterval is the wall-clock spacing between evaluation cycles.
const DefaultCycleInterval = 15 * time.Minute

// DefaultCleanupInterval is the spacing between retention sweeps.
const DefaultCleanupInterval = time.Hour

// ErrCycleInFlight is returned by RunOnce when an evaluation cycle is
// already running.
var ErrCycleInFlight = types.NewAppError(types.ErrCodeInternalUnexpected, "evaluation cycle already in flight", nil)

// Engine owns the periodic execution of the evaluation cycle and the
// retention sweep. Both tasks are single-flight: a tick that fires while the
// previous run is still going is skipped and logged, never queued.
type Engine struct {
	cycle           *CycleRunner
	cleanup         *CleanupService
	cycleInterval   time.Duration
	cleanupInterval time.Duration
	clock           types.Clock
	logger          *slog.Logger

	cycleMu   sync.Mutex // held for the duration of a cycle
	cleanupMu sync.Mutex // held for the duration of a sweep

	statsMu     sync.Mutex
	lastCycle   *types.CycleStats
	lastCleanup *CleanupStats

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// EngineConfig holds the configuration for creating an Engine.
type EngineConfig struct {
	Cycle           *CycleRunner
	Cleanup         *CleanupService
	CycleInterval   time.Duration // default DefaultCycleInterval
	CleanupInterval time.Duration // default DefaultCleanupInterval
	Clock           types.Clock
	Logger          *slog.Logger
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg EngineConfig) *Engine {
	cycleInterval := cfg.CycleInterval
	if cycleInterval <= 0 {
		cycleInterval = DefaultCycleInterval
	}
	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cycle:           cfg.Cycle,
		cleanup:         cfg.Cleanup,
		cycleInterval:   cycleInterval,
		cleanupInterval: cleanupInterval,
		clock:           clock,
		logger:          logger,
		stopped:         make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start runs the tick loops until ctx is canceled or Stop is called. It
// blocks, so callers run it in its own goroutine. An initial evaluation
// cycle runs immediately on startup rather than waiting a full interval.
func (e *Engine) Start(ctx context.Context) {
	defer close(e.done)

	e.runCycle(ctx)

	cycleTicker := time.NewTicker(e.cycleInterval)
	defer cycleTicker.Stop()
	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopped:
			return
		case <-cycleTicker.C:
			e.runCycle(ctx)
		case <-cleanupTicker.C:
			e.runCleanup(ctx)
		}
	}
}

// Stop signals the tick loop to exit and waits for it to finish. A run in
// progress completes; Stop does not interrupt it.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopped) })
	<-e.done
}

// RunOnce triggers an evaluation cycle immediately. If one is already in
// flight it returns ErrCycleInFlight instead of waiting.
func (e *Engine) RunOnce(ctx context.Context) (types.CycleStats, error) {
	if !e.cycleMu.TryLock() {
		return types.CycleStats{}, ErrCycleInFlight
	}
	defer e.cycleMu.Unlock()
	return e.runCycleLocked(ctx)
}

// RunCleanupOnce triggers a retention sweep immediately, waiting if one is
// already in flight.
func (e *Engine) RunCleanupOnce(ctx context.Context) (CleanupStats, error) {
	e.cleanupMu.Lock()
	defer e.cleanupMu.Unlock()
	return e.runCleanupLocked(ctx)
}

// LastCycle returns a copy of the most recent cycle's stats, or nil if no
// cycle has completed yet.
func (e *Engine) LastCycle() *types.CycleStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	if e.lastCycle == nil {
		return nil
	}
	stats := *e.lastCycle
	return &stats
}

// LastCleanup returns a copy of the most recent sweep's stats, or nil.
func (e *Engine) LastCleanup() *CleanupStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	if e.lastCleanup == nil {
		return nil
	}
	stats := *e.lastCleanup
	return &stats
}

func (e *Engine) runCycle(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		e.logger.WarnContext(ctx, "skipping evaluation tick, previous cycle still running")
		return
	}
	defer e.cycleMu.Unlock()
	e.runCycleLocked(ctx)
}

func (e *Engine) runCycleLocked(ctx context.Context) (types.CycleStats, error) {
	stats, err := e.cycle.Run(ctx)
	e.statsMu.Lock()
	e.lastCycle = &stats
	e.statsMu.Unlock()
	if err != nil {
		e.logger.ErrorContext(ctx, "evaluation cycle failed", "error", err)
	}
	return stats, err
}

func (e *Engine) runCleanup(ctx context.Context) {
	if !e.cleanupMu.TryLock() {
		e.logger.WarnContext(ctx, "skipping cleanup tick, previous sweep still running")
		return
	}
	defer e.cleanupMu.Unlock()
	e.runCleanupLocked(ctx)
}

func (e *Engine) runCleanupLocked(ctx context.Context) (CleanupStats, error) {
	stats, err := e.cleanup.Run(ctx, e.clock.Now())
	if err != nil {
		e.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
		return stats, err
	}
	e.statsMu.Lock()
	e.lastCleanup = &stats
	e.statsMu.Unlock()
	return stats, nil
}
