package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fieldwatch/internal/types"
)

// blockingLister lets a test hold a cycle open mid-run.
type blockingLister struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLister) ListActive(ctx context.Context) ([]types.Site, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func newTestEngine(lister SiteLister) *Engine {
	cycle := NewCycleRunner(CycleRunnerConfig{
		Sites:      lister,
		Source:     &mockSource{},
		Snapshots:  &mockSnapshotStore{},
		Evaluator:  &mockEvaluator{},
		Reconciler: &mockReconciler{},
		Dispatcher: &mockDispatcher{},
		Logger:     testLogger(),
	})
	cleanup := NewCleanupService(CleanupServiceConfig{
		Alerts:    &mockAlertRetirer{},
		Snapshots: &mockSnapshotPruner{},
		Logger:    testLogger(),
	})
	return NewEngine(EngineConfig{
		Cycle:   cycle,
		Cleanup: cleanup,
		Logger:  testLogger(),
	})
}

func TestEngineRunOnce_RecordsStats(t *testing.T) {
	engine := newTestEngine(&mockSiteLister{sites: testSites(2)})

	if engine.LastCycle() != nil {
		t.Fatal("expected no stats before the first cycle")
	}

	stats, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Sites != 2 {
		t.Errorf("expected 2 sites processed, got %d", stats.Sites)
	}

	last := engine.LastCycle()
	if last == nil || last.Sites != 2 {
		t.Errorf("expected LastCycle to reflect the run, got %+v", last)
	}
}

func TestEngineRunOnce_SingleFlight(t *testing.T) {
	lister := &blockingLister{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	engine := newTestEngine(lister)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.RunOnce(context.Background())
	}()

	<-lister.entered

	_, err := engine.RunOnce(context.Background())
	if !errors.Is(err, ErrCycleInFlight) {
		t.Errorf("expected ErrCycleInFlight while a cycle is running, got %v", err)
	}

	close(lister.release)
	wg.Wait()

	// The lock is free again once the first run finishes.
	if _, err := engine.RunOnce(context.Background()); err != nil {
		t.Errorf("expected a fresh run after the first finished, got %v", err)
	}
}

func TestEngineRunCleanupOnce_RecordsStats(t *testing.T) {
	engine := newTestEngine(&mockSiteLister{})

	stats, err := engine.RunCleanupOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SnapshotsDeleted != 0 {
		t.Errorf("expected an empty sweep, got %+v", stats)
	}
	if engine.LastCleanup() == nil {
		t.Error("expected LastCleanup to be recorded")
	}
}

func TestEngineStartStop(t *testing.T) {
	engine := newTestEngine(&mockSiteLister{sites: testSites(1)})

	done := make(chan struct{})
	go func() {
		engine.Start(context.Background())
		close(done)
	}()

	// The startup cycle runs immediately; wait for its stats to appear.
	deadline := time.After(2 * time.Second)
	for engine.LastCycle() == nil {
		select {
		case <-deadline:
			t.Fatal("startup cycle never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	engine.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}
