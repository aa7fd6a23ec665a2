// Package scheduler drives the alert engine: the periodic evaluation cycle
// that walks every active site, and the retention sweep that retires old
// alerts and archives old snapshots. Cycle and sweep are single-flight; a
// slow run causes the next tick to be skipped, never stacked.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldwatch/internal/types"
)

// DefaultConcurrency is the number of sites processed in parallel per cycle.
const DefaultConcurrency = 4

// SiteLister provides the active sites that drive a cycle.
type SiteLister interface {
	ListActive(ctx context.Context) ([]types.Site, error)
}

// SnapshotSource fetches current conditions and forecast for a site.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, site types.Site) (*types.Snapshot, error)
}

// SnapshotStore persists fetched snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, snap *types.Snapshot) error
}

// RuleEvaluator turns a snapshot into rule matches.
type RuleEvaluator interface {
	Evaluate(snap *types.Snapshot) []types.RuleMatch
}

// Reconciler applies dedup policy to matches and creates new alerts.
type Reconciler interface {
	Reconcile(ctx context.Context, siteID, ownerID string, matches []types.RuleMatch, sourceSnapshotID string) ([]*types.Alert, error)
}

// AlertDispatcher delivers a created alert to its owner's targets.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert *types.Alert) (types.DispatchResult, error)
}

// CycleMetrics receives per-cycle and per-dispatch measurements.
type CycleMetrics interface {
	RecordCycle(ctx context.Context, stats types.CycleStats)
	RecordDispatch(ctx context.Context, rule types.RuleType, result types.DispatchResult)
}

// CycleRunner executes one full evaluation cycle across all active sites.
type CycleRunner struct {
	sites       SiteLister
	source      SnapshotSource
	snapshots   SnapshotStore
	evaluator   RuleEvaluator
	reconciler  Reconciler
	dispatcher  AlertDispatcher
	metrics     CycleMetrics
	concurrency int
	pacingDelay time.Duration
	clock       types.Clock
	logger      *slog.Logger
}

// CycleRunnerConfig holds the configuration for creating a CycleRunner.
type CycleRunnerConfig struct {
	Sites       SiteLister
	Source      SnapshotSource
	Snapshots   SnapshotStore
	Evaluator   RuleEvaluator
	Reconciler  Reconciler
	Dispatcher  AlertDispatcher
	Metrics     CycleMetrics // optional
	Concurrency int          // default DefaultConcurrency
	PacingDelay time.Duration
	Clock       types.Clock
	Logger      *slog.Logger
}

// NewCycleRunner creates a CycleRunner with the given configuration.
func NewCycleRunner(cfg CycleRunnerConfig) *CycleRunner {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleRunner{
		sites:       cfg.Sites,
		source:      cfg.Source,
		snapshots:   cfg.Snapshots,
		evaluator:   cfg.Evaluator,
		reconciler:  cfg.Reconciler,
		dispatcher:  cfg.Dispatcher,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
		pacingDelay: cfg.PacingDelay,
		clock:       clock,
		logger:      logger,
	}
}

// Run executes one evaluation cycle: list active sites, then for each site
// fetch a snapshot, persist it, evaluate rules, reconcile alerts, and
// dispatch the new ones. Sites run through a bounded worker pool.
//
// A failure on one site (provider down, bad payload) is logged and counted;
// the other sites still run. The one exception is the alert store becoming
// unavailable, which aborts the whole cycle since reconciliation cannot make
// correct decisions without it.
func (c *CycleRunner) Run(ctx context.Context) (types.CycleStats, error) {
	started := c.clock.Now()
	stats := types.CycleStats{StartedAt: started}

	sites, err := c.sites.ListActive(ctx)
	if err != nil {
		stats.Aborted = true
		stats.Duration = c.clock.Now().Sub(started)
		return stats, fmt.Errorf("listing active sites: %w", err)
	}
	stats.Sites = len(sites)

	c.logger.InfoContext(ctx, "evaluation cycle started", "sites", len(sites))

	var (
		mu            sync.Mutex
		failed        int
		alertsCreated int
		abortErr      error
	)

	groupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(groupCtx)
	g.SetLimit(c.concurrency)

	for i, site := range sites {
		if i > 0 && c.pacingDelay > 0 {
			// Spreads provider requests out so a large site count does not
			// arrive as one burst.
			select {
			case <-gctx.Done():
			case <-time.After(c.pacingDelay):
			}
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			created, err := c.processSite(gctx, site)

			mu.Lock()
			defer mu.Unlock()
			alertsCreated += created
			if err != nil {
				if types.IsStoreUnavailable(err) {
					if abortErr == nil {
						abortErr = err
					}
					cancel()
					return nil
				}
				failed++
				c.logger.ErrorContext(gctx, "site processing failed",
					"site_id", site.ID,
					"error", err,
				)
			}
			return nil
		})
	}

	g.Wait()

	stats.Failed = failed
	stats.AlertsCreated = alertsCreated
	stats.Duration = c.clock.Now().Sub(started)

	if abortErr != nil {
		stats.Aborted = true
		c.logger.ErrorContext(ctx, "evaluation cycle aborted, alert store unavailable",
			"error", abortErr,
		)
		if c.metrics != nil {
			c.metrics.RecordCycle(ctx, stats)
		}
		return stats, fmt.Errorf("alert store unavailable: %w", abortErr)
	}

	c.logger.InfoContext(ctx, "evaluation cycle finished",
		"sites", stats.Sites,
		"failed", stats.Failed,
		"alerts_created", stats.AlertsCreated,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if c.metrics != nil {
		c.metrics.RecordCycle(ctx, stats)
	}
	return stats, nil
}

// processSite runs the fetch-evaluate-reconcile-dispatch chain for one site
// and returns the number of alerts created.
func (c *CycleRunner) processSite(ctx context.Context, site types.Site) (int, error) {
	snap, err := c.source.GetSnapshot(ctx, site)
	if err != nil {
		return 0, fmt.Errorf("fetching snapshot: %w", err)
	}

	if err := c.snapshots.Insert(ctx, snap); err != nil {
		return 0, fmt.Errorf("persisting snapshot: %w", err)
	}

	matches := c.evaluator.Evaluate(snap)
	if len(matches) == 0 {
		return 0, nil
	}

	created, err := c.reconciler.Reconcile(ctx, site.ID, site.OwnerID, matches, snap.ID)
	// Alerts created before a reconcile error are real and must be
	// dispatched even when the error aborts the rest of the site.
	for _, alert := range created {
		result, dispatchErr := c.dispatcher.Dispatch(ctx, alert)
		if dispatchErr != nil {
			c.logger.ErrorContext(ctx, "alert dispatch failed",
				"alert_id", alert.ID,
				"error", dispatchErr,
			)
			continue
		}
		if c.metrics != nil {
			c.metrics.RecordDispatch(ctx, alert.Rule, result)
		}
	}
	if err != nil {
		return len(created), fmt.Errorf("reconciling alerts: %w", err)
	}

	return len(created), nil
}
