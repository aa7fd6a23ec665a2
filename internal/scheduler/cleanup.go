package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"fieldwatch/internal/types"
)

// DefaultAlertTTL is how long an alert stays active before the retention
// sweep retires it, acknowledged or not.
const DefaultAlertTTL = 7 * 24 * time.Hour

// DefaultSnapshotRetention is how long persisted snapshots are kept before
// being archived and pruned.
const DefaultSnapshotRetention = 30 * 24 * time.Hour

// archiveBatchSize bounds how many snapshots one sweep archives, keeping
// sweep duration predictable after downtime builds a backlog.
const archiveBatchSize = 5000

// AlertRetirer deactivates alerts past their retention age.
type AlertRetirer interface {
	DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SnapshotPruner lists and deletes snapshots past their retention age.
type SnapshotPruner interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.Snapshot, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// CleanupMetrics receives retention sweep measurements.
type CleanupMetrics interface {
	RecordCleanup(ctx context.Context, deactivated, archived int64, duration time.Duration)
}

// CleanupStats summarizes one retention sweep.
type CleanupStats struct {
	AlertsDeactivated int64
	SnapshotsArchived int64
	SnapshotsDeleted  int64
}

// CleanupService runs the retention sweep: retire stale alerts, then archive
// and prune old snapshots.
type CleanupService struct {
	alerts            AlertRetirer
	snapshots         SnapshotPruner
	metrics           CleanupMetrics
	alertTTL          time.Duration
	snapshotRetention time.Duration
	archiveDir        string
	clock             types.Clock
	logger            *slog.Logger
}

// CleanupServiceConfig holds the configuration for creating a CleanupService.
type CleanupServiceConfig struct {
	Alerts            AlertRetirer
	Snapshots         SnapshotPruner
	Metrics           CleanupMetrics // optional
	AlertTTL          time.Duration  // default DefaultAlertTTL
	SnapshotRetention time.Duration  // default DefaultSnapshotRetention
	ArchiveDir        string         // empty disables snapshot archival
	Clock             types.Clock
	Logger            *slog.Logger
}

// NewCleanupService creates a CleanupService with the given configuration.
func NewCleanupService(cfg CleanupServiceConfig) *CleanupService {
	alertTTL := cfg.AlertTTL
	if alertTTL <= 0 {
		alertTTL = DefaultAlertTTL
	}
	snapshotRetention := cfg.SnapshotRetention
	if snapshotRetention <= 0 {
		snapshotRetention = DefaultSnapshotRetention
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		alerts:            cfg.Alerts,
		snapshots:         cfg.Snapshots,
		metrics:           cfg.Metrics,
		alertTTL:          alertTTL,
		snapshotRetention: snapshotRetention,
		archiveDir:        cfg.ArchiveDir,
		clock:             clock,
		logger:            logger,
	}
}

// Run executes one retention sweep relative to now. The sweep is idempotent:
// running it twice at the same instant retires and prunes nothing extra on
// the second pass.
func (s *CleanupService) Run(ctx context.Context, now time.Time) (CleanupStats, error) {
	started := s.clock.Now()
	var stats CleanupStats

	deactivated, err := s.alerts.DeactivateOlderThan(ctx, now.Add(-s.alertTTL))
	if err != nil {
		return stats, fmt.Errorf("retiring stale alerts: %w", err)
	}
	stats.AlertsDeactivated = deactivated
	if deactivated > 0 {
		s.logger.InfoContext(ctx, "retired stale alerts", "count", deactivated)
	}

	archived, deleted, err := s.sweepSnapshots(ctx, now)
	if err != nil {
		return stats, err
	}
	stats.SnapshotsArchived = archived
	stats.SnapshotsDeleted = deleted

	if s.metrics != nil {
		s.metrics.RecordCleanup(ctx, stats.AlertsDeactivated, stats.SnapshotsArchived, s.clock.Now().Sub(started))
	}
	return stats, nil
}

// sweepSnapshots archives snapshots past retention to a gzip JSONL file and
// deletes them. Deletion only happens after the archive file is flushed, so
// a failed archive leaves the rows in place for the next sweep.
func (s *CleanupService) sweepSnapshots(ctx context.Context, now time.Time) (archived, deleted int64, err error) {
	cutoff := now.Add(-s.snapshotRetention)

	snaps, err := s.snapshots.ListOlderThan(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("listing expired snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return 0, 0, nil
	}

	if s.archiveDir != "" {
		if err := s.writeArchive(snaps, now); err != nil {
			return 0, 0, fmt.Errorf("archiving snapshots: %w", err)
		}
		archived = int64(len(snaps))
	}

	ids := make([]string, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.ID
	}
	deleted, err = s.snapshots.DeleteByIDs(ctx, ids)
	if err != nil {
		return archived, 0, fmt.Errorf("pruning archived snapshots: %w", err)
	}

	s.logger.InfoContext(ctx, "pruned expired snapshots",
		"archived", archived,
		"deleted", deleted,
		"cutoff", cutoff.Format(time.RFC3339),
	)
	return archived, deleted, nil
}

// writeArchive appends the snapshots as gzip-compressed JSON lines to a
// per-sweep file named by timestamp.
func (s *CleanupService) writeArchive(snaps []types.Snapshot, now time.Time) error {
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	name := fmt.Sprintf("snapshots-%s.jsonl.gz", now.UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.archiveDir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating archive file: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	for i := range snaps {
		if err := enc.Encode(&snaps[i]); err != nil {
			gz.Close()
			return fmt.Errorf("encoding snapshot %s: %w", snaps[i].ID, err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flushing archive: %w", err)
	}
	return f.Sync()
}
