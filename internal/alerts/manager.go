// Package alerts implements the alert lifecycle manager: the stateful
// decision layer between rule matches and the alert store. It owns
// deduplication (the suppression window and the single-active-alert check)
// and the construction of new alerts from rule matches.
//
// The manager deliberately never deactivates an alert because its rule
// stopped matching. Risk onset requires evidence; risk persistence does not
// require re-confirmation. Alerts leave the active state only through user
// acknowledgement or the retention sweep.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fieldwatch/internal/types"
)

// DefaultSuppressionWindow is the minimum time between successive alerts of
// the same type for the same site, measured from the previous alert's
// triggered_at regardless of whether it is still active. It exists to stop
// re-alert storms when conditions hover around a threshold.
const DefaultSuppressionWindow = 6 * time.Hour

// AlertStore abstracts the alert persistence operations the manager needs.
type AlertStore interface {
	// FindActive returns the active alert for (site, rule), or nil.
	FindActive(ctx context.Context, siteID string, rule types.RuleType) (*types.Alert, error)
	// FindRecentlyTriggered returns the most recent alert for (site, rule)
	// triggered at or after cutoff, active or not, or nil.
	FindRecentlyTriggered(ctx context.Context, siteID string, rule types.RuleType, cutoff time.Time) (*types.Alert, error)
	// Insert creates a new active alert. A duplicate active alert surfaces
	// as ErrCodeConflictAlertActive.
	Insert(ctx context.Context, alert *types.Alert) error
}

// Manager decides which rule matches become new alerts.
type Manager struct {
	store       AlertStore
	suppression time.Duration
	clock       types.Clock
	logger      *slog.Logger
}

// ManagerConfig holds the configuration for creating a Manager.
type ManagerConfig struct {
	Store             AlertStore
	SuppressionWindow time.Duration
	Clock             types.Clock
	Logger            *slog.Logger
}

// NewManager creates a Manager. A zero suppression window falls back to the
// default; nil Clock and Logger get real-time and default-logger fallbacks.
func NewManager(cfg ManagerConfig) *Manager {
	suppression := cfg.SuppressionWindow
	if suppression <= 0 {
		suppression = DefaultSuppressionWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:       cfg.Store,
		suppression: suppression,
		clock:       clock,
		logger:      logger,
	}
}

// Reconcile applies the dedup policy to one site's rule matches and returns
// the alerts that were newly created, in match order.
//
// Per match:
//  1. An alert of the same type triggered within the suppression window
//     blocks creation, whether or not it is still active.
//  2. An active alert of the same type blocks creation.
//  3. Otherwise a new active alert is inserted from the match. A storage
//     conflict (another worker won the insert race) is treated as
//     "already active" and skipped.
//
// Store errors abort reconciliation and are returned along with whatever
// alerts were already created; those creations stand.
func (m *Manager) Reconcile(ctx context.Context, siteID, ownerID string, matches []types.RuleMatch, sourceSnapshotID string) ([]*types.Alert, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	cutoff := m.clock.Now().Add(-m.suppression)

	var created []*types.Alert
	for _, match := range matches {
		recent, err := m.store.FindRecentlyTriggered(ctx, siteID, match.Rule, cutoff)
		if err != nil {
			return created, fmt.Errorf("checking suppression window for %s: %w", match.Rule, err)
		}
		if recent != nil {
			m.logger.DebugContext(ctx, "match suppressed by recent alert",
				"site_id", siteID,
				"rule", string(match.Rule),
				"previous_alert_id", recent.ID,
				"previous_triggered_at", recent.TriggeredAt.Format(time.RFC3339),
			)
			continue
		}

		active, err := m.store.FindActive(ctx, siteID, match.Rule)
		if err != nil {
			return created, fmt.Errorf("checking active alert for %s: %w", match.Rule, err)
		}
		if active != nil {
			m.logger.DebugContext(ctx, "match skipped, alert already active",
				"site_id", siteID,
				"rule", string(match.Rule),
				"alert_id", active.ID,
			)
			continue
		}

		alert := &types.Alert{
			SiteID:           siteID,
			OwnerID:          ownerID,
			Rule:             match.Rule,
			Severity:         match.Severity,
			Title:            match.Title,
			Description:      match.Description,
			Recommendation:   match.Recommendation,
			SourceSnapshotID: sourceSnapshotID,
		}

		if err := m.store.Insert(ctx, alert); err != nil {
			if types.HasCode(err, types.ErrCodeConflictAlertActive) {
				// A concurrent reconcile created it first. The invariant held;
				// nothing to do.
				m.logger.InfoContext(ctx, "insert conflict, alert already active",
					"site_id", siteID,
					"rule", string(match.Rule),
				)
				continue
			}
			return created, fmt.Errorf("inserting %s alert: %w", match.Rule, err)
		}

		m.logger.InfoContext(ctx, "alert created",
			"alert_id", alert.ID,
			"site_id", siteID,
			"rule", string(match.Rule),
			"severity", string(match.Severity),
			"value", match.Value,
		)
		created = append(created, alert)
	}

	return created, nil
}
