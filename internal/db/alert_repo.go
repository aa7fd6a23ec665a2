package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"fieldwatch/internal/types"
)

// AlertRepository provides data access for the alerts table.
//
// The table carries a partial unique index:
//
//	CREATE UNIQUE INDEX uniq_active_alert_per_site_rule
//	    ON alerts (site_id, rule_type) WHERE is_active
//
// which enforces the at-most-one-active-alert-per-(site, rule) invariant at
// the storage layer. Insert surfaces a violation as
// ErrCodeConflictAlertActive so overlapping reconcile attempts collapse to a
// single surviving active alert.
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository creates an AlertRepository backed by the given database
// connection (pool or transaction).
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, site_id, owner_id, rule_type, severity, title,
	description, recommendation, is_active, triggered_at, acknowledged_at,
	source_snapshot_id`

// FindActive returns the active alert for the given (site, rule) pair, or
// nil when none exists.
func (r *AlertRepository) FindActive(ctx context.Context, siteID string, rule types.RuleType) (*types.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE site_id = $1 AND rule_type = $2 AND is_active
		 LIMIT 1`,
		siteID, string(rule),
	)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find active alert", err)
	}
	return alert, nil
}

// FindRecentlyTriggered returns the most recent alert of the given (site,
// rule) pair triggered at or after cutoff, active or not. Supports the
// suppression window: a just-deactivated alert still blocks re-creation
// until the cool-down passes.
func (r *AlertRepository) FindRecentlyTriggered(ctx context.Context, siteID string, rule types.RuleType, cutoff time.Time) (*types.Alert, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE site_id = $1 AND rule_type = $2 AND triggered_at >= $3
		 ORDER BY triggered_at DESC
		 LIMIT 1`,
		siteID, string(rule), cutoff,
	)

	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find recently triggered alert", err)
	}
	return alert, nil
}

// Insert creates a new active alert, assigning the ID and triggered_at when
// unset. A partial-unique-index violation (an active alert of the same type
// already exists for the site) is returned as ErrCodeConflictAlertActive;
// callers treat it as "already handled".
func (r *AlertRepository) Insert(ctx context.Context, alert *types.Alert) error {
	if alert.ID == "" {
		alert.ID = "alr_" + uuid.New().String()
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO alerts
		 (id, site_id, owner_id, rule_type, severity, title, description,
		  recommendation, is_active, triggered_at, source_snapshot_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, COALESCE($9, NOW()), $10)
		 RETURNING triggered_at`,
		alert.ID,
		alert.SiteID,
		alert.OwnerID,
		string(alert.Rule),
		string(alert.Severity),
		alert.Title,
		alert.Description,
		alert.Recommendation,
		nilIfZeroTime(alert.TriggeredAt),
		nilIfEmpty(alert.SourceSnapshotID),
	)

	if err := row.Scan(&alert.TriggeredAt); err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictAlertActive,
				"an active alert of this type already exists for the site", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert alert", err)
	}

	alert.IsActive = true
	return nil
}

// DeactivateOlderThan bulk-expires active alerts whose triggered_at is older
// than cutoff, regardless of acknowledgement, and returns how many rows
// changed. Repeated calls are idempotent: already-inactive alerts never match
// again.
func (r *AlertRepository) DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET is_active = FALSE
		 WHERE is_active AND triggered_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate expired alerts", err)
	}
	return tag.RowsAffected(), nil
}

// Acknowledge marks an alert acknowledged by its owner and deactivates it.
// Returns false when the alert does not exist, belongs to another owner, or
// is already inactive. Not called by the scheduler; exposed for the API
// layer. The single UPDATE keeps it race-safe against a concurrent cycle.
func (r *AlertRepository) Acknowledge(ctx context.Context, alertID, ownerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE alerts SET
			acknowledged_at = NOW(),
			is_active = FALSE
		 WHERE id = $1 AND owner_id = $2 AND is_active`,
		alertID, ownerID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acknowledge alert", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListActiveBySite returns all active alerts for a site ordered by severity
// (most urgent first) then recency. Used by the ops status endpoint.
func (r *AlertRepository) ListActiveBySite(ctx context.Context, siteID string) ([]*types.Alert, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM alerts
		 WHERE site_id = $1 AND is_active
		 ORDER BY
			CASE severity
				WHEN 'critical' THEN 3
				WHEN 'high' THEN 2
				ELSE 1
			END DESC,
			triggered_at DESC`,
		siteID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active alerts", err)
	}
	defer rows.Close()

	var results []*types.Alert
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan alert row", scanErr)
		}
		results = append(results, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating alert rows", err)
	}
	return results, nil
}

// scanAlert scans one alerts row from a pgx.Row or pgx.Rows.
func scanAlert(row pgx.Row) (*types.Alert, error) {
	var (
		a              types.Alert
		rule           string
		severity       string
		acknowledgedAt *time.Time
		sourceSnapshot *string
	)

	err := row.Scan(
		&a.ID,
		&a.SiteID,
		&a.OwnerID,
		&rule,
		&severity,
		&a.Title,
		&a.Description,
		&a.Recommendation,
		&a.IsActive,
		&a.TriggeredAt,
		&acknowledgedAt,
		&sourceSnapshot,
	)
	if err != nil {
		return nil, err
	}

	a.Rule = types.RuleType(rule)
	a.Severity = types.Severity(severity)
	a.AcknowledgedAt = acknowledgedAt
	if sourceSnapshot != nil {
		a.SourceSnapshotID = *sourceSnapshot
	}
	return &a, nil
}

// nilIfZeroTime returns nil for the zero time so COALESCE defaults apply.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// nilIfEmpty returns nil for the empty string so NULL is stored instead.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
