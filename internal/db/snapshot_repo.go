package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/types"
)

// SnapshotRepository provides data access for the snapshots table. Each
// fetched snapshot is persisted once (the forecast window lives in a JSONB
// column) and later archived and pruned by the cleanup sweep once it passes
// the retention age.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a SnapshotRepository backed by the given
// connection.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert persists a snapshot, assigning the ID when unset.
func (r *SnapshotRepository) Insert(ctx context.Context, snap *types.Snapshot) error {
	if snap.ID == "" {
		snap.ID = "snp_" + uuid.New().String()
	}

	forecast, err := json.Marshal(snap.Forecast)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode forecast window", err)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO snapshots
		 (id, site_id, observed_at, temperature_c, humidity_percent,
		  wind_speed_ms, precipitation_mm, forecast, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING created_at`,
		snap.ID,
		snap.SiteID,
		snap.ObservedAt,
		snap.TemperatureC,
		snap.HumidityPct,
		snap.WindSpeedMS,
		snap.PrecipitationMM,
		forecast,
	)
	if err := row.Scan(&snap.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert snapshot", err)
	}
	return nil
}

// ListOlderThan returns up to limit snapshots created before cutoff, oldest
// first. Used by the cleanup sweep to archive before pruning.
func (r *SnapshotRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.Snapshot, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, site_id, observed_at, temperature_c, humidity_percent,
		        wind_speed_ms, precipitation_mm, forecast, created_at
		 FROM snapshots
		 WHERE created_at < $1
		 ORDER BY created_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list old snapshots", err)
	}
	defer rows.Close()

	var results []types.Snapshot
	for rows.Next() {
		var (
			s           types.Snapshot
			forecastRaw []byte
		)
		if err := rows.Scan(
			&s.ID,
			&s.SiteID,
			&s.ObservedAt,
			&s.TemperatureC,
			&s.HumidityPct,
			&s.WindSpeedMS,
			&s.PrecipitationMM,
			&forecastRaw,
			&s.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan snapshot row", err)
		}
		if len(forecastRaw) > 0 {
			// Malformed stored forecast degrades to an empty window rather
			// than failing the sweep.
			_ = json.Unmarshal(forecastRaw, &s.Forecast)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating snapshot rows", err)
	}

	return results, nil
}

// DeleteByIDs removes snapshots by ID and returns the count deleted.
func (r *SnapshotRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM snapshots WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete snapshots", err)
	}
	return tag.RowsAffected(), nil
}
