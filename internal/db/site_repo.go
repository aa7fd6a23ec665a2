package db

import (
	"context"

	"fieldwatch/internal/types"
)

// SiteRepository provides read access to the sites table. Site CRUD belongs
// to the surrounding account layer; the alert engine only needs the active
// site listing that drives each cycle.
type SiteRepository struct {
	db DBTX
}

// NewSiteRepository creates a SiteRepository backed by the given connection.
func NewSiteRepository(db DBTX) *SiteRepository {
	return &SiteRepository{db: db}
}

// ListActive returns all sites with status 'active', ordered by ID so cycle
// processing order is stable across runs.
func (r *SiteRepository) ListActive(ctx context.Context) ([]types.Site, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, name, location_lat, location_lon,
		        COALESCE(location_display_name, ''), status, created_at, updated_at
		 FROM sites
		 WHERE status = 'active'
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active sites", err)
	}
	defer rows.Close()

	var sites []types.Site
	for rows.Next() {
		var (
			s      types.Site
			status string
		)
		if err := rows.Scan(
			&s.ID,
			&s.OwnerID,
			&s.Name,
			&s.Location.Lat,
			&s.Location.Lon,
			&s.Location.DisplayName,
			&status,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan site row", err)
		}
		s.Status = types.SiteStatus(status)
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating site rows", err)
	}

	return sites, nil
}
