package db

import (
	"context"

	"fieldwatch/internal/types"
)

// TargetRepository provides data access for the delivery_targets table.
// Target registration happens in the device/API layer; the dispatcher only
// lists an owner's targets and prunes the ones the push provider reports as
// permanently gone.
type TargetRepository struct {
	db DBTX
}

// NewTargetRepository creates a TargetRepository backed by the given
// connection.
func NewTargetRepository(db DBTX) *TargetRepository {
	return &TargetRepository{db: db}
}

// ListByOwner returns all delivery targets registered for an owner.
func (r *TargetRepository) ListByOwner(ctx context.Context, ownerID string) ([]types.DeliveryTarget, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, token, platform, created_at
		 FROM delivery_targets
		 WHERE owner_id = $1
		 ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list delivery targets", err)
	}
	defer rows.Close()

	var targets []types.DeliveryTarget
	for rows.Next() {
		var t types.DeliveryTarget
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan delivery target row", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating delivery target rows", err)
	}

	return targets, nil
}

// Delete removes a delivery target. Deleting an already-removed target is
// not an error; pruning may race with user-driven unregistration.
func (r *TargetRepository) Delete(ctx context.Context, targetID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM delivery_targets WHERE id = $1`,
		targetID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete delivery target", err)
	}
	return nil
}
