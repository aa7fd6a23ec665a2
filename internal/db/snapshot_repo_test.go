package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fieldwatch/internal/types"
)

func TestSnapshotRepository_Insert_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 3, 10, 6, 0, 5, 0, time.UTC)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*time.Time) = created
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	snap := &types.Snapshot{
		SiteID:       "site_1",
		ObservedAt:   time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
		TemperatureC: 12.3,
		Forecast: []types.ForecastPoint{
			{ValidAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), TemperatureC: 10},
		},
	}
	err := repo.Insert(ctx, snap)
	require.NoError(t, err)

	assert.Contains(t, snap.ID, "snp_")
	assert.Equal(t, created, snap.CreatedAt)
	db.AssertExpectations(t)
}

func TestSnapshotRepository_Insert_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	row := &mockRow{scanErr: errors.New("connection refused")}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	err := repo.Insert(ctx, &types.Snapshot{SiteID: "site_1"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestSnapshotRepository_DeleteByIDs(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSnapshotRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 3"), nil)

	count, err := repo.DeleteByIDs(ctx, []string{"snp_a", "snp_b", "snp_c"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSnapshotRepository_DeleteByIDs_Empty(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSnapshotRepository(db)

	count, err := repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	db.AssertNotCalled(t, "Exec")
}

func TestTargetRepository_ListByOwner(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTargetRepository(db)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := newMockRows(func(dest ...any) error {
		*dest[0].(*string) = "tgt_1"
		*dest[1].(*string) = "usr_1"
		*dest[2].(*string) = "tok_a"
		*dest[3].(*string) = "android"
		*dest[4].(*time.Time) = created
		return nil
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	targets, err := repo.ListByOwner(ctx, "usr_1")
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "tok_a", targets[0].Token)
}

func TestTargetRepository_Delete_Idempotent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTargetRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	// Deleting an already-removed target is not an error.
	err := repo.Delete(ctx, "tgt_gone")
	require.NoError(t, err)
}

func TestSiteRepository_ListActive(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSiteRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := newMockRows(func(dest ...any) error {
		*dest[0].(*string) = "site_1"
		*dest[1].(*string) = "usr_1"
		*dest[2].(*string) = "North field"
		*dest[3].(*float64) = 45.1
		*dest[4].(*float64) = 5.6
		*dest[5].(*string) = "Grenoble"
		*dest[6].(*string) = "active"
		*dest[7].(*time.Time) = now
		*dest[8].(*time.Time) = now
		return nil
	})
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	sites, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, types.SiteActive, sites[0].Status)
	assert.Equal(t, 45.1, sites[0].Location.Lat)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("plain error")))
	assert.False(t, isUniqueViolation(nil))
}
