package alerts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"fieldwatch/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock returns the same instant on every call.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

// mockAlertStore is a hand-rolled AlertStore capturing calls.
type mockAlertStore struct {
	active map[string]*types.Alert // keyed by siteID+rule
	recent map[string]*types.Alert

	findActiveErr error
	findRecentErr error
	insertErr     error

	inserted      []*types.Alert
	recentCutoffs []time.Time
}

func storeKey(siteID string, rule types.RuleType) string {
	return siteID + "/" + string(rule)
}

func (m *mockAlertStore) FindActive(_ context.Context, siteID string, rule types.RuleType) (*types.Alert, error) {
	if m.findActiveErr != nil {
		return nil, m.findActiveErr
	}
	return m.active[storeKey(siteID, rule)], nil
}

func (m *mockAlertStore) FindRecentlyTriggered(_ context.Context, siteID string, rule types.RuleType, cutoff time.Time) (*types.Alert, error) {
	m.recentCutoffs = append(m.recentCutoffs, cutoff)
	if m.findRecentErr != nil {
		return nil, m.findRecentErr
	}
	recent := m.recent[storeKey(siteID, rule)]
	if recent != nil && recent.TriggeredAt.Before(cutoff) {
		return nil, nil
	}
	return recent, nil
}

func (m *mockAlertStore) Insert(_ context.Context, alert *types.Alert) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	alert.ID = "alr_test"
	alert.IsActive = true
	m.inserted = append(m.inserted, alert)
	return nil
}

func newTestManager(store *mockAlertStore, now time.Time) *Manager {
	return NewManager(ManagerConfig{
		Store:  store,
		Clock:  fixedClock{now: now},
		Logger: discardLogger(),
	})
}

func frostMatch() types.RuleMatch {
	return types.RuleMatch{
		Rule:           types.RuleFrost,
		Severity:       types.SeverityHigh,
		Value:          -1.2,
		Title:          "Frost risk",
		Description:    "Temperatures are expected to drop to -1.2°C within the next 24 hours.",
		Recommendation: "Protect sensitive crops with row covers or irrigation before nightfall.",
	}
}

func TestReconcile_NewMatch_CreatesAlert(t *testing.T) {
	store := &mockAlertStore{}
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	mgr := newTestManager(store, now)

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", []types.RuleMatch{frostMatch()}, "snp_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 alert created, got %d", len(created))
	}

	alert := created[0]
	if alert.SiteID != "site_1" || alert.OwnerID != "usr_1" {
		t.Errorf("alert site/owner mismatch: %+v", alert)
	}
	if alert.Rule != types.RuleFrost || alert.Severity != types.SeverityHigh {
		t.Errorf("alert rule/severity mismatch: %+v", alert)
	}
	if alert.SourceSnapshotID != "snp_1" {
		t.Errorf("expected source snapshot snp_1, got %q", alert.SourceSnapshotID)
	}
	if !alert.IsActive {
		t.Error("created alert must be active")
	}
}

func TestReconcile_ActiveAlertExists_SkipsCreation(t *testing.T) {
	store := &mockAlertStore{
		active: map[string]*types.Alert{
			storeKey("site_1", types.RuleFrost): {ID: "alr_existing", IsActive: true},
		},
	}
	mgr := newTestManager(store, time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC))

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", []types.RuleMatch{frostMatch()}, "snp_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("expected no alerts created while one is active, got %d", len(created))
	}
	if len(store.inserted) != 0 {
		t.Errorf("store insert must not be called, got %d inserts", len(store.inserted))
	}
}

func TestReconcile_SuppressionWindow_BlocksInactiveAlert(t *testing.T) {
	// An acknowledged (inactive) alert triggered 2 hours ago still blocks
	// re-creation within the 6-hour suppression window.
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	store := &mockAlertStore{
		recent: map[string]*types.Alert{
			storeKey("site_1", types.RuleFrost): {
				ID:          "alr_old",
				IsActive:    false,
				TriggeredAt: now.Add(-2 * time.Hour),
			},
		},
	}
	mgr := newTestManager(store, now)

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", []types.RuleMatch{frostMatch()}, "snp_3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("expected suppression to block creation, got %d alerts", len(created))
	}

	wantCutoff := now.Add(-DefaultSuppressionWindow)
	if len(store.recentCutoffs) != 1 || !store.recentCutoffs[0].Equal(wantCutoff) {
		t.Errorf("expected suppression cutoff %v, got %v", wantCutoff, store.recentCutoffs)
	}
}

func TestReconcile_SuppressionWindowElapsed_AllowsCreation(t *testing.T) {
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	store := &mockAlertStore{
		recent: map[string]*types.Alert{
			storeKey("site_1", types.RuleFrost): {
				ID:          "alr_old",
				IsActive:    false,
				TriggeredAt: now.Add(-7 * time.Hour),
			},
		},
	}
	mgr := newTestManager(store, now)

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", []types.RuleMatch{frostMatch()}, "snp_4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 {
		t.Errorf("expected creation after the suppression window passed, got %d", len(created))
	}
}

func TestReconcile_InsertConflict_TreatedAsBenign(t *testing.T) {
	store := &mockAlertStore{
		insertErr: types.NewAppError(types.ErrCodeConflictAlertActive, "duplicate active alert", nil),
	}
	mgr := newTestManager(store, time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC))

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", []types.RuleMatch{frostMatch()}, "snp_5")
	if err != nil {
		t.Fatalf("insert conflict must not surface as an error, got %v", err)
	}
	if len(created) != 0 {
		t.Errorf("conflicting insert must not count as created, got %d", len(created))
	}
}

func TestReconcile_StoreError_AbortsAndReturnsCreated(t *testing.T) {
	// First match inserts fine; the store dies before the second match's
	// suppression check. The first creation must still be reported.
	now := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	store := &mockAlertStore{}
	mgr := newTestManager(store, now)

	matches := []types.RuleMatch{
		frostMatch(),
		{Rule: types.RuleStrongWind, Severity: types.SeverityMedium, Title: "Strong wind"},
	}

	calls := 0
	failing := &failingAfterStore{inner: store, failAfter: 1, calls: &calls}
	mgr = NewManager(ManagerConfig{
		Store:  failing,
		Clock:  fixedClock{now: now},
		Logger: discardLogger(),
	})

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", matches, "snp_6")
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
	if len(created) != 1 {
		t.Errorf("expected the first created alert to be returned, got %d", len(created))
	}
}

func TestReconcile_NoMatches_NoStoreCalls(t *testing.T) {
	store := &mockAlertStore{findActiveErr: types.NewAppError(types.ErrCodeInternalDB, "must not be called", nil)}
	mgr := newTestManager(store, time.Now())

	created, err := mgr.Reconcile(context.Background(), "site_1", "usr_1", nil, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != nil {
		t.Errorf("expected nil result for no matches, got %v", created)
	}
}

// failingAfterStore delegates to an inner store until failAfter successful
// suppression checks have happened, then errors.
type failingAfterStore struct {
	inner     AlertStore
	failAfter int
	calls     *int
}

func (f *failingAfterStore) FindActive(ctx context.Context, siteID string, rule types.RuleType) (*types.Alert, error) {
	return f.inner.FindActive(ctx, siteID, rule)
}

func (f *failingAfterStore) FindRecentlyTriggered(ctx context.Context, siteID string, rule types.RuleType, cutoff time.Time) (*types.Alert, error) {
	if *f.calls >= f.failAfter {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "connection lost", nil)
	}
	*f.calls++
	return f.inner.FindRecentlyTriggered(ctx, siteID, rule, cutoff)
}

func (f *failingAfterStore) Insert(ctx context.Context, alert *types.Alert) error {
	return f.inner.Insert(ctx, alert)
}
