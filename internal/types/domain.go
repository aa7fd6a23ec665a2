package types

import "time"

// Location represents a geographic coordinate with an optional display name.
type Location struct {
	Lat         float64 `json:"lat" db:"location_lat"`
	Lon         float64 `json:"lon" db:"location_lon"`
	DisplayName string  `json:"display_name,omitempty" db:"location_display_name"`
}

// Site is a monitored farm location. Sites are owned and mutated by the
// surrounding account/CRUD layer; the alert engine only reads them.
type Site struct {
	ID       string     `json:"id" db:"id"`
	OwnerID  string     `json:"owner_id" db:"owner_id"`
	Name     string     `json:"name" db:"name"`
	Location Location   `json:"location" db:"-"`
	Status   SiteStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ForecastPoint is a single future time step within a snapshot's forecast
// window. Fields mirror the current-conditions fields on Snapshot.
type ForecastPoint struct {
	ValidAt         time.Time `json:"valid_at"`
	TemperatureC    float64   `json:"temperature_c"`
	HumidityPct     float64   `json:"humidity_percent"`
	WindSpeedMS     float64   `json:"wind_speed_ms"`
	PrecipitationMM float64   `json:"precipitation_mm"`
}

// Snapshot is a normalized current weather reading for one site plus a
// bounded ordered forecast window covering roughly the next 24 hours.
// Snapshots are immutable once stored; the cleanup sweep archives and prunes
// them after the retention period.
type Snapshot struct {
	ID              string          `json:"id" db:"id"`
	SiteID          string          `json:"site_id" db:"site_id"`
	ObservedAt      time.Time       `json:"observed_at" db:"observed_at"`
	TemperatureC    float64         `json:"temperature_c" db:"temperature_c"`
	HumidityPct     float64         `json:"humidity_percent" db:"humidity_percent"`
	WindSpeedMS     float64         `json:"wind_speed_ms" db:"wind_speed_ms"`
	PrecipitationMM float64         `json:"precipitation_mm" db:"precipitation_mm"`
	Forecast        []ForecastPoint `json:"forecast" db:"forecast"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// RuleMatch is the outcome of one rule predicate matching a snapshot.
// Value holds the computed numeric evidence (for frost, the minimum
// temperature across the window; for excessive rain, the precipitation sum)
// so that Description can show the concrete reading that tripped the rule.
type RuleMatch struct {
	Rule           RuleType `json:"rule"`
	Severity       Severity `json:"severity"`
	Value          float64  `json:"value"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// Alert is a stateful record of one risk notification for a site.
//
// Invariant: at most one active alert exists per (site_id, rule) pair. The
// database enforces this with a partial unique index; AlertRepository.Insert
// surfaces a violation as ErrCodeConflictAlertActive.
//
// Alerts are never deleted by the engine. They leave the active state either
// through user acknowledgement or through the retention sweep
// (DeactivateOlderThan). A rule ceasing to match does NOT deactivate an
// existing alert: creation requires evidence, continuation does not.
type Alert struct {
	ID               string     `json:"id" db:"id"`
	SiteID           string     `json:"site_id" db:"site_id"`
	OwnerID          string     `json:"owner_id" db:"owner_id"`
	Rule             RuleType   `json:"rule" db:"rule_type"`
	Severity         Severity   `json:"severity" db:"severity"`
	Title            string     `json:"title" db:"title"`
	Description      string     `json:"description" db:"description"`
	Recommendation   string     `json:"recommendation" db:"recommendation"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	TriggeredAt      time.Time  `json:"triggered_at" db:"triggered_at"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	SourceSnapshotID string     `json:"source_snapshot_id,omitempty" db:"source_snapshot_id"`
}

// DeliveryTarget is one registered push destination (a device token or
// similar) belonging to a site owner. Targets that the push provider reports
// as permanently gone are pruned by the dispatcher.
type DeliveryTarget struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Token     string    `json:"-" db:"token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DispatchResult summarizes one dispatcher invocation for a newly created
// alert: how many targets were attempted, delivered, pruned, or failed
// transiently. Purely informational; dispatch outcomes never affect the alert.
type DispatchResult struct {
	Targets   int `json:"targets"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
	Failed    int `json:"failed"`
}

// CycleStats captures the outcome of one alert-generation cycle for logging,
// metrics, and the ops status endpoint.
type CycleStats struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Sites         int           `json:"sites"`
	Failed        int           `json:"failed"`
	AlertsCreated int           `json:"alerts_created"`
	Aborted       bool          `json:"aborted"`
}
