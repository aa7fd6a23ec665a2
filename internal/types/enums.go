package types

// RuleType identifies one of the fixed agronomic risk rules.
type RuleType string

const (
	RuleFrost         RuleType = "frost"
	RuleDrought       RuleType = "drought"
	RuleFungalDisease RuleType = "fungal_disease"
	RuleExcessiveRain RuleType = "excessive_rain"
	RuleStrongWind    RuleType = "strong_wind"
	RuleHeatWave      RuleType = "heat_wave"
)

// AllRuleTypes lists every rule in evaluation order. The order is stable so
// that alerts created from a single snapshot are deterministic.
var AllRuleTypes = []RuleType{
	RuleFrost,
	RuleDrought,
	RuleFungalDisease,
	RuleExcessiveRain,
	RuleStrongWind,
	RuleHeatWave,
}

// Valid reports whether r is one of the known rule types.
func (r RuleType) Valid() bool {
	switch r {
	case RuleFrost, RuleDrought, RuleFungalDisease, RuleExcessiveRain, RuleStrongWind, RuleHeatWave:
		return true
	}
	return false
}

// Severity is the urgency of an alert.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a comparable ordering (medium < high < critical).
// Unknown severities rank below medium.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// SiteStatus is the lifecycle state of a site from the directory's view.
// Only active sites are evaluated.
type SiteStatus string

const (
	SiteActive SiteStatus = "active"
	SitePaused SiteStatus = "paused"
)
