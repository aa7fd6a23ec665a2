// Package rules implements the agronomic risk rule evaluator. Evaluation is a
// pure function over one site's weather snapshot and its near-term forecast
// window: no I/O, no state, deterministic for identical input. The rule set
// is fixed and small; rules are independent and several may match the same
// snapshot.
package rules

import (
	"fmt"

	"fieldwatch/internal/types"
)

// Evaluator checks the fixed rule set against snapshots using injected
// thresholds.
type Evaluator struct {
	t Thresholds
}

// NewEvaluator creates an Evaluator. A zero ForecastWindow falls back to the
// default window size.
func NewEvaluator(t Thresholds) *Evaluator {
	if t.ForecastWindow <= 0 {
		t.ForecastWindow = DefaultThresholds().ForecastWindow
	}
	return &Evaluator{t: t}
}

// Evaluate runs every rule against the snapshot merged with its forecast
// window and returns the matches in stable rule order. A snapshot with no
// forecast points is still evaluated; window aggregates then degrade to the
// current reading.
func (e *Evaluator) Evaluate(snap *types.Snapshot) []types.RuleMatch {
	window := snap.Forecast
	if len(window) > e.t.ForecastWindow {
		window = window[:e.t.ForecastWindow]
	}

	var matches []types.RuleMatch

	if m, ok := e.frost(snap, window); ok {
		matches = append(matches, m)
	}
	if m, ok := e.drought(snap, window); ok {
		matches = append(matches, m)
	}
	if m, ok := e.fungalDisease(snap, window); ok {
		matches = append(matches, m)
	}
	if m, ok := e.excessiveRain(window); ok {
		matches = append(matches, m)
	}
	if m, ok := e.strongWind(snap, window); ok {
		matches = append(matches, m)
	}
	if m, ok := e.heatWave(snap); ok {
		matches = append(matches, m)
	}

	return matches
}

// frost fires when the minimum temperature across current + forecast drops
// below the watch threshold.
func (e *Evaluator) frost(snap *types.Snapshot, window []types.ForecastPoint) (types.RuleMatch, bool) {
	minTemp := snap.TemperatureC
	for _, p := range window {
		if p.TemperatureC < minTemp {
			minTemp = p.TemperatureC
		}
	}
	if minTemp >= e.t.FrostWatchC {
		return types.RuleMatch{}, false
	}

	severity := types.SeverityMedium
	switch {
	case minTemp < e.t.FrostCriticalC:
		severity = types.SeverityCritical
	case minTemp < e.t.FrostHighC:
		severity = types.SeverityHigh
	}

	return types.RuleMatch{
		Rule:           types.RuleFrost,
		Severity:       severity,
		Value:          minTemp,
		Title:          "Frost risk",
		Description:    fmt.Sprintf("Temperatures are expected to drop to %.1f°C within the next 24 hours.", minTemp),
		Recommendation: "Protect sensitive crops with row covers or irrigation before nightfall.",
	}, true
}

// drought fires on low average forecast humidity combined with a hot current
// reading. Evidence is the average humidity.
func (e *Evaluator) drought(snap *types.Snapshot, window []types.ForecastPoint) (types.RuleMatch, bool) {
	avgHumidity := snap.HumidityPct
	if len(window) > 0 {
		sum := 0.0
		for _, p := range window {
			sum += p.HumidityPct
		}
		avgHumidity = sum / float64(len(window))
	}

	if avgHumidity >= e.t.DroughtHumidityPct || snap.TemperatureC <= e.t.DroughtMinTempC {
		return types.RuleMatch{}, false
	}

	severity := types.SeverityMedium
	if avgHumidity < e.t.DroughtSevereHumidityPct {
		severity = types.SeverityHigh
	}

	return types.RuleMatch{
		Rule:           types.RuleDrought,
		Severity:       severity,
		Value:          avgHumidity,
		Title:          "Drought stress",
		Description:    fmt.Sprintf("Forecast humidity averages %.1f%% with a current temperature of %.1f°C.", avgHumidity, snap.TemperatureC),
		Recommendation: "Increase irrigation frequency and monitor soil moisture closely.",
	}, true
}

// fungalDisease fires when the forecast holds mild temperatures and sustained
// high humidity, the conditions most fungal pathogens need.
func (e *Evaluator) fungalDisease(snap *types.Snapshot, window []types.ForecastPoint) (types.RuleMatch, bool) {
	avgTemp := snap.TemperatureC
	avgHumidity := snap.HumidityPct
	if len(window) > 0 {
		tempSum, humSum := 0.0, 0.0
		for _, p := range window {
			tempSum += p.TemperatureC
			humSum += p.HumidityPct
		}
		avgTemp = tempSum / float64(len(window))
		avgHumidity = humSum / float64(len(window))
	}

	if avgTemp < e.t.FungalTempMinC || avgTemp > e.t.FungalTempMaxC || avgHumidity <= e.t.FungalHumidityPct {
		return types.RuleMatch{}, false
	}

	return types.RuleMatch{
		Rule:           types.RuleFungalDisease,
		Severity:       types.SeverityMedium,
		Value:          avgHumidity,
		Title:          "Fungal disease risk",
		Description:    fmt.Sprintf("Humidity averaging %.1f%% at %.1f°C favors fungal development over the next 24 hours.", avgHumidity, avgTemp),
		Recommendation: "Inspect foliage for early symptoms and consider a preventive fungicide application.",
	}, true
}

// excessiveRain fires on accumulated forecast precipitation over the window.
func (e *Evaluator) excessiveRain(window []types.ForecastPoint) (types.RuleMatch, bool) {
	sum := 0.0
	for _, p := range window {
		sum += p.PrecipitationMM
	}
	if sum <= e.t.RainSumMM {
		return types.RuleMatch{}, false
	}

	severity := types.SeverityMedium
	if sum > e.t.RainHighMM {
		severity = types.SeverityHigh
	}

	return types.RuleMatch{
		Rule:           types.RuleExcessiveRain,
		Severity:       severity,
		Value:          sum,
		Title:          "Excessive rain",
		Description:    fmt.Sprintf("%.1f mm of precipitation is forecast within the next 24 hours.", sum),
		Recommendation: "Check field drainage and postpone fertilizer or pesticide applications.",
	}, true
}

// strongWind fires on the maximum wind speed across current + forecast.
func (e *Evaluator) strongWind(snap *types.Snapshot, window []types.ForecastPoint) (types.RuleMatch, bool) {
	maxWind := snap.WindSpeedMS
	for _, p := range window {
		if p.WindSpeedMS > maxWind {
			maxWind = p.WindSpeedMS
		}
	}
	if maxWind <= e.t.WindSpeedMS {
		return types.RuleMatch{}, false
	}

	severity := types.SeverityMedium
	if maxWind > e.t.WindHighMS {
		severity = types.SeverityHigh
	}

	return types.RuleMatch{
		Rule:           types.RuleStrongWind,
		Severity:       severity,
		Value:          maxWind,
		Title:          "Strong wind",
		Description:    fmt.Sprintf("Wind speeds up to %.1f m/s are expected within the next 24 hours.", maxWind),
		Recommendation: "Secure greenhouse covers, young trees, and loose equipment.",
	}, true
}

// heatWave is a single-point check on the current temperature; no averaging.
func (e *Evaluator) heatWave(snap *types.Snapshot) (types.RuleMatch, bool) {
	if snap.TemperatureC <= e.t.HeatWaveTempC {
		return types.RuleMatch{}, false
	}

	return types.RuleMatch{
		Rule:           types.RuleHeatWave,
		Severity:       types.SeverityCritical,
		Value:          snap.TemperatureC,
		Title:          "Heat wave",
		Description:    fmt.Sprintf("The current temperature of %.1f°C exceeds the heat wave threshold.", snap.TemperatureC),
		Recommendation: "Irrigate during the coolest hours and provide shade for vulnerable crops and livestock.",
	}, true
}
