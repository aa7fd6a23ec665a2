package rules

import (
	"strings"
	"testing"
	"time"

	"fieldwatch/internal/types"
)

// flatWindow builds n forecast points with identical readings.
func flatWindow(n int, tempC, humidityPct, windMS, precipMM float64) []types.ForecastPoint {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	points := make([]types.ForecastPoint, n)
	for i := range points {
		points[i] = types.ForecastPoint{
			ValidAt:         base.Add(time.Duration(i+1) * 3 * time.Hour),
			TemperatureC:    tempC,
			HumidityPct:     humidityPct,
			WindSpeedMS:     windMS,
			PrecipitationMM: precipMM,
		}
	}
	return points
}

// quietSnapshot returns a snapshot that matches no rule with default
// thresholds.
func quietSnapshot() *types.Snapshot {
	return &types.Snapshot{
		SiteID:       "site_1",
		TemperatureC: 18,
		HumidityPct:  55,
		WindSpeedMS:  5,
		Forecast:     flatWindow(8, 18, 55, 5, 0),
	}
}

func findMatch(matches []types.RuleMatch, rule types.RuleType) (types.RuleMatch, bool) {
	for _, m := range matches {
		if m.Rule == rule {
			return m, true
		}
	}
	return types.RuleMatch{}, false
}

func TestEvaluate_QuietConditions_NoMatches(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	matches := ev.Evaluate(quietSnapshot())
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d: %+v", len(matches), matches)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.Forecast = flatWindow(8, -3, 55, 5, 0)

	first := ev.Evaluate(snap)
	second := ev.Evaluate(snap)
	if len(first) != len(second) {
		t.Fatalf("evaluation not deterministic: %d vs %d matches", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("match %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestFrost_ForecastMinimum_HighSeverity(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.TemperatureC = 6
	snap.Forecast = flatWindow(8, 6, 55, 5, 0)
	snap.Forecast[3].TemperatureC = -1.2

	matches := ev.Evaluate(snap)
	m, ok := findMatch(matches, types.RuleFrost)
	if !ok {
		t.Fatalf("expected frost match, got %+v", matches)
	}
	if m.Severity != types.SeverityHigh {
		t.Errorf("expected high severity for -1.2°C, got %s", m.Severity)
	}
	if m.Value != -1.2 {
		t.Errorf("expected evidence value -1.2, got %v", m.Value)
	}
	if !strings.Contains(m.Description, "-1.2") {
		t.Errorf("description should carry the observed minimum, got %q", m.Description)
	}
}

func TestFrost_SeverityBands(t *testing.T) {
	tests := []struct {
		name    string
		minTemp float64
		want    types.Severity
	}{
		{"watch band", 1.5, types.SeverityMedium},
		{"below freezing", -0.5, types.SeverityHigh},
		{"hard frost", -4, types.SeverityCritical},
	}

	ev := NewEvaluator(DefaultThresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := quietSnapshot()
			snap.Forecast[2].TemperatureC = tt.minTemp

			m, ok := findMatch(ev.Evaluate(snap), types.RuleFrost)
			if !ok {
				t.Fatalf("expected frost match at %v°C", tt.minTemp)
			}
			if m.Severity != tt.want {
				t.Errorf("expected %s severity at %v°C, got %s", tt.want, tt.minTemp, m.Severity)
			}
		})
	}
}

func TestFrost_AtWatchThreshold_NoMatch(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.Forecast[0].TemperatureC = 2 // exactly at threshold

	if _, ok := findMatch(ev.Evaluate(snap), types.RuleFrost); ok {
		t.Error("temperature exactly at the watch threshold must not match")
	}
}

func TestFrost_WindowTruncation(t *testing.T) {
	// Freezing temperatures beyond the window must be invisible.
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.Forecast = flatWindow(10, 18, 55, 5, 0)
	snap.Forecast[9].TemperatureC = -5

	if _, ok := findMatch(ev.Evaluate(snap), types.RuleFrost); ok {
		t.Error("point outside the forecast window must not trigger frost")
	}
}

func TestDrought_ModerateDryness_MediumSeverity(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.TemperatureC = 27
	snap.Forecast = flatWindow(8, 27, 35, 5, 0)

	m, ok := findMatch(ev.Evaluate(snap), types.RuleDrought)
	if !ok {
		t.Fatal("expected drought match at 35% humidity and 27°C")
	}
	if m.Severity != types.SeverityMedium {
		t.Errorf("expected medium severity at 35%% humidity, got %s", m.Severity)
	}
	if m.Value != 35 {
		t.Errorf("expected evidence value 35, got %v", m.Value)
	}
}

func TestDrought_SevereDryness_HighSeverity(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.TemperatureC = 30
	snap.Forecast = flatWindow(8, 30, 22, 5, 0)

	m, ok := findMatch(ev.Evaluate(snap), types.RuleDrought)
	if !ok {
		t.Fatal("expected drought match at 22% humidity")
	}
	if m.Severity != types.SeverityHigh {
		t.Errorf("expected high severity below the severe humidity threshold, got %s", m.Severity)
	}
}

func TestDrought_CoolTemperature_NoMatch(t *testing.T) {
	// Dry air without heat is not drought stress.
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.TemperatureC = 20
	snap.Forecast = flatWindow(8, 20, 35, 5, 0)

	if _, ok := findMatch(ev.Evaluate(snap), types.RuleDrought); ok {
		t.Error("drought must require the hot-temperature condition")
	}
}

func TestFungalDisease_MildAndHumid(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.Forecast = flatWindow(8, 20, 90, 5, 0)

	m, ok := findMatch(ev.Evaluate(snap), types.RuleFungalDisease)
	if !ok {
		t.Fatal("expected fungal disease match at 20°C and 90% humidity")
	}
	if m.Severity != types.SeverityMedium {
		t.Errorf("expected medium severity, got %s", m.Severity)
	}
}

func TestFungalDisease_OutsideTemperatureBand_NoMatch(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.Forecast = flatWindow(8, 29, 90, 5, 0) // humid but too warm

	if _, ok := findMatch(ev.Evaluate(snap), types.RuleFungalDisease); ok {
		t.Error("fungal disease requires the mild temperature band")
	}
}

func TestExcessiveRain_AccumulationBands(t *testing.T) {
	tests := []struct {
		name        string
		perPointMM  float64
		wantMatch   bool
		wantSev     types.Severity
	}{
		{"light rain", 2, false, ""},
		{"steady rain", 4, true, types.SeverityMedium},  // 32 mm over 8 points
		{"downpour", 8, true, types.SeverityHigh},       // 64 mm over 8 points
	}

	ev := NewEvaluator(DefaultThresholds())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := quietSnapshot()
			snap.Forecast = flatWindow(8, 18, 55, 5, tt.perPointMM)

			m, ok := findMatch(ev.Evaluate(snap), types.RuleExcessiveRain)
			if ok != tt.wantMatch {
				t.Fatalf("match = %v, want %v", ok, tt.wantMatch)
			}
			if ok && m.Severity != tt.wantSev {
				t.Errorf("expected %s severity, got %s", tt.wantSev, m.Severity)
			}
		})
	}
}

func TestStrongWind_PeakGust(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := quietSnapshot()
	snap.Forecast[5].WindSpeedMS = 28

	m, ok := findMatch(ev.Evaluate(snap), types.RuleStrongWind)
	if !ok {
		t.Fatal("expected strong wind match at 28 m/s")
	}
	if m.Severity != types.SeverityHigh {
		t.Errorf("expected high severity above the storm threshold, got %s", m.Severity)
	}
	if m.Value != 28 {
		t.Errorf("expected evidence value 28, got %v", m.Value)
	}
}

func TestHeatWave_CurrentReadingOnly(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())

	// Forecast heat alone does not fire the rule.
	snap := quietSnapshot()
	snap.Forecast = flatWindow(8, 39, 30, 5, 0)
	snap.TemperatureC = 30
	if _, ok := findMatch(ev.Evaluate(snap), types.RuleHeatWave); ok {
		t.Error("heat wave must only consider the current reading")
	}

	// A hot current reading does.
	snap.TemperatureC = 38
	m, ok := findMatch(ev.Evaluate(snap), types.RuleHeatWave)
	if !ok {
		t.Fatal("expected heat wave match at 38°C")
	}
	if m.Severity != types.SeverityCritical {
		t.Errorf("heat wave is always critical, got %s", m.Severity)
	}
}

func TestEvaluate_MultipleRulesSameSnapshot(t *testing.T) {
	// Hot, dry, and windy at once: drought, strong wind, and heat wave
	// should all fire on the same snapshot.
	ev := NewEvaluator(DefaultThresholds())
	snap := &types.Snapshot{
		SiteID:       "site_1",
		TemperatureC: 38,
		HumidityPct:  25,
		WindSpeedMS:  20,
		Forecast:     flatWindow(8, 36, 25, 20, 0),
	}

	matches := ev.Evaluate(snap)
	for _, rule := range []types.RuleType{types.RuleDrought, types.RuleStrongWind, types.RuleHeatWave} {
		if _, ok := findMatch(matches, rule); !ok {
			t.Errorf("expected %s to match, got %+v", rule, matches)
		}
	}
	if _, ok := findMatch(matches, types.RuleFrost); ok {
		t.Error("frost must not match a hot snapshot")
	}
}

func TestEvaluate_EmptyForecast_UsesCurrentReading(t *testing.T) {
	ev := NewEvaluator(DefaultThresholds())
	snap := &types.Snapshot{
		SiteID:       "site_1",
		TemperatureC: -3,
		HumidityPct:  60,
		WindSpeedMS:  3,
	}

	m, ok := findMatch(ev.Evaluate(snap), types.RuleFrost)
	if !ok {
		t.Fatal("expected frost match from the current reading alone")
	}
	if m.Severity != types.SeverityCritical {
		t.Errorf("expected critical severity at -3°C, got %s", m.Severity)
	}
}
