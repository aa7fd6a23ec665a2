package rules

// Thresholds holds the numeric breakpoints for every rule. They are injected
// from configuration rather than hard-coded in the predicates so the
// evaluator stays unit-testable and operator-tunable.
type Thresholds struct {
	// Frost: triggered when the minimum temperature across the current
	// reading and the forecast window falls below WatchC. Severity escalates
	// at HighC and CriticalC.
	FrostWatchC    float64 `envconfig:"RULE_FROST_WATCH_C" default:"2"`
	FrostHighC     float64 `envconfig:"RULE_FROST_HIGH_C" default:"0"`
	FrostCriticalC float64 `envconfig:"RULE_FROST_CRITICAL_C" default:"-2"`

	// Drought: average forecast humidity below HumidityPct while the current
	// temperature exceeds MinTempC. Severity high below SevereHumidityPct.
	DroughtHumidityPct       float64 `envconfig:"RULE_DROUGHT_HUMIDITY_PCT" default:"40"`
	DroughtSevereHumidityPct float64 `envconfig:"RULE_DROUGHT_SEVERE_HUMIDITY_PCT" default:"30"`
	DroughtMinTempC          float64 `envconfig:"RULE_DROUGHT_MIN_TEMP_C" default:"25"`

	// Fungal disease: average forecast temperature within [TempMinC, TempMaxC]
	// and average forecast humidity above HumidityPct.
	FungalTempMinC    float64 `envconfig:"RULE_FUNGAL_TEMP_MIN_C" default:"15"`
	FungalTempMaxC    float64 `envconfig:"RULE_FUNGAL_TEMP_MAX_C" default:"25"`
	FungalHumidityPct float64 `envconfig:"RULE_FUNGAL_HUMIDITY_PCT" default:"85"`

	// Excessive rain: precipitation summed over the forecast window.
	RainSumMM  float64 `envconfig:"RULE_RAIN_SUM_MM" default:"20"`
	RainHighMM float64 `envconfig:"RULE_RAIN_HIGH_MM" default:"50"`

	// Strong wind: maximum wind speed across current + forecast window.
	WindSpeedMS float64 `envconfig:"RULE_WIND_SPEED_MS" default:"15"`
	WindHighMS  float64 `envconfig:"RULE_WIND_HIGH_MS" default:"25"`

	// Heat wave: current temperature only, no averaging.
	HeatWaveTempC float64 `envconfig:"RULE_HEAT_WAVE_TEMP_C" default:"35"`

	// ForecastWindow is the number of leading forecast points considered,
	// roughly the next 24 hours at 3-hourly resolution.
	ForecastWindow int `envconfig:"RULE_FORECAST_WINDOW" default:"8"`
}

// DefaultThresholds returns the standard breakpoints.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FrostWatchC:              2,
		FrostHighC:               0,
		FrostCriticalC:           -2,
		DroughtHumidityPct:       40,
		DroughtSevereHumidityPct: 30,
		DroughtMinTempC:          25,
		FungalTempMinC:           15,
		FungalTempMaxC:           25,
		FungalHumidityPct:        85,
		RainSumMM:                20,
		RainHighMM:               50,
		WindSpeedMS:              15,
		WindHighMS:               25,
		HeatWaveTempC:            35,
		ForecastWindow:           8,
	}
}
