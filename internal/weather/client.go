// Package weather implements the snapshot source: an HTTP client for the
// upstream weather provider that normalizes its hourly payload into the
// engine's Snapshot type. All outbound calls go through a circuit breaker
// and a small bounded retry so a struggling provider degrades into skipped
// sites instead of hammering the upstream.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"fieldwatch/internal/types"
)

// hourlyTimeLayout is the zone-less timestamp format the provider returns.
// All provider times are requested and interpreted as UTC.
const hourlyTimeLayout = "2006-01-02T15:04"

// errRateLimited marks a 429 from the provider so the final error can carry
// the throttling code instead of the generic upstream one.
var errRateLimited = errors.New("provider rate limited")

// forecastStrideHours is the spacing between normalized forecast points.
// Hourly provider data is folded into 3-hour periods, with precipitation
// summed per period.
const forecastStrideHours = 3

// RetryPolicy configures the retry behavior for provider calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for the weather provider.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    500 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// Client fetches and normalizes snapshots from the weather provider.
type Client struct {
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	baseURL        string
	retryPolicy    RetryPolicy
	forecastPoints int
	logger         *slog.Logger
	sleepFn        func(time.Duration)
}

// ClientConfig holds the configuration for creating a Client.
type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	RetryPolicy    RetryPolicy
	ForecastPoints int // normalized forecast points per snapshot; default 8
	Logger         *slog.Logger
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithSleepFunc overrides the sleep function used between retries.
// Intended for tests to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) ClientOption {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// NewClient creates a Client with a dedicated circuit breaker. The breaker
// opens after five consecutive failures and probes again after 30 seconds,
// so a dead provider costs one failed call per site batch instead of a full
// timeout per site.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	retryPolicy := cfg.RetryPolicy
	if retryPolicy.MaxRetries == 0 && retryPolicy.MinWait == 0 {
		retryPolicy = DefaultRetryPolicy()
	}
	points := cfg.ForecastPoints
	if points <= 0 {
		points = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "weather-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		httpClient:     httpClient,
		breaker:        breaker,
		baseURL:        cfg.BaseURL,
		retryPolicy:    retryPolicy,
		forecastPoints: points,
		logger:         logger,
		sleepFn:        time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// providerResponse mirrors the provider's JSON payload.
type providerResponse struct {
	Current struct {
		Time            string  `json:"time"`
		TemperatureC    float64 `json:"temperature_2m"`
		HumidityPct     float64 `json:"relative_humidity_2m"`
		WindSpeedMS     float64 `json:"wind_speed_10m"`
		PrecipitationMM float64 `json:"precipitation"`
	} `json:"current"`
	Hourly struct {
		Time            []string  `json:"time"`
		TemperatureC    []float64 `json:"temperature_2m"`
		HumidityPct     []float64 `json:"relative_humidity_2m"`
		WindSpeedMS     []float64 `json:"wind_speed_10m"`
		PrecipitationMM []float64 `json:"precipitation"`
	} `json:"hourly"`
}

// GetSnapshot fetches current conditions and the hourly forecast for the
// site's coordinates and normalizes them into a Snapshot with a 3-hourly
// forecast window. Failures come back as AppErrors:
// ErrCodeUpstreamRateLimited for provider throttling,
// ErrCodeUpstreamWeather for everything else (unreachable, 5xx, breaker
// open, malformed payload).
func (c *Client) GetSnapshot(ctx context.Context, site types.Site) (*types.Snapshot, error) {
	reqURL, err := c.buildURL(site.Location.Lat, site.Location.Lon)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider URL", err)
	}

	resp, err := c.doWithRetry(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to read provider response", err)
	}

	var payload providerResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to decode provider response", err)
	}

	snap, err := c.normalize(site.ID, &payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "failed to normalize provider response", err)
	}
	return snap, nil
}

// buildURL constructs the forecast request for one coordinate pair.
func (c *Client) buildURL(lat, lon float64) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	base.Path = "/v1/forecast"

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation")
	q.Set("hourly", "temperature_2m,relative_humidity_2m,wind_speed_10m,precipitation")
	q.Set("wind_speed_unit", "ms")
	q.Set("timezone", "UTC")
	q.Set("forecast_days", "2")
	base.RawQuery = q.Encode()

	return base.String(), nil
}

// doWithRetry executes the GET through the circuit breaker, retrying on 429
// and 5xx with exponential backoff up to the retry policy's limit.
func (c *Client) doWithRetry(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retryPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryPolicy.MinWait << (attempt - 1)
			if wait > c.retryPolicy.MaxWait {
				wait = c.retryPolicy.MaxWait
			}
			c.sleepFn(wait)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build provider request", err)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			res, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if res.StatusCode == http.StatusTooManyRequests {
				res.Body.Close()
				return nil, fmt.Errorf("provider returned status %d: %w", res.StatusCode, errRateLimited)
			}
			if res.StatusCode >= 500 {
				res.Body.Close()
				return nil, fmt.Errorf("provider returned status %d", res.StatusCode)
			}
			return res, nil
		})
		if err == nil {
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, types.NewAppError(types.ErrCodeUpstreamWeather,
					fmt.Sprintf("provider returned unexpected status %d", resp.StatusCode), nil)
			}
			return resp, nil
		}

		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			// Breaker open: retrying immediately cannot help.
			break
		}

		c.logger.WarnContext(ctx, "provider request failed",
			"attempt", attempt+1,
			"error", err,
		)
	}

	if errors.Is(lastErr, errRateLimited) {
		return nil, types.NewAppError(types.ErrCodeUpstreamRateLimited, "weather provider rate limit exceeded", lastErr)
	}
	return nil, types.NewAppError(types.ErrCodeUpstreamWeather, "weather provider unavailable", lastErr)
}

// normalize folds the provider's hourly series into 3-hour forecast periods
// starting after the current observation. Temperature, humidity, and wind
// take the period's leading hourly value; precipitation sums the hours in
// the period, matching the engine's mm-per-period semantics.
func (c *Client) normalize(siteID string, payload *providerResponse) (*types.Snapshot, error) {
	observedAt, err := time.ParseInLocation(hourlyTimeLayout, payload.Current.Time, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parsing current observation time %q: %w", payload.Current.Time, err)
	}

	h := payload.Hourly
	n := len(h.Time)
	if len(h.TemperatureC) != n || len(h.HumidityPct) != n || len(h.WindSpeedMS) != n || len(h.PrecipitationMM) != n {
		return nil, fmt.Errorf("hourly series length mismatch: %d timestamps", n)
	}

	snap := &types.Snapshot{
		SiteID:          siteID,
		ObservedAt:      observedAt,
		TemperatureC:    payload.Current.TemperatureC,
		HumidityPct:     payload.Current.HumidityPct,
		WindSpeedMS:     payload.Current.WindSpeedMS,
		PrecipitationMM: payload.Current.PrecipitationMM,
	}

	// Index of the first hourly point strictly after the observation.
	start := -1
	for i := 0; i < n; i++ {
		t, parseErr := time.ParseInLocation(hourlyTimeLayout, h.Time[i], time.UTC)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing hourly time %q: %w", h.Time[i], parseErr)
		}
		if t.After(observedAt) {
			start = i
			break
		}
	}
	if start < 0 {
		return snap, nil
	}

	for i := start; i < n && len(snap.Forecast) < c.forecastPoints; i += forecastStrideHours {
		validAt, parseErr := time.ParseInLocation(hourlyTimeLayout, h.Time[i], time.UTC)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing hourly time %q: %w", h.Time[i], parseErr)
		}

		precip := 0.0
		for j := i; j < n && j < i+forecastStrideHours; j++ {
			precip += h.PrecipitationMM[j]
		}

		snap.Forecast = append(snap.Forecast, types.ForecastPoint{
			ValidAt:         validAt,
			TemperatureC:    h.TemperatureC[i],
			HumidityPct:     h.HumidityPct[i],
			WindSpeedMS:     h.WindSpeedMS[i],
			PrecipitationMM: precip,
		})
	}

	return snap, nil
}
