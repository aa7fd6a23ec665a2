// Package notify delivers created alerts to the owner's registered devices
// through the push provider. Delivery is best effort per target: a down
// provider or a stale token never fails the cycle that created the alert.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"fieldwatch/internal/types"
)

// PushClient sends alert notifications to a single device token via the
// push provider's HTTP API.
type PushClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// PushClientConfig holds the configuration for creating a PushClient.
type PushClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	APIKey     string
	Logger     *slog.Logger
}

// NewPushClient creates a PushClient with its own circuit breaker so push
// provider outages are isolated from the weather provider's breaker.
func NewPushClient(cfg PushClientConfig) *PushClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "push-provider",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &PushClient{
		httpClient: httpClient,
		breaker:    breaker,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// pushRequest is the provider's message payload.
type pushRequest struct {
	Token string         `json:"token"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Data  map[string]any `json:"data,omitempty"`
}

// Send pushes one alert notification to one device token.
//
// A 404 or 410 from the provider means the token is permanently invalid and
// surfaces as ErrCodeTargetGone so the dispatcher can prune the target.
// Everything else (network errors, 5xx, breaker open) surfaces as
// ErrCodeUpstreamPush and is treated as transient.
func (c *PushClient) Send(ctx context.Context, target types.DeliveryTarget, alert *types.Alert) error {
	payload := pushRequest{
		Token: target.Token,
		Title: alert.Title,
		Body:  alert.Description,
		Data: map[string]any{
			"alert_id": alert.ID,
			"site_id":  alert.SiteID,
			"rule":     string(alert.Rule),
			"severity": string(alert.Severity),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode push payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build push request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		res, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if res.StatusCode >= 500 {
			res.Body.Close()
			return nil, fmt.Errorf("push provider returned status %d", res.StatusCode)
		}
		return res, nil
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamPush, "push provider unavailable", err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return types.NewAppError(types.ErrCodeTargetGone,
			fmt.Sprintf("push provider rejected token with status %d", resp.StatusCode), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamPush,
			fmt.Sprintf("push provider returned unexpected status %d", resp.StatusCode), nil)
	}
}
