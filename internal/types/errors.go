package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

const (
	// Upstream weather provider failures. Both are transient from the
	// engine's perspective: the site is skipped and retried next cycle.
	ErrCodeUpstreamWeather     ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Store-level duplicate active alert for a (site, rule) pair. Benign:
	// the lifecycle manager treats it as "already active".
	ErrCodeConflictAlertActive ErrorCode = "conflict_alert_active"

	// Push delivery target permanently invalid. The dispatcher prunes the
	// target and continues with the owner's remaining targets.
	ErrCodeTargetGone ErrorCode = "target_gone"

	// Push provider transient transport failure. Logged and dropped;
	// no retry within the cycle.
	ErrCodeUpstreamPush ErrorCode = "upstream_push_unavailable"

	// Database failures. A store outage aborts the current cycle (no
	// further writes are possible) but never crashes the process.
	ErrCodeInternalDB ErrorCode = "internal_database_error"

	ErrCodeNotFoundAlert  ErrorCode = "not_found_alert"
	ErrCodeNotFoundSite   ErrorCode = "not_found_site"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// AppError is the standard application error type. Domain errors are
// expressed as AppError so callers can branch on Code via HasCode without
// string matching, while the underlying cause stays reachable through Unwrap.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// HasCode reports whether err (or anything it wraps) is an AppError with the
// given code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsStoreUnavailable reports whether err indicates the alert store itself is
// down, which escalates to aborting the current cycle.
func IsStoreUnavailable(err error) bool {
	return HasCode(err, ErrCodeInternalDB)
}
