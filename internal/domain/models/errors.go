package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInvalidThreshold     = errors.New("invalid threshold")
	ErrInvalidKind          = errors.New("invalid condition kind")
	ErrConditionNotFound    = errors.New("condition not found")
	ErrUpstreamFetch        = errors.New("upstream fetch failed")
	ErrUpstreamPermanent    = errors.New("upstream permanent failure")
	ErrNotificationDelivery = errors.New("notification delivery failed")
	ErrMonitoringInactive   = errors.New("monitoring is not active")
	ErrHistoryUnavailable   = errors.New("trigger history is not configured")
	ErrInvalidRange         = errors.New("invalid time range")
)

// FeedError describes a price fetch failure for one symbol.
type FeedError struct {
	Symbol    string
	Permanent bool
	Err       error
}

func (e *FeedError) Error() string {
	kind := "retryable"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s (%s): %v", e.Symbol, kind, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s)", e.Symbol, kind)
}

func (e *FeedError) Unwrap() error { return e.Err }

// Is matches the retryable or permanent sentinel depending on the error class.
func (e *FeedError) Is(target error) bool {
	if e.Permanent {
		return target == ErrUpstreamPermanent
	}
	return target == ErrUpstreamFetch
}

// UpstreamFetchFailed wraps a retryable fetch error.
func UpstreamFetchFailed(symbol string, err error) error {
	return &FeedError{Symbol: symbol, Err: err}
}

// UpstreamPermanentFailure wraps a non-retryable fetch error (unknown or delisted symbol).
func UpstreamPermanentFailure(symbol string, err error) error {
	return &FeedError{Symbol: symbol, Permanent: true, Err: err}
}

// IsPermanent reports whether err should stop polling instead of backing off.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUpstreamPermanent)
}

// NotificationDeliveryFailed wraps a sink error.
func NotificationDeliveryFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrNotificationDelivery, err)
}
