package position

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitmark-inc/geoquest-agent/schema"
)

// Options mirrors the options of a platform geolocation request
type Options struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	// MaximumAge is the oldest cached sample a request accepts
	MaximumAge time.Duration
}

type ErrorCode string

const (
	PermissionDenied    ErrorCode = "PERMISSION_DENIED"
	PositionUnavailable ErrorCode = "POSITION_UNAVAILABLE"
	Timeout             ErrorCode = "TIMEOUT"
)

// Error is a geolocation failure reported by a source
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var ErrTimeout = &Error{Code: Timeout, Message: "no position fix before timeout"}

// AsError converts any error returned by a source into a position error
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	return &Error{Code: PositionUnavailable, Message: err.Error()}
}

// Watch is a live position subscription
type Watch interface {
	// Clear releases the subscription. It is safe to call more than once.
	Clear()
}

// Source is a device geolocation source
type Source interface {
	CurrentPosition(ctx context.Context, opts Options) (schema.DeviceLocation, error)
	Watch(opts Options, onSample func(schema.DeviceLocation), onError func(*Error)) (Watch, error)
}
