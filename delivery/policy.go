package delivery

import (
	"net/http"
	"slices"
	"time"
)

// Fallback log tags
const (
	ClientFallbackTag     = "PATCHWORKMCP_UNSENT_FEEDBACK"
	MiddlewareFallbackTag = "UNSENT_FEEDBACK"
)

// Policy controls the attempts of a single delivery.
type Policy struct {
	// Path is the metrics tag of the delivery path
	Path string
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
	// InitialBackoff is the wait after the first failed attempt
	InitialBackoff time.Duration
	// Multiplier grows the wait after each failed attempt
	Multiplier float64
	// IsSuccess returns true if the status completes the delivery
	IsSuccess func(status int) bool
	// IsRetryable returns true if the status may succeed on retry,
	// transport errors are always retried
	IsRetryable func(status int) bool
	// FallbackTag is logged with every payload that was not delivered
	FallbackTag string
}

var retryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// ClientPolicy is used by the feedback client:
// only 201 is success, 429 and 5xx gateway errors are retried.
func ClientPolicy() Policy {
	return Policy{
		Path:           "client",
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		Multiplier:     2,
		IsSuccess: func(status int) bool {
			return status == http.StatusCreated
		},
		IsRetryable: func(status int) bool {
			return slices.Contains(retryableStatuses, status)
		},
		FallbackTag: ClientFallbackTag,
	}
}

// MiddlewarePolicy is used by the middleware:
// any 2xx is success, every failure is retried.
func MiddlewarePolicy() Policy {
	return Policy{
		Path:           "middleware",
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		Multiplier:     2,
		IsSuccess:      Is2xx,
		IsRetryable: func(int) bool {
			return true
		},
		FallbackTag: MiddlewareFallbackTag,
	}
}

// Is2xx returns true for any 2xx status.
func Is2xx(status int) bool {
	return status >= 200 && status < 300
}

// Backoff returns the wait after the failed attempt, starting at 1.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mul := p.Multiplier
	if mul < 1 {
		mul = 1
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= mul
	}
	return time.Duration(d)
}

func (p Policy) normalize() Policy {
	d := ClientPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.IsSuccess == nil {
		p.IsSuccess = Is2xx
	}
	if p.IsRetryable == nil {
		p.IsRetryable = d.IsRetryable
	}
	if p.FallbackTag == "" {
		p.FallbackTag = d.FallbackTag
	}
	if p.Path == "" {
		p.Path = "custom"
	}
	return p
}
