package delivery

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrTransientNetwork is returned when the connection fails or times out.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrRetryableStatus is returned for statuses the policy retries.
	ErrRetryableStatus = errors.New("retryable status")
	// ErrTerminalStatus is returned for statuses the policy does not retry.
	ErrTerminalStatus = errors.New("terminal status")
	// ErrConfigurationMissing is returned when the API key or server slug is not configured.
	ErrConfigurationMissing = errors.New("configuration missing")
)

// IsRetryable returns true if the classified err may succeed on the next attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrRetryableStatus)
}

func statusError(sentinel error, code int) error {
	return errors.Mark(errors.Errorf("server returned %d", code), sentinel)
}

func networkError(err error) error {
	return errors.Mark(errors.Wrap(err, "request failed"), ErrTransientNetwork)
}
