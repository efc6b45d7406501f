package transport

import (
	"errors"
	"fmt"
	"time"
)

// Delivery errors fall into three classes. Adapters classify every outbound
// failure into one of these before it crosses the adapter boundary, so
// callers can branch with errors.As and never inspect platform errors.

// RateLimitedError reports that the platform asked us to slow down.
// RetryAfter is the wait the platform demanded.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// TransientError reports a failure that is likely to go away on its own
// (timeouts, connection resets, 5xx).
type TransientError struct {
	Reason string
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient: %s: %v", e.Reason, e.Err)
	}
	return "transient: " + e.Reason
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError reports a failure that retrying cannot fix for this
// recipient: the bot was blocked or kicked, the chat is gone, the payload
// is unacceptable.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent: %s: %v", e.Reason, e.Err)
	}
	return "permanent: " + e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }

// AsRateLimited extracts the demanded wait if err carries one.
func AsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
