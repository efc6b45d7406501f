package adapter

import (
	"context"
	"errors"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

// classify maps telebot errors onto the transport error taxonomy so that
// callers never have to know about telebot.
//
//   - flood control        -> RateLimitedError carrying the demanded wait
//   - any other 4xx        -> PermanentError (blocked, kicked, chat gone,
//     payload rejected); retrying cannot help this recipient
//   - 5xx / network / rest -> TransientError
//
// Context cancellation passes through untouched so shutdown is not
// miscounted as a delivery failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var fe tele.FloodError
	if errors.As(err, &fe) {
		wait := time.Duration(fe.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		return &kit.RateLimitedError{RetryAfter: wait, Err: err}
	}

	var te *tele.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == http.StatusTooManyRequests:
			return &kit.RateLimitedError{RetryAfter: time.Second, Err: err}
		case te.Code >= 500:
			return &kit.TransientError{Reason: "telegram server error", Err: err}
		default:
			return &kit.PermanentError{Reason: te.Description, Err: err}
		}
	}

	return &kit.TransientError{Reason: "telegram api call failed", Err: err}
}
