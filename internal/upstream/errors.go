package upstream

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by both catalog clients. Callers classify with
// errors.Is; StatusError carries the upstream's own response when one
// exists.
var (
	// ErrUnavailable: network failure, timeout or 5xx after the retry
	// budget is exhausted.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrRejected: a non-retriable 4xx from the upstream.
	ErrRejected = errors.New("upstream rejected request")
	// ErrRateLimited: 429 retries exhausted. Transient 429s are retried
	// internally and never surface.
	ErrRateLimited = errors.New("upstream rate limit exhausted")
	// ErrMalformedPayload: the response decoded into an unexpected shape.
	ErrMalformedPayload = errors.New("malformed upstream payload")
)

// Degraded reports whether err is an availability failure, the class
// where serving stale cached data is acceptable. Rejections and
// malformed payloads are real answers and are never masked.
func Degraded(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}

// StatusError preserves the upstream status code and a trimmed body for
// diagnostics.
type StatusError struct {
	Target string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Target, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Target, e.Code, e.Body)
}
