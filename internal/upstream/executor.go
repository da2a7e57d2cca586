package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	// 429s do not consume the regular attempt budget, but they are still
	// bounded so a permanently throttling upstream cannot pin a caller
	// forever. The context deadline is the real backstop.
	maxRateRetries = 6

	maxErrorBody = 4096
)

// Request describes one outbound call. Body is kept as bytes so the
// request can be rebuilt for every retry attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Executor wraps one upstream target with rate limiting, timeout and
// exponential-backoff retry. Policy per response class:
//
//	429          -> always retry, backoff 2^n, own generous cap
//	5xx          -> retry with backoff up to MaxAttempts, then ErrUnavailable
//	network/timeout -> same as 5xx
//	other 4xx    -> ErrRejected immediately, no retry
type Executor struct {
	Target      string
	HTTP        *http.Client
	Limiter     *Limiter
	MaxAttempts int
	// BackoffBase scales the 2^n delay; tests shrink it.
	BackoffBase time.Duration
	Logger      *slog.Logger
}

func NewExecutor(target string, limiter *Limiter, logger *slog.Logger) *Executor {
	return &Executor{
		Target:  target,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Limiter: limiter,
		Logger:  logger,
	}
}

// DoJSON performs the request and decodes a JSON response body into out
// (skipped when out is nil).
func (e *Executor) DoJSON(ctx context.Context, req Request, out any) error {
	body, err := e.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, e.Target, err)
	}
	return nil
}

func (e *Executor) do(ctx context.Context, req Request) ([]byte, error) {
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	base := e.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}

	attempts := 0    // failed attempts in the 5xx/network class
	rateRetries := 0 // failed attempts in the 429 class
	retries := 0     // total, drives the backoff exponent

	var lastErr error
	for {
		if err := e.Limiter.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.Target, err)
		}

		body, status, err := e.attempt(ctx, req)
		switch {
		case err != nil:
			// network / timeout
			attempts++
			lastErr = err
			if attempts >= maxAttempts {
				return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrUnavailable, e.Target, attempts, err)
			}
		case status == http.StatusTooManyRequests:
			rateRetries++
			lastErr = &StatusError{Target: e.Target, Code: status, Body: trimBody(body)}
			if rateRetries > maxRateRetries {
				return nil, fmt.Errorf("%w: %s: %w", ErrRateLimited, e.Target, lastErr)
			}
		case status >= 500:
			attempts++
			lastErr = &StatusError{Target: e.Target, Code: status, Body: trimBody(body)}
			if attempts >= maxAttempts {
				return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, e.Target, attempts, lastErr)
			}
		case status >= 400:
			return nil, fmt.Errorf("%w: %w", ErrRejected, &StatusError{Target: e.Target, Code: status, Body: trimBody(body)})
		default:
			return body, nil
		}

		delay := base << retries
		retries++
		if e.Logger != nil {
			e.Logger.Warn("upstream retry",
				slog.String("target", e.Target),
				slog.Int("status", status),
				slog.Duration("backoff", delay),
				slog.String("error", lastErr.Error()),
			)
		}
		if err := SleepWithContext(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, e.Target, lastErr)
		}
	}
}

func (e *Executor) attempt(ctx context.Context, req Request) ([]byte, int, error) {
	var rd io.Reader
	if len(req.Body) > 0 {
		rd = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, rd)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := e.HTTP.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

func trimBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
