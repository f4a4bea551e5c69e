package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Policy is the single retry/backoff policy used across the indexer: chain
// log fetches, contract reads and external HTTP calls all share this shape.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Retryable classifies errors. A nil classifier retries everything.
	Retryable func(error) bool
}

var Default = Policy{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// Do runs op with exponential backoff until it succeeds, the policy is
// exhausted, a non-retryable error occurs, or ctx is cancelled.
func Do(ctx context.Context, p Policy, op func() error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = Default.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = Default.BaseDelay
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if IsNonRetryable(err) {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("all %d attempts failed, last error: %w", p.MaxAttempts, lastErr)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// DoHTTP executes an HTTP request with the policy, retrying 5xx responses
// and transport errors. buildReq is called on each attempt to produce a
// fresh request (request bodies are consumed per attempt).
func DoHTTP(ctx context.Context, client *http.Client, p Policy, buildReq func() (*http.Request, error)) (*http.Response, error) {
	return Value(ctx, p, func() (*http.Response, error) {
		req, err := buildReq()
		if err != nil {
			return nil, nonRetryable{fmt.Errorf("build request: %w", err)}
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		}
		return resp, nil
	})
}

type nonRetryable struct{ error }

func (n nonRetryable) Unwrap() error { return n.error }

// IsNonRetryable reports whether err was marked as not worth retrying.
func IsNonRetryable(err error) bool {
	var nr nonRetryable
	return errors.As(err, &nr)
}
