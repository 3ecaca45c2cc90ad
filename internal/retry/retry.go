// Package retry retries transient failures of external calls.
//
// The wait before retry n is BaseBackoff doubled n times, capped at
// MaxBackoff, plus up to MaxJitter of random jitter. A Retry-After hint from
// the server lengthens the wait, still within MaxBackoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config configures retry behavior.
type Config struct {
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retries.
	MaxRetries int `yaml:"max_retries"`
	// BaseBackoff is the wait before the first retry.
	BaseBackoff time.Duration `yaml:"base_backoff"`
	// MaxBackoff caps every wait. Zero means no cap.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// MaxJitter bounds the random time added to each wait.
	MaxJitter time.Duration `yaml:"max_jitter"`
}

// Validate rejects negative settings.
func (c Config) Validate() error {
	var errs []error
	for name, v := range map[string]int64{
		"max retries":  int64(c.MaxRetries),
		"base backoff": int64(c.BaseBackoff),
		"max backoff":  int64(c.MaxBackoff),
		"max jitter":   int64(c.MaxJitter),
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s cannot be negative", name))
		}
	}
	return errors.Join(errs...)
}

// DefaultConfig suits rate-limited model APIs, which often need seconds to
// recover.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// Backoff returns the wait before retry n (0-based), without jitter. It
// saturates instead of overflowing for large n.
func (c Config) Backoff(n int) time.Duration {
	d := c.BaseBackoff
	for range n {
		if d == 0 || (c.MaxBackoff > 0 && d >= c.MaxBackoff) {
			break
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	return c.clamp(d)
}

func (c Config) clamp(d time.Duration) time.Duration {
	if c.MaxBackoff > 0 {
		return min(d, c.MaxBackoff)
	}
	return d
}

func (c Config) wait(n int, err error) time.Duration {
	d := c.Backoff(n)
	if hint, ok := RetryAfter(err); ok && hint > d {
		d = c.clamp(hint)
	}
	if c.MaxJitter > 0 && d < math.MaxInt64-c.MaxJitter {
		d += rand.N(c.MaxJitter)
	}
	return d
}

// Do calls fn until it succeeds, fails with an error retryable rejects,
// ctx ends, or MaxRetries retries have been made.
func Do[T any](ctx context.Context, cfg Config, operation string, retryable func(error) bool, fn func() (T, error)) (T, error) {
	log := clog.FromContext(ctx).With("operation", operation)

	for attempt := 0; ; attempt++ {
		result, err := fn()
		switch {
		case err == nil:
			return result, nil
		case !retryable(err):
			return result, err
		case attempt >= cfg.MaxRetries:
			if attempt == 0 {
				return result, err
			}
			return result, fmt.Errorf("%s failed after %d retries: %w", operation, attempt, err)
		}

		wait := cfg.wait(attempt, err)
		log.With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", wait).
			With("error", err.Error()).
			Warn("Transient failure, retrying")

		if err := sleep(ctx, wait); err != nil {
			return result, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusError is an unsuccessful HTTP response.
type StatusError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent.
	RetryAfter time.Duration
}

// NewStatusError captures the status, a short body snippet and any
// Retry-After header of resp. It does not close the body.
func NewStatusError(resp *http.Response) *StatusError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// RetryAfter returns the Retry-After hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter, true
	}
	return 0, false
}

// RetryableStatus reports whether an HTTP status signals a transient
// condition: rate limiting, overload or a gateway timeout.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return true
	}
	return false
}

// IsRetryableHTTP classifies errors from plain HTTP clients: retryable
// StatusErrors and transport timeouts are retried.
func IsRetryableHTTP(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return RetryableStatus(se.StatusCode)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
