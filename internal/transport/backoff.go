// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package transport

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Rate-limit retry configuration.
const (
	// BackoffBase is the delay before the first retry; it doubles per attempt.
	BackoffBase = time.Second

	// MaxRetries is the number of automatic retries after the initial
	// attempt. Once exhausted the rate-limited error surfaces to the caller.
	MaxRetries = 3

	// JitterMax is the upper bound of the random jitter added to each delay.
	JitterMax = 500 * time.Millisecond
)

// RetryDecision is the outcome of consulting the backoff policy after a
// throttled attempt.
type RetryDecision struct {
	// Retry is false once the attempt cap is reached.
	Retry bool

	// Delay is the time to wait before re-issuing the request.
	Delay time.Duration
}

// NextAttempt decides whether the given attempt may be retried and how long
// to wait. attempt is 1-based and counts completed network attempts.
// retryAfter is the server's Retry-After hint (zero when absent); it
// lower-bounds the computed delay, never shortens it.
func NextAttempt(attempt int, retryAfter time.Duration) RetryDecision {
	d := nextAttempt(attempt, retryAfter)
	if d.Retry {
		d.Delay += time.Duration(rand.Int64N(int64(JitterMax))) //nolint:gosec // jitter needs no crypto entropy
	}
	return d
}

// nextAttempt is the deterministic core of the policy, jitter excluded.
func nextAttempt(attempt int, retryAfter time.Duration) RetryDecision {
	if attempt > MaxRetries {
		return RetryDecision{}
	}

	delay := BackoffBase << (attempt - 1)
	if retryAfter > delay {
		delay = retryAfter
	}
	return RetryDecision{Retry: true, Delay: delay}
}

// retryAfterHint parses the Retry-After response header as whole seconds.
// Returns zero when the header is absent or malformed.
func retryAfterHint(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
