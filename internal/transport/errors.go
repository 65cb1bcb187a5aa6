// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package transport

import (
	"github.com/edupulse/edupulse/pkg/errutil"
)

// Error codes attached to every error the pipeline returns. Transport-level
// concerns (expired credential, rate limiting) are resolved centrally;
// everything else propagates to the caller untouched for local handling.
const (
	// CodeAuthExpired: the server rejected the credential. The session has
	// already been torn down by the time the caller sees this.
	CodeAuthExpired = "AUTH_EXPIRED"

	// CodeRateLimited: the retry budget for a throttled request ran out.
	CodeRateLimited = "RATE_LIMITED"

	// CodeValidationFailed: any other 4xx. The server's message is preserved
	// for field-level display.
	CodeValidationFailed = "VALIDATION_FAILED"

	// CodeServerError: 5xx. Never retried automatically.
	CodeServerError = "SERVER_ERROR"

	// CodeNetworkUnavailable: no response was received at all, so "offline"
	// is distinguishable from "server rejected".
	CodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
)

// IsAuthExpired reports whether err is a global credential-expiry failure.
func IsAuthExpired(err error) bool {
	return errutil.HasCode(err, CodeAuthExpired)
}

// IsRateLimited reports whether err means the retry budget was exhausted.
func IsRateLimited(err error) bool {
	return errutil.HasCode(err, CodeRateLimited)
}

// IsNetworkUnavailable reports whether err means no response was received.
func IsNetworkUnavailable(err error) bool {
	return errutil.HasCode(err, CodeNetworkUnavailable)
}
