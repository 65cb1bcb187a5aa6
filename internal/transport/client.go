// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

// Package transport is the request pipeline every outbound API call goes
// through. It attaches the bearer credential, turns a 401 into a single
// global session teardown, and absorbs 429s with bounded backoff. All
// other responses pass through to the caller untouched.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/edupulse/edupulse/internal/ident"
	"github.com/edupulse/edupulse/internal/logging"
	"github.com/edupulse/edupulse/internal/observability"
)

// TokenSource yields the credential to attach to outbound calls, together
// with the session generation it belongs to. The session store implements it.
type TokenSource interface {
	Token() (token string, generation uint64, ok bool)
}

// SessionControl is how the pipeline tears a session down on credential
// expiry. ForceAnonymous reports whether this call actually performed the
// teardown, so concurrent 401s collapse into one redirect.
type SessionControl interface {
	ForceAnonymous(generation uint64) bool
}

// envelope is the fixed response shape of the API.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// response is one completed network attempt.
type response struct {
	env        envelope
	status     int
	generation uint64 // session generation the request was issued under
	retryAfter time.Duration
}

func (r response) message(fallback string) string {
	if r.env.Message != "" {
		return r.env.Message
	}
	return fallback
}

// Client performs JSON requests against the EduPulse API.
type Client struct {
	base          *url.URL
	http          *http.Client
	tokens        TokenSource
	control       SessionControl
	onAuthExpired func()
	sleep         func(ctx context.Context, d time.Duration) error
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewClient creates a pipeline client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, oops.Code("TRANSPORT_BASE_URL_INVALID").
			With("base_url", baseURL).
			Wrap(err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, oops.Code("TRANSPORT_BASE_URL_INVALID").
			With("base_url", baseURL).
			Errorf("base URL must be http or https")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:  base,
		http:  &http.Client{Timeout: timeout},
		sleep: defaultSleep,
	}, nil
}

// BindSession attaches the session store. Separate from NewClient because
// the store needs the client for its own auth calls; see session.Store.BindAPI.
func (c *Client) BindSession(tokens TokenSource, control SessionControl) {
	c.tokens = tokens
	c.control = control
}

// OnAuthExpired registers the redirect hook invoked after a credential
// expiry actually tears the session down. Called at most once per teardown.
func (c *Client) OnAuthExpired(fn func()) {
	c.onAuthExpired = fn
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() *url.URL {
	return c.base
}

// Get issues a GET and decodes the envelope data into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the envelope data into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Patch issues a PATCH with a JSON body and decodes the envelope data into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do performs one logical request. Retries after a 429 re-issue the same
// request; attempt state is local to this call, so concurrent requests back
// off independently.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	requestID := ident.NewULID().String()
	ctx = logging.WithRequestID(ctx, requestID)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return oops.Code("TRANSPORT_ENCODE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.issue(ctx, method, path, payload, requestID)
		if err != nil {
			return err
		}

		switch {
		case resp.status == http.StatusUnauthorized:
			c.tearDown(ctx, resp.generation)
			return oops.Code(CodeAuthExpired).
				With("path", path).
				With("request_id", requestID).
				Errorf("session expired")

		case resp.status == http.StatusTooManyRequests:
			decision := NextAttempt(attempt, resp.retryAfter)
			if !decision.Retry {
				return oops.Code(CodeRateLimited).
					With("path", path).
					With("attempts", attempt).
					Errorf("rate limited, retries exhausted")
			}
			observability.RecordRequestRetry()
			slog.DebugContext(ctx, "request throttled, backing off",
				"path", path,
				"attempt", attempt,
				"delay", decision.Delay.String(),
			)
			if err := c.sleep(ctx, decision.Delay); err != nil {
				return oops.Code(CodeNetworkUnavailable).
					With("path", path).
					Wrap(err)
			}
			continue

		case resp.status >= 500:
			return oops.Code(CodeServerError).
				With("path", path).
				With("status", resp.status).
				Errorf("server error: %s", resp.message("internal server error"))

		case resp.status >= 400:
			return oops.Code(CodeValidationFailed).
				With("path", path).
				With("status", resp.status).
				Errorf("%s", resp.message("request rejected"))
		}

		if !resp.env.Success {
			return oops.Code(CodeValidationFailed).
				With("path", path).
				With("status", resp.status).
				Errorf("%s", resp.message("request rejected"))
		}
		if out != nil && len(resp.env.Data) > 0 {
			if err := json.Unmarshal(resp.env.Data, out); err != nil {
				return oops.Code("TRANSPORT_DECODE_FAILED").
					With("path", path).
					Wrap(err)
			}
		}
		return nil
	}
}

// issue performs one network attempt and decodes the envelope.
func (c *Client) issue(ctx context.Context, method, path string, payload []byte, requestID string) (response, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	target := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reqBody)
	if err != nil {
		return response{}, oops.Code("TRANSPORT_REQUEST_INVALID").
			With("method", method).
			With("path", path).
			Wrap(err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var generation uint64
	if c.tokens != nil {
		if token, gen, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
			generation = gen
		}
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return response{}, oops.Code(CodeNetworkUnavailable).
			With("method", method).
			With("path", path).
			Wrap(err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // response body close error is not actionable

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return response{}, oops.Code(CodeNetworkUnavailable).
			With("method", method).
			With("path", path).
			Wrap(err)
	}

	resp := response{
		status:     httpResp.StatusCode,
		generation: generation,
		retryAfter: retryAfterHint(httpResp),
	}
	if len(raw) > 0 && strings.Contains(httpResp.Header.Get("Content-Type"), "json") {
		// A malformed body on an error status is fine, the status drives
		// the outcome either way.
		_ = json.Unmarshal(raw, &resp.env)
	}
	return resp, nil
}

// tearDown runs the global auth-expiry policy. Only the call that actually
// flips the session invokes the redirect hook, so concurrent 401s produce a
// single redirect.
func (c *Client) tearDown(ctx context.Context, generation uint64) {
	if c.control == nil {
		return
	}
	if !c.control.ForceAnonymous(generation) {
		return
	}
	observability.RecordAuthTeardown()
	slog.InfoContext(ctx, "credential expired, session torn down", "generation", generation)
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}
