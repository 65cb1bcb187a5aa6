// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupulse/edupulse/pkg/errutil"
)

type fakeTokens struct {
	token string
	gen   uint64
}

func (f *fakeTokens) Token() (string, uint64, bool) {
	return f.token, f.gen, f.token != ""
}

// fakeControl mimics the session store's generation-guarded teardown:
// only the first matching caller wins.
type fakeControl struct {
	mu       sync.Mutex
	gen      uint64
	tornDown bool
	calls    int
}

func (f *fakeControl) ForceAnonymous(generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.tornDown || generation != f.gen {
		return false
	}
	f.tornDown = true
	return true
}

// newTestClient wires a client against srv with recorded (not slept) delays.
func newTestClient(t *testing.T, srv *httptest.Server) (*Client, *[]time.Duration) {
	t.Helper()
	client, err := NewClient(srv.URL, time.Second)
	require.NoError(t, err)

	delays := &[]time.Duration{}
	var mu sync.Mutex
	client.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		*delays = append(*delays, d)
		return nil
	}
	return client, delays
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": success,
		"message": message,
		"data":    json.RawMessage(raw),
	})
}

func TestClient_AttachesBearerWhenAuthenticated(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		writeEnvelope(w, http.StatusOK, true, "", map[string]string{"status": "fine"})
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	client.BindSession(&fakeTokens{token: "tok", gen: 3}, &fakeControl{gen: 3})

	var out map[string]string
	require.NoError(t, client.Get(context.Background(), "/ping", &out))
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotEmpty(t, gotRequestID, "every request is tagged with an ID")
	assert.Equal(t, "fine", out["status"])
}

func TestClient_AnonymousSendsNoAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, http.StatusOK, true, "", nil)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	client.BindSession(&fakeTokens{}, &fakeControl{})

	require.NoError(t, client.Get(context.Background(), "/public", nil))
	assert.Empty(t, gotAuth)
}

func TestClient_RateLimited_RetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 3 {
			writeEnvelope(w, http.StatusTooManyRequests, false, "slow down", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "", map[string]int{"n": 7})
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv)

	var out map[string]int
	require.NoError(t, client.Get(context.Background(), "/list", &out))
	assert.Equal(t, 7, out["n"], "exactly one success reaches the caller")
	assert.EqualValues(t, 4, attempts.Load(), "three 429s then a 2xx means four network attempts")

	require.Len(t, *delays, 3)
	assert.GreaterOrEqual(t, (*delays)[0], time.Second)
	assert.GreaterOrEqual(t, (*delays)[1], 2*time.Second)
	assert.GreaterOrEqual(t, (*delays)[2], 4*time.Second)
	assert.Less(t, (*delays)[2], 4*time.Second+JitterMax)
}

func TestClient_RateLimited_RetryAfterLowerBoundsDelay(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			writeEnvelope(w, http.StatusTooManyRequests, false, "slow down", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, true, "", nil)
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv)
	require.NoError(t, client.Get(context.Background(), "/list", nil))

	require.Len(t, *delays, 1)
	assert.GreaterOrEqual(t, (*delays)[0], 5*time.Second,
		"server hint lower-bounds the exponential delay")
	assert.Less(t, (*delays)[0], 5*time.Second+JitterMax)
}

func TestClient_RateLimited_GivesUpAfterCap(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		writeEnvelope(w, http.StatusTooManyRequests, false, "slow down", nil)
	}))
	defer srv.Close()

	client, delays := newTestClient(t, srv)
	err := client.Get(context.Background(), "/list", nil)

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.EqualValues(t, 1+MaxRetries, attempts.Load(), "initial attempt plus capped retries")
	assert.Len(t, *delays, MaxRetries)
}

func TestClient_AuthExpired_TearsDownOnceAcrossConcurrentRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, false, "token expired", nil)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	control := &fakeControl{gen: 1}
	client.BindSession(&fakeTokens{token: "tok", gen: 1}, control)

	var redirects atomic.Int32
	client.OnAuthExpired(func() { redirects.Add(1) })

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.Get(context.Background(), "/marks", nil)
			assert.True(t, IsAuthExpired(err))
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, redirects.Load(), "redirect fires once no matter how many requests report 401")
	assert.Equal(t, 6, control.calls, "every 401 consults the session store")
}

func TestClient_AuthExpired_DoesNotRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		writeEnvelope(w, http.StatusUnauthorized, false, "token expired", nil)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	client.BindSession(&fakeTokens{token: "tok"}, &fakeControl{})

	err := client.Get(context.Background(), "/marks", nil)
	require.True(t, IsAuthExpired(err))
	assert.EqualValues(t, 1, attempts.Load(), "the failed call is not retried after teardown")
}

func TestClient_ValidationErrorPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusUnprocessableEntity, false, "name is required", nil)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	err := client.Post(context.Background(), "/students", map[string]string{}, nil)

	errutil.AssertErrorCode(t, err, CodeValidationFailed)
	assert.Contains(t, err.Error(), "name is required", "server message is preserved for the caller")
}

func TestClient_ServerErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	err := client.Get(context.Background(), "/students", nil)

	errutil.AssertErrorCode(t, err, CodeServerError)
	assert.EqualValues(t, 1, attempts.Load())
}

func TestClient_NetworkUnavailableIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // nothing listening any more

	client, err := NewClient(srv.URL, 200*time.Millisecond)
	require.NoError(t, err)

	getErr := client.Get(context.Background(), "/anything", nil)
	assert.True(t, IsNetworkUnavailable(getErr), "offline is distinguishable from server rejection")
}

func TestClient_UnsuccessfulEnvelopeOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, false, "nothing to see", nil)
	}))
	defer srv.Close()

	client, _ := newTestClient(t, srv)
	err := client.Get(context.Background(), "/odd", nil)
	errutil.AssertErrorCode(t, err, CodeValidationFailed)
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := NewClient("ftp://example.com", 0)
	assert.Error(t, err)
}
