// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/edupulse/edupulse/internal/ident"
	"github.com/edupulse/edupulse/internal/observability"
	"github.com/edupulse/edupulse/internal/session"
)

// Dial retry policy for one authenticated interval.
const (
	dialBackoffBase = 500 * time.Millisecond
	dialBackoffCap  = 15 * time.Second
	dialMaxRetries  = 6
)

// TokenSource yields the bearer credential for the push channel, plus the
// session generation it belongs to.
type TokenSource interface {
	Token() (token string, generation uint64, ok bool)
}

// frame is the wire shape of one push event.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Bridge owns the single push channel of the client. The channel's lifetime
// is coupled 1:1 to the session's authenticated interval: opened on the
// transition in, closed deterministically on the transition out, never more
// than one at a time.
type Bridge struct {
	endpoint string
	dialer   *websocket.Dialer
	tokens   TokenSource
	notifier Notifier
	bus      *Broadcaster

	mu      sync.Mutex
	conn    *websocket.Conn
	connGen uint64
}

// NewBridge creates a bridge dialing the push endpoint derived from the API
// base URL.
func NewBridge(apiBase *url.URL, path string, tokens TokenSource, notifier Notifier, bus *Broadcaster) *Bridge {
	return &Bridge{
		endpoint: Endpoint(apiBase, path),
		dialer:   websocket.DefaultDialer,
		tokens:   tokens,
		notifier: notifier,
		bus:      bus,
	}
}

// Endpoint derives the websocket URL from the HTTP base URL.
func Endpoint(apiBase *url.URL, path string) string {
	ws := *apiBase
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	return ws.JoinPath(path).String()
}

// Run follows session transitions until ctx is done or the change channel
// closes. It owns all connect/disconnect decisions.
func (b *Bridge) Run(ctx context.Context, changes <-chan session.Change) {
	defer b.disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if change.Status != session.StatusAuthenticated {
				b.disconnect()
				continue
			}
			if err := b.connect(ctx, change.Generation); err != nil {
				slog.Warn("realtime channel could not be established",
					"generation", change.Generation,
					"error", err,
				)
			}
		}
	}
}

// Connected reports whether a channel is currently open.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// connect dials the push endpoint for the given session generation,
// retrying with exponential backoff. An already-open channel is closed
// first; at most one channel exists at any time.
func (b *Bridge) connect(ctx context.Context, generation uint64) error {
	b.disconnect()

	backoff := retry.WithMaxRetries(dialMaxRetries,
		retry.WithCappedDuration(dialBackoffCap, retry.NewExponential(dialBackoffBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		token, current, ok := b.tokens.Token()
		if !ok || current != generation {
			// The session moved on while we were backing off.
			return oops.Code("REALTIME_SESSION_GONE").
				With("generation", generation).
				Errorf("session ended before the channel opened")
		}

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)

		conn, resp, err := b.dialer.DialContext(ctx, b.endpoint, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close() //nolint:errcheck // handshake body is not used
		}
		if err != nil {
			observability.RecordRealtimeReconnect()
			return retry.RetryableError(oops.Code("REALTIME_DIAL_FAILED").
				With("endpoint", b.endpoint).
				Wrap(err))
		}

		b.mu.Lock()
		if b.conn != nil {
			// Lost a race with another connect; keep the invariant.
			b.conn.Close() //nolint:errcheck // superseded connection
		}
		b.conn = conn
		b.connGen = generation
		b.mu.Unlock()

		slog.Info("realtime channel open", "endpoint", b.endpoint, "generation", generation)
		go b.readLoop(ctx, conn, generation)
		return nil
	})
}

// disconnect deterministically closes the channel if one is open.
func (b *Bridge) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return
	}
	b.conn.Close() //nolint:errcheck // close on teardown
	b.conn = nil
	slog.Info("realtime channel closed")
}

// readLoop consumes frames until the connection dies. If the session
// interval is still the same one, it redials; a closed session just ends
// the loop.
func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn, generation uint64) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		b.dispatch(f)
	}

	b.mu.Lock()
	stale := b.conn != conn
	if !stale {
		b.conn = nil
	}
	b.mu.Unlock()
	if stale || ctx.Err() != nil {
		return
	}

	if _, current, ok := b.tokens.Token(); ok && current == generation {
		slog.Warn("realtime channel dropped, reconnecting", "generation", generation)
		if err := b.connect(ctx, generation); err != nil {
			slog.Warn("realtime reconnect failed", "error", err)
		}
	}
}

// dispatch fans one frame out: ambient toast plus local refresh hint.
func (b *Bridge) dispatch(f frame) {
	topic := Topic(f.Event)
	stream, ok := topic.StreamFor()
	if !ok {
		slog.Debug("ignoring unknown realtime topic", "topic", f.Event)
		return
	}

	event := Event{
		ID:         ident.NewULID(),
		Topic:      topic,
		Payload:    f.Data,
		ReceivedAt: time.Now(),
	}

	b.notifier.Notify(topic.Describe())
	b.bus.Publish(event)
	observability.RecordRealtimeEvent(string(stream))
}
