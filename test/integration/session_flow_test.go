// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/edupulse/edupulse/internal/realtime"
	"github.com/edupulse/edupulse/internal/session"
	"github.com/edupulse/edupulse/internal/transport"
)

// fakeInstitute fakes the API surface the client runtime touches: the auth
// endpoints and the push channel, sharing one token table.
type fakeInstitute struct {
	mu       sync.Mutex
	token    string
	upgrader websocket.Upgrader
	conns    []*websocket.Conn
	srv      *httptest.Server
}

func newFakeInstitute() *fakeInstitute {
	f := &fakeInstitute{}

	user := map[string]any{
		"id":                   "01JF0000000000000000000000",
		"username":             "jdoe",
		"name":                 "Jane Doe",
		"email":                "jdoe@example.edu",
		"role":                 "student",
		"needs_password_reset": false,
	}
	envelope := func(w http.ResponseWriter, status int, success bool, message string, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": success,
			"message": message,
			"data":    data,
		})
	}
	authorized := func(r *http.Request) bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.token != "" && r.Header.Get("Authorization") == "Bearer "+f.token
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Username != "jdoe" || body.Password != "secret" {
			envelope(w, http.StatusBadRequest, false, "Invalid credentials", nil)
			return
		}
		f.mu.Lock()
		f.token = "token-1"
		f.mu.Unlock()
		envelope(w, http.StatusOK, true, "", map[string]any{"token": "token-1", "user": user})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			envelope(w, http.StatusUnauthorized, false, "Session expired", nil)
			return
		}
		envelope(w, http.StatusOK, true, "", user)
	})
	mux.HandleFunc("/realtime", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
	})

	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeInstitute) push(topic string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		_ = conn.WriteJSON(map[string]any{"event": topic, "data": data})
	}
}

func (f *fakeInstitute) revokeToken() {
	f.mu.Lock()
	f.token = ""
	conns := f.conns
	f.conns = nil
	f.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (f *fakeInstitute) close() {
	f.revokeToken()
	f.srv.Close()
}

// collectingNotifier records toast texts.
type collectingNotifier struct {
	mu     sync.Mutex
	toasts []string
}

func (n *collectingNotifier) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, text)
}

func (n *collectingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.toasts)
}

var _ = Describe("Session lifecycle", func() {
	var (
		institute *fakeInstitute
		store     *session.Store
		client    *transport.Client
		notifier  *collectingNotifier
		bus       *realtime.Broadcaster
		redirects int
		ctx       context.Context
		cancel    context.CancelFunc
		runDone   chan struct{}
	)

	BeforeEach(func() {
		institute = newFakeInstitute()
		notifier = &collectingNotifier{}
		bus = realtime.NewBroadcaster()
		redirects = 0

		var err error
		client, err = transport.NewClient(institute.srv.URL, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		credPath := filepath.Join(GinkgoT().TempDir(), "credential")
		store = session.NewStore(session.NewFileCredentialStore(credPath))
		store.BindAPI(transport.NewAuthAPI(client))
		client.BindSession(store, store)
		client.OnAuthExpired(func() { redirects++ })

		ctx, cancel = context.WithCancel(context.Background())
		runDone = make(chan struct{})
	})

	AfterEach(func() {
		cancel()
		Eventually(runDone, 5*time.Second).Should(BeClosed())
		institute.close()
	})

	startBridge := func() {
		bridge := realtime.NewBridge(client.BaseURL(), "/realtime", store, notifier, bus)

		updates, unsubscribe := store.Subscribe()
		changes := make(chan session.Change, 1)
		snap := store.Snapshot()
		changes <- session.Change{Status: snap.Status, Generation: snap.Generation}
		go func() {
			defer close(changes)
			defer unsubscribe()
			for {
				select {
				case change, ok := <-updates:
					if !ok {
						return
					}
					select {
					case changes <- change:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		go func() {
			defer close(runDone)
			bridge.Run(ctx, changes)
		}()
	}

	It("logs in, streams pushes, and tears down on credential expiry", func() {
		Expect(store.Initialize(ctx)).To(Succeed())
		Expect(store.Snapshot().Status).To(Equal(session.StatusAnonymous))

		identity, err := store.Login(ctx, session.Credentials{
			Username: "jdoe",
			Password: "secret",
		}, session.RoleStudent)
		Expect(err).NotTo(HaveOccurred())
		Expect(identity.Username).To(Equal("jdoe"))

		startBridge()

		marks := bus.Subscribe(realtime.StreamMarks)
		defer bus.Unsubscribe(realtime.StreamMarks, marks)

		// The push channel follows the authenticated session in.
		Eventually(func() int {
			institute.mu.Lock()
			defer institute.mu.Unlock()
			return len(institute.conns)
		}, 5*time.Second).Should(Equal(1))

		institute.push("marks:added", map[string]any{"subject": "Anatomy"})

		Eventually(notifier.count, 5*time.Second).Should(Equal(1))
		var event realtime.Event
		Eventually(marks, 5*time.Second).Should(Receive(&event))
		Expect(event.Topic).To(Equal(realtime.TopicMarksAdded))
		Expect(string(event.Payload)).To(MatchJSON(`{"subject": "Anatomy"}`))

		// Server-side revocation: next request 401s, session tears down once.
		institute.revokeToken()
		err = client.Get(ctx, "/auth/me", nil)
		Expect(transport.IsAuthExpired(err)).To(BeTrue())
		Expect(store.Snapshot().Status).To(Equal(session.StatusAnonymous))
		Expect(redirects).To(Equal(1))
	})

	It("restores a persisted session on the next run", func() {
		Expect(store.Initialize(ctx)).To(Succeed())
		_, err := store.Login(ctx, session.Credentials{
			Username: "jdoe",
			Password: "secret",
		}, "")
		Expect(err).NotTo(HaveOccurred())

		token, _, ok := store.Token()
		Expect(ok).To(BeTrue())

		// A fresh store with the same credential file picks the session up.
		credPath := filepath.Join(GinkgoT().TempDir(), "credential")
		creds := session.NewFileCredentialStore(credPath)
		Expect(creds.Store(token)).To(Succeed())

		client2, err := transport.NewClient(institute.srv.URL, 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
		store2 := session.NewStore(creds)
		store2.BindAPI(transport.NewAuthAPI(client2))
		client2.BindSession(store2, store2)

		Expect(store2.Initialize(ctx)).To(Succeed())
		snap := store2.Snapshot()
		Expect(snap.Status).To(Equal(session.StatusAuthenticated))
		Expect(snap.Identity.Username).To(Equal("jdoe"))

		close(runDone) // no bridge in this spec
	})
})
