// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// changeBuffer is the per-subscriber channel depth. Status transitions are
// rare; a slow subscriber past this depth loses the change.
const changeBuffer = 16

// Store is the session state machine.
//
// State: Unknown -> Verifying -> {Authenticated, Anonymous};
// Authenticated -> Anonymous on logout or expired credential;
// Anonymous -> Authenticated on successful login. Verifying is only
// entered once, at process start.
//
// Every transition into Authenticated or Anonymous bumps the session
// generation. Outbound requests are tagged with the generation active when
// they were issued, so a late 401 from a superseded session cannot tear
// down a newer one.
type Store struct {
	api   AuthClient
	creds CredentialStore

	mu         sync.Mutex
	status     Status
	identity   *Identity
	token      string
	generation uint64
	lastErr    string
	subs       []chan Change
}

// NewStore creates a session store. The AuthClient is bound separately
// because the transport that implements it needs the store for token
// attachment; see BindAPI.
func NewStore(creds CredentialStore) *Store {
	return &Store{
		creds:  creds,
		status: StatusUnknown,
	}
}

// BindAPI attaches the auth endpoints the store calls. Must happen before
// Initialize, Login, UpdateProfile or ChangePassword.
func (s *Store) BindAPI(api AuthClient) {
	s.api = api
}

// Initialize reads the persisted credential and settles the session into
// Authenticated or Anonymous. Callers observing StatusVerifying must not
// make authorization decisions until it returns.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusUnknown {
		s.mu.Unlock()
		return oops.Code("SESSION_ALREADY_INITIALIZED").
			With("status", s.status.String()).
			Errorf("session already initialized")
	}

	token, err := s.creds.Load()
	if err != nil || token == "" {
		s.transitionLocked(StatusAnonymous, nil, "")
		s.mu.Unlock()
		if err != nil {
			slog.Warn("could not read persisted credential, starting anonymous", "error", err)
		}
		return nil
	}

	s.token = token
	s.status = StatusVerifying
	s.mu.Unlock()

	identity, err := s.api.Me(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusVerifying {
		// A concurrent teardown already settled the session.
		return nil
	}
	if err != nil {
		// Any failure discards the credential. A token the server will not
		// vouch for is worthless.
		_ = s.creds.Clear()
		s.lastErr = err.Error()
		s.transitionLocked(StatusAnonymous, nil, "")
		slog.Info("persisted credential rejected, starting anonymous", "error", err)
		return nil
	}

	s.transitionLocked(StatusAuthenticated, &identity, token)
	slog.Info("session restored",
		"username", identity.Username,
		"role", string(identity.Role),
	)
	return nil
}

// Login authenticates against the server. On failure the session state is
// left untouched and the error is returned for caller-side display.
func (s *Store) Login(ctx context.Context, creds Credentials, expectedRole Role) (Identity, error) {
	res, err := s.api.Login(ctx, creds, expectedRole)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return Identity{}, err
	}

	if err := s.creds.Store(res.Token); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = ""
	s.transitionLocked(StatusAuthenticated, &res.Identity, res.Token)
	return res.Identity, nil
}

// Logout clears the credential and returns the session to Anonymous.
// Safe to call when already anonymous.
func (s *Store) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusAnonymous {
		return nil
	}

	err := s.creds.Clear()
	s.transitionLocked(StatusAnonymous, nil, "")
	return err
}

// ForceAnonymous is the teardown entry point for the request pipeline when
// a call comes back 401. The generation must match the one the failed
// request was issued under; a stale generation is ignored so a late 401
// from an ended session cannot destroy its successor. Returns true if the
// session was actually torn down by this call.
func (s *Store) ForceAnonymous(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		slog.Debug("ignoring auth expiry from superseded session",
			"reported_generation", generation,
			"current_generation", s.generation,
		)
		return false
	}
	if s.status == StatusAnonymous {
		return false
	}

	if err := s.creds.Clear(); err != nil {
		slog.Warn("failed to clear persisted credential", "error", err)
	}
	s.transitionLocked(StatusAnonymous, nil, "")
	return true
}

// UpdateProfile merges server-confirmed profile fields into the identity.
// Never changes the session status.
func (s *Store) UpdateProfile(ctx context.Context, patch ProfilePatch) (Identity, error) {
	if err := s.requireAuthenticated(); err != nil {
		return Identity{}, err
	}

	identity, err := s.api.UpdateProfile(ctx, patch)
	if err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusAuthenticated {
		s.identity = &identity
	}
	return identity, nil
}

// ChangePassword rotates the credential in place. The server returns a
// replacement token which supersedes the persisted one; the session stays
// authenticated throughout and the pending-reset flag is cleared.
func (s *Store) ChangePassword(ctx context.Context, current, next string) error {
	if err := s.requireAuthenticated(); err != nil {
		return err
	}

	token, err := s.api.ChangePassword(ctx, current, next)
	if err != nil {
		return err
	}
	if err := s.creds.Store(token); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusAuthenticated {
		s.token = token
		s.identity.NeedsPasswordReset = false
	}
	return nil
}

// Snapshot returns a defensive copy of the current session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Status:     s.status,
		Generation: s.generation,
		LastError:  s.lastErr,
	}
	if s.identity != nil {
		identity := *s.identity
		snap.Identity = &identity
	}
	return snap
}

// Token returns the current bearer token and the generation it belongs to.
// ok is false when there is nothing to attach. The token is present during
// Verifying so the identity check itself can authenticate.
func (s *Store) Token() (token string, generation uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.generation, s.token != ""
}

// Subscribe registers for status transitions. The returned cancel func
// removes the subscription and closes the channel.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Change, changeBuffer)
	s.subs = append(s.subs, ch)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (s *Store) requireAuthenticated() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusAuthenticated {
		return oops.Code("SESSION_NOT_AUTHENTICATED").
			With("status", s.status.String()).
			Errorf("not signed in")
	}
	return nil
}

// transitionLocked moves the session into a settled state, bumps the
// generation and fans the change out. Callers hold s.mu.
func (s *Store) transitionLocked(status Status, identity *Identity, token string) {
	s.status = status
	s.identity = identity
	s.token = token
	s.generation++

	change := Change{Status: status, Generation: s.generation}
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
			slog.Warn("session change dropped: subscriber buffer full",
				"status", status.String(),
				"generation", s.generation,
			)
		}
	}
}
