// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

// Package session owns the authenticated-identity state machine and the
// persisted bearer credential. It is the single writer for both; every
// other component only reads.
package session

import (
	"context"

	"github.com/samber/oops"
)

// Status is the lifecycle state of the client session.
type Status uint8

const (
	// StatusUnknown is the state before Initialize has run.
	StatusUnknown Status = iota
	// StatusVerifying means a persisted credential is being checked against
	// the server. Callers must not make authorization decisions yet.
	StatusVerifying
	// StatusAuthenticated means the server accepted the credential.
	StatusAuthenticated
	// StatusAnonymous means no accepted credential exists.
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusVerifying:
		return "verifying"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

// Role identifies what kind of user the session belongs to.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a role string received from the server.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return Role(s), nil
	default:
		return "", oops.Code("SESSION_ROLE_INVALID").
			With("role", s).
			Errorf("unknown role %q", s)
	}
}

// Identity is the server-confirmed profile of the authenticated user.
type Identity struct {
	ID                 string
	Username           string
	Name               string
	Email              string
	Role               Role
	NeedsPasswordReset bool
}

// Credentials are the login inputs. The password is never persisted.
type Credentials struct {
	Username string
	Password string
}

// ProfilePatch holds the profile fields an update may change.
// Nil fields are left untouched.
type ProfilePatch struct {
	Name  *string
	Email *string
}

// Snapshot is a point-in-time copy of the session state.
// Identity is non-nil iff Status is StatusAuthenticated.
type Snapshot struct {
	Status     Status
	Identity   *Identity
	Generation uint64
	LastError  string
}

// Change is delivered to subscribers on every status transition.
type Change struct {
	Status     Status
	Generation uint64
}

// LoginResult is what the login endpoint returns on success.
type LoginResult struct {
	Token    string
	Identity Identity
}

// AuthClient is the slice of the REST API the session store needs.
// The transport package provides the production implementation.
type AuthClient interface {
	// Login exchanges credentials for a bearer token and identity.
	// expectedRole is advisory; the server is authoritative on role validity.
	Login(ctx context.Context, creds Credentials, expectedRole Role) (LoginResult, error)

	// Me validates the current credential and returns the identity behind it.
	Me(ctx context.Context) (Identity, error)

	// UpdateProfile applies a partial profile update and returns the
	// server-confirmed identity.
	UpdateProfile(ctx context.Context, patch ProfilePatch) (Identity, error)

	// ChangePassword rotates the credential and returns the replacement token.
	ChangePassword(ctx context.Context, current, next string) (string, error)
}
