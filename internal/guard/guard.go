// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

// Package guard decides whether a protected view may render for the
// current session. Decisions are pure; navigation side effects belong to
// the caller.
package guard

import (
	"github.com/edupulse/edupulse/internal/session"
)

// Action is what the caller should do with the requested view.
type Action uint8

const (
	// ActionWait: the session is still settling; show a neutral loading
	// indicator and decide nothing.
	ActionWait Action = iota

	// ActionRender: the view may render.
	ActionRender

	// ActionRedirectLogin: anonymous; go to login, resume the requested
	// path afterwards.
	ActionRedirectLogin

	// ActionRedirectPasswordReset: a student with a pending credential
	// rotation goes there first, whatever they asked for.
	ActionRedirectPasswordReset

	// ActionRedirectHome: authenticated but not permitted; signal the
	// denial and fall back to a safe default.
	ActionRedirectHome
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionRender:
		return "render"
	case ActionRedirectLogin:
		return "redirect-login"
	case ActionRedirectPasswordReset:
		return "redirect-password-reset"
	case ActionRedirectHome:
		return "redirect-home"
	default:
		return "invalid"
	}
}

// Decision is the outcome of evaluating one navigation.
type Decision struct {
	Action Action

	// ResumePath is the originally-requested path, captured so a
	// successful login can continue where the user was headed.
	// Set only for ActionRedirectLogin.
	ResumePath string

	// Denied marks an access-denied outcome, set for ActionRedirectHome so
	// the caller can surface it before redirecting.
	Denied bool
}

// Evaluate gates one navigation to a view restricted to the allowed roles.
// An empty allowed set admits any authenticated role.
func Evaluate(snap session.Snapshot, allowed []session.Role, path string) Decision {
	switch snap.Status {
	case session.StatusUnknown, session.StatusVerifying:
		return Decision{Action: ActionWait}
	case session.StatusAnonymous:
		return Decision{Action: ActionRedirectLogin, ResumePath: path}
	}

	identity := snap.Identity
	if identity == nil {
		return Decision{Action: ActionRedirectLogin, ResumePath: path}
	}

	// Credential rotation outranks every destination for students.
	if identity.Role == session.RoleStudent && identity.NeedsPasswordReset {
		return Decision{Action: ActionRedirectPasswordReset}
	}

	if len(allowed) == 0 {
		return Decision{Action: ActionRender}
	}
	for _, role := range allowed {
		if identity.Role == role {
			return Decision{Action: ActionRender}
		}
	}
	return Decision{Action: ActionRedirectHome, Denied: true}
}
