// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edupulse/edupulse/internal/config"
	"github.com/edupulse/edupulse/internal/guard"
	"github.com/edupulse/edupulse/internal/logging"
	"github.com/edupulse/edupulse/internal/session"
	"github.com/edupulse/edupulse/internal/transport"
)

// app wires the session store and transport together for one command
// invocation. Construction order matters: the store and client reference
// each other, so both are created bare and then bound.
type app struct {
	cfg    *config.Config
	store  *session.Store
	client *transport.Client
}

// newApp resolves configuration and assembles the client runtime.
// It does not touch the network; callers run store.Initialize when they
// need the persisted session settled.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logging.SetDefault("edupulse", version, cfg.Log.Format)

	client, err := transport.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	if err != nil {
		return nil, err
	}

	store := session.NewStore(session.NewFileCredentialStore(""))
	store.BindAPI(transport.NewAuthAPI(client))
	client.BindSession(store, store)
	client.OnAuthExpired(func() {
		cmd.PrintErrln("Session expired. Run `edupulse login` to sign in again.")
	})

	return &app{cfg: cfg, store: store, client: client}, nil
}

// requireAccess settles the persisted session and gates the command the
// way a protected view is gated: anonymous sessions are sent to login,
// students with a pending reset to passwd, disallowed roles are denied.
func (a *app) requireAccess(ctx context.Context, allowed []session.Role, path string) error {
	if err := a.store.Initialize(ctx); err != nil {
		return err
	}

	decision := guard.Evaluate(a.store.Snapshot(), allowed, path)
	switch decision.Action {
	case guard.ActionRender:
		return nil
	case guard.ActionRedirectLogin:
		return fmt.Errorf("not signed in: run `edupulse login` first")
	case guard.ActionRedirectPasswordReset:
		return fmt.Errorf("password reset required: run `edupulse passwd` first")
	case guard.ActionRedirectHome:
		return fmt.Errorf("access denied for role %q", a.store.Snapshot().Identity.Role)
	default:
		return fmt.Errorf("session not settled")
	}
}

// promptLine reads one line from the command's input, prompting on its
// error stream so the value itself can be piped.
func promptLine(cmd *cobra.Command, prompt string) (string, error) {
	cmd.PrintErr(prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
