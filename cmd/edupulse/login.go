// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edupulse/edupulse/internal/session"
)

// loginConfig holds configuration for the login command.
type loginConfig struct {
	username string
	password string
	role     string
}

// newLoginCmd creates the login subcommand.
func newLoginCmd() *cobra.Command {
	cfg := &loginConfig{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and persist the session",
		Long: `Sign in to the EduPulse API. On success the bearer token is written
to the XDG state directory and reused by later commands until it
expires or you log out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.username, "username", "u", "", "username (prompted when omitted)")
	cmd.Flags().StringVarP(&cfg.password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&cfg.role, "role", "", "expected role: student, faculty, or admin")

	return cmd
}

func runLogin(cmd *cobra.Command, cfg *loginConfig) error {
	var role session.Role
	if cfg.role != "" {
		parsed, err := session.ParseRole(cfg.role)
		if err != nil {
			return err
		}
		role = parsed
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := a.store.Initialize(ctx); err != nil {
		return err
	}

	username := cfg.username
	if username == "" {
		if username, err = promptLine(cmd, "Username: "); err != nil {
			return err
		}
	}
	password := cfg.password
	if password == "" {
		if password, err = promptLine(cmd, "Password: "); err != nil {
			return err
		}
	}
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	identity, err := a.store.Login(ctx, session.Credentials{
		Username: username,
		Password: password,
	}, role)
	if err != nil {
		return err
	}

	cmd.Printf("Signed in as %s (%s)\n", identity.Username, identity.Role)
	if identity.NeedsPasswordReset {
		cmd.PrintErrln("Your password must be changed. Run `edupulse passwd`.")
	}
	return nil
}
