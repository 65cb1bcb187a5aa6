// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// passwdConfig holds configuration for the passwd command.
type passwdConfig struct {
	current string
	next    string
}

// newPasswdCmd creates the passwd subcommand.
func newPasswdCmd() *cobra.Command {
	cfg := &passwdConfig{}

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		Long: `Rotate the account password. The server issues a fresh bearer token
with the new password; the session stays signed in throughout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPasswd(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.current, "current", "", "current password (prompted when omitted)")
	cmd.Flags().StringVar(&cfg.next, "new", "", "new password (prompted when omitted)")

	return cmd
}

func runPasswd(cmd *cobra.Command, cfg *passwdConfig) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := a.store.Initialize(ctx); err != nil {
		return err
	}

	current := cfg.current
	if current == "" {
		if current, err = promptLine(cmd, "Current password: "); err != nil {
			return err
		}
	}
	next := cfg.next
	if next == "" {
		if next, err = promptLine(cmd, "New password: "); err != nil {
			return err
		}
	}
	if current == "" || next == "" {
		return fmt.Errorf("current and new passwords are required")
	}

	if err := a.store.ChangePassword(ctx, current, next); err != nil {
		return err
	}

	cmd.Println("Password changed")
	return nil
}
