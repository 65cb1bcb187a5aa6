// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/edupulse/edupulse/internal/config"
)

// NewRootCmd creates the root command for the edupulse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edupulse",
		Short: "EduPulse - Institute management from the terminal",
		Long: `EduPulse is a client for the EduPulse institute-management API.
It keeps a signed-in session on disk, talks to the REST API with
automatic retry and session teardown, and can tail the realtime push
channel for attendance, marks, downloads, and notifications.`,
		SilenceUsage: true,
	}

	// Every subcommand resolves configuration from the same flag set.
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newPasswdCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}
