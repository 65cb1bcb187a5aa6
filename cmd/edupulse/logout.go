// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"github.com/spf13/cobra"
)

// newLogoutCmd creates the logout subcommand.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the persisted session",
		Long: `Remove the stored bearer token. Logging out is purely local; the
server is not contacted, and logging out while already signed out
succeeds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.store.Initialize(cmd.Context()); err != nil {
				return err
			}
			if err := a.store.Logout(); err != nil {
				return err
			}
			cmd.Println("Signed out")
			return nil
		},
	}
}
