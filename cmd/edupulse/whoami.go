// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edupulse/edupulse/internal/session"
)

// whoamiConfig holds configuration for the whoami command.
type whoamiConfig struct {
	jsonOutput bool
}

// identityView is the JSON shape of the whoami output.
type identityView struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Name               string `json:"name,omitempty"`
	Email              string `json:"email,omitempty"`
	Role               string `json:"role"`
	NeedsPasswordReset bool   `json:"needs_password_reset"`
}

// newWhoamiCmd creates the whoami subcommand.
func newWhoamiCmd() *cobra.Command {
	cfg := &whoamiConfig{}

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in identity",
		Long:  `Validate the persisted session against the server and print who owns it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWhoami(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output identity as JSON")

	return cmd
}

func runWhoami(cmd *cobra.Command, cfg *whoamiConfig) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	if err := a.store.Initialize(cmd.Context()); err != nil {
		return err
	}

	snap := a.store.Snapshot()
	if snap.Status != session.StatusAuthenticated {
		return fmt.Errorf("not signed in: run `edupulse login` first")
	}
	identity := *snap.Identity

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(identityView{
			ID:                 identity.ID,
			Username:           identity.Username,
			Name:               identity.Name,
			Email:              identity.Email,
			Role:               string(identity.Role),
			NeedsPasswordReset: identity.NeedsPasswordReset,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal identity: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Username:\t%s\n", identity.Username)
	if identity.Name != "" {
		fmt.Fprintf(w, "Name:\t%s\n", identity.Name)
	}
	if identity.Email != "" {
		fmt.Fprintf(w, "Email:\t%s\n", identity.Email)
	}
	fmt.Fprintf(w, "Role:\t%s\n", identity.Role)
	if identity.NeedsPasswordReset {
		fmt.Fprintf(w, "Password:\tmust be changed\n")
	}
	return w.Flush()
}
