// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package transport

import (
	"context"

	"github.com/samber/oops"

	"github.com/edupulse/edupulse/internal/session"
)

// AuthAPI implements session.AuthClient against the REST API.
type AuthAPI struct {
	client *Client
}

// NewAuthAPI wraps a pipeline client with the auth endpoints.
func NewAuthAPI(client *Client) *AuthAPI {
	return &AuthAPI{client: client}
}

type userPayload struct {
	ID                 string `json:"id"`
	Username           string `json:"username"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	Role               string `json:"role"`
	NeedsPasswordReset bool   `json:"needs_password_reset"`
}

func (u userPayload) identity() (session.Identity, error) {
	role, err := session.ParseRole(u.Role)
	if err != nil {
		return session.Identity{}, err
	}
	return session.Identity{
		ID:                 u.ID,
		Username:           u.Username,
		Name:               u.Name,
		Email:              u.Email,
		Role:               role,
		NeedsPasswordReset: u.NeedsPasswordReset,
	}, nil
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ExpectedRole string `json:"expected_role,omitempty"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

// Login calls POST /auth/login. The expected role rides along as an
// advisory field; the server decides whether it matters.
func (a *AuthAPI) Login(ctx context.Context, creds session.Credentials, expectedRole session.Role) (session.LoginResult, error) {
	req := loginRequest{
		Username:     creds.Username,
		Password:     creds.Password,
		ExpectedRole: string(expectedRole),
	}
	var resp loginResponse
	if err := a.client.Post(ctx, "/auth/login", req, &resp); err != nil {
		return session.LoginResult{}, err
	}
	if resp.Token == "" {
		return session.LoginResult{}, oops.Code("TRANSPORT_DECODE_FAILED").
			Errorf("login response carried no token")
	}
	identity, err := resp.User.identity()
	if err != nil {
		return session.LoginResult{}, err
	}
	return session.LoginResult{Token: resp.Token, Identity: identity}, nil
}

// Me calls GET /auth/me to validate the current credential.
func (a *AuthAPI) Me(ctx context.Context) (session.Identity, error) {
	var user userPayload
	if err := a.client.Get(ctx, "/auth/me", &user); err != nil {
		return session.Identity{}, err
	}
	return user.identity()
}

type profileRequest struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// UpdateProfile calls PATCH /auth/profile and returns the server-confirmed
// identity.
func (a *AuthAPI) UpdateProfile(ctx context.Context, patch session.ProfilePatch) (session.Identity, error) {
	req := profileRequest{Name: patch.Name, Email: patch.Email}
	var user userPayload
	if err := a.client.Patch(ctx, "/auth/profile", req, &user); err != nil {
		return session.Identity{}, err
	}
	return user.identity()
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type passwordResponse struct {
	Token string `json:"token"`
}

// ChangePassword calls POST /auth/password. The server rotates the
// credential and returns the replacement token.
func (a *AuthAPI) ChangePassword(ctx context.Context, current, next string) (string, error) {
	req := passwordRequest{CurrentPassword: current, NewPassword: next}
	var resp passwordResponse
	if err := a.client.Post(ctx, "/auth/password", req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", oops.Code("TRANSPORT_DECODE_FAILED").
			Errorf("password change response carried no token")
	}
	return resp.Token, nil
}
