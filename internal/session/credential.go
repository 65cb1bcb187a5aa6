// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EduPulse Contributors

package session

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/edupulse/edupulse/internal/xdg"
)

// CredentialStore persists the opaque bearer token between runs.
type CredentialStore interface {
	// Load returns the persisted token, or "" when none exists.
	Load() (string, error)

	// Store replaces the persisted token.
	Store(token string) error

	// Clear removes the persisted token. Clearing an absent token is a no-op.
	Clear() error
}

// FileCredentialStore keeps the token in a single 0600 file, by default
// under the XDG state dir.
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore creates a store writing to path.
// An empty path selects the default XDG location.
func NewFileCredentialStore(path string) *FileCredentialStore {
	if path == "" {
		path = xdg.CredentialFile()
	}
	return &FileCredentialStore{path: path}
}

func (f *FileCredentialStore) Load() (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", oops.Code("CREDENTIAL_LOAD_FAILED").
			With("path", f.path).
			Wrap(err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *FileCredentialStore) Store(token string) error {
	if token == "" {
		return oops.Code("CREDENTIAL_EMPTY").Errorf("refusing to persist an empty token")
	}
	if err := xdg.EnsureDir(filepath.Dir(f.path)); err != nil {
		return oops.Code("CREDENTIAL_STORE_FAILED").With("path", f.path).Wrap(err)
	}
	if err := os.WriteFile(f.path, []byte(token+"\n"), 0o600); err != nil {
		return oops.Code("CREDENTIAL_STORE_FAILED").With("path", f.path).Wrap(err)
	}
	return nil
}

func (f *FileCredentialStore) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return oops.Code("CREDENTIAL_CLEAR_FAILED").With("path", f.path).Wrap(err)
	}
	return nil
}
