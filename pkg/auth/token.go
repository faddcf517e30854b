// Package auth stores the dataset-mirror access token, preferring the
// OS keychain with a file fallback for headless hosts.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "mirror_token"
	keyringService = "radlabel"
	keyringUser    = "mirror_token"
)

// ErrNoToken is returned when no token has been saved yet.
var ErrNoToken = errors.New("no access token saved, run: radlabel auth set")

// Store reads and writes the mirror token. Dir holds the fallback file
// when no keychain is available.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Save writes the token to the OS keychain, falling back to a file
// under Dir when the keychain is unavailable.
func (s *Store) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}

	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(s.tokenPath(), []byte(token), 0600)
	}

	// the fallback file is stale once the keychain holds the token
	os.Remove(s.tokenPath())

	return nil
}

// Get returns the saved token, trying the keychain first and migrating
// a file token into it when found.
func (s *Store) Get() (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	token, err = s.getFile()
	if err != nil {
		return "", err
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		os.Remove(s.tokenPath())
	}

	return token, nil
}

// Clear removes the token from the keychain and the fallback file.
func (s *Store) Clear() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Warn("keychain delete failed", "error", err)
	}
	if err := os.Remove(s.tokenPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

func (s *Store) getFile() (string, error) {
	b, err := os.ReadFile(s.tokenPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("reading token file %s: %w", s.tokenPath(), err)
	}

	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func (s *Store) tokenPath() string {
	return filepath.Join(s.Dir, tokenFileName)
}
