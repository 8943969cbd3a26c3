// Package credentials provides secure storage for the Redmine API key.
//
// The key is kept in the system keyring (macOS Keychain, Windows Credential
// Manager, Linux Secret Service). Environments without a keyring can fall
// back to the TIMEREPORT_API_KEY environment variable or the config file.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "timereport"
	// keyringUser is the account name used in the system keyring.
	keyringUser = "redmine-api-key"
)

// ErrKeyringUnavailable indicates the system keyring is not available.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// ErrNoAPIKey indicates no API key is stored anywhere.
var ErrNoAPIKey = errors.New("no Redmine API key configured")

// Store reads and writes the Redmine API key.
type Store interface {
	// Get returns the stored API key, or ErrNoAPIKey if none exists.
	Get() (string, error)

	// Set stores the API key, replacing any existing one.
	Set(key string) error

	// Delete removes the stored API key. Deleting a missing key is not
	// an error.
	Delete() error

	// Description returns a human-readable description of the storage
	// mechanism, for `timereport auth status`.
	Description() string
}

// KeyringStore stores the API key in the system keyring.
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore creates a new KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// Get retrieves the API key from the system keyring.
func (s *KeyringStore) Get() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := keyring.Get(keyringService, keyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoAPIKey
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

// Set stores the API key in the system keyring.
func (s *KeyringStore) Set(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key must not be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Delete removes the API key from the system keyring.
func (s *KeyringStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Description returns a description of the keyring storage.
func (s *KeyringStore) Description() string {
	return "system keyring (service \"timereport\")"
}

// EnvStore reads the API key from the TIMEREPORT_API_KEY environment
// variable. It is read-only.
type EnvStore struct{}

// Get returns the API key from the environment, or ErrNoAPIKey.
func (EnvStore) Get() (string, error) {
	if key := os.Getenv("TIMEREPORT_API_KEY"); key != "" {
		return key, nil
	}
	return "", ErrNoAPIKey
}

// Set is not supported for environment-based storage.
func (EnvStore) Set(string) error {
	return errors.New("cannot store API key in environment, use the keyring or config file")
}

// Delete is not supported for environment-based storage.
func (EnvStore) Delete() error {
	return errors.New("cannot delete API key from environment")
}

// Description returns a description of the environment storage.
func (EnvStore) Description() string {
	return "TIMEREPORT_API_KEY environment variable"
}

// StaticStore holds an API key in memory, sourced from the config file.
type StaticStore struct {
	Key string
}

// Get returns the static API key, or ErrNoAPIKey if empty.
func (s StaticStore) Get() (string, error) {
	if s.Key != "" {
		return s.Key, nil
	}
	return "", ErrNoAPIKey
}

// Set is not supported for config-file storage.
func (StaticStore) Set(string) error {
	return errors.New("cannot store API key via config store, edit the config file")
}

// Delete is not supported for config-file storage.
func (StaticStore) Delete() error {
	return errors.New("cannot delete API key via config store, edit the config file")
}

// Description returns a description of the config-file storage.
func (StaticStore) Description() string {
	return "config file"
}

// Resolve returns the API key from the first store that has one, along with
// that store's description. Stores are consulted in order.
func Resolve(stores ...Store) (string, string, error) {
	for _, store := range stores {
		key, err := store.Get()
		if err == nil {
			return key, store.Description(), nil
		}
		if !errors.Is(err, ErrNoAPIKey) && !errors.Is(err, ErrKeyringUnavailable) {
			return "", "", err
		}
	}
	return "", "", ErrNoAPIKey
}
