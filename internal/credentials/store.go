// Package credentials stores the single secret mailsyncd needs: the Notion
// integration token, kept in the OS keyring.
package credentials

import (
	"errors"
	"fmt"

	"github.com/chenyqthu/mailagent/internal/logging"
	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"
)

const (
	serviceName    = "mailagent"
	notionTokenKey = "notion-integration-token"
)

// ErrCredentialNotFound is returned when the requested secret has not been
// stored yet.
var ErrCredentialNotFound = errors.New("credential not found")

// Store wraps OS keyring access for the daemon's one secret. Unlike the
// multi-account, multi-secret GUI this pattern is adapted from, there is no
// encrypted-database fallback: a daemon with no working keyring has no
// other durable place to put a bearer token, so a missing keyring is a
// startup error rather than something to silently work around.
type Store struct {
	log zerolog.Logger
}

// NewStore creates a new credential store, verifying the OS keyring is
// reachable before returning.
func NewStore() (*Store, error) {
	log := logging.WithComponent("credentials")

	if !testKeyring() {
		return nil, fmt.Errorf("OS keyring unavailable: mailsyncd requires Keychain access to store the Notion token")
	}

	log.Info().Msg("OS keyring available")
	return &Store{log: log}, nil
}

// testKeyring checks if the OS keyring is available and functional.
func testKeyring() bool {
	const testKey = "mailagent-keyring-check"
	if err := gokeyring.Set(serviceName, testKey, "ok"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

// SetNotionToken stores the Notion integration token.
func (s *Store) SetNotionToken(token string) error {
	if token == "" {
		return fmt.Errorf("notion token must not be empty")
	}
	if err := gokeyring.Set(serviceName, notionTokenKey, token); err != nil {
		return fmt.Errorf("failed to store Notion token in keyring: %w", err)
	}
	s.log.Debug().Msg("Notion token stored in OS keyring")
	return nil
}

// GetNotionToken retrieves the Notion integration token.
func (s *Store) GetNotionToken() (string, error) {
	token, err := gokeyring.Get(serviceName, notionTokenKey)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read Notion token from keyring: %w", err)
	}
	return token, nil
}

// DeleteNotionToken removes the stored Notion token.
func (s *Store) DeleteNotionToken() error {
	err := gokeyring.Delete(serviceName, notionTokenKey)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("failed to delete Notion token from keyring: %w", err)
	}
	return nil
}
