package tokenfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists the bearer token on disk. It is the only client-side state
// that survives a restart; everything else is re-resolved from the backend.
type Store struct {
	path string
}

// New creates the parent directory if missing.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("token file path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create token dir: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Save writes the token, replacing any previous one.
func (s *Store) Save(token string) error {
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// Load returns the persisted token. A missing file means no session; that is
// not an error.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Clear removes the persisted token. Clearing an absent token is a no-op.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
