package portal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SessionStore persists the session as JSON under a fixed file path and
// notifies a subscriber when the session is invalidated by the server.
// It is not safe for concurrent use; the portal runs its operations on a
// single logical task.
type SessionStore struct {
	path    string
	session *Session

	// OnInvalidated is called at most once per invalidation, after the
	// session has been cleared. The root of the application subscribes
	// and redirects to login.
	OnInvalidated func()

	invalidated bool
}

// NewSessionStore returns a store backed by the given file path. The
// session is not loaded; call Load explicitly.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// DefaultSessionPath returns the conventional session file location
// under the user's configuration directory.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(dir, "requestdesk", "session.json"), nil
}

// Load reads the persisted session from disk. A missing file is not an
// error; it simply means no session is stored.
func (s *SessionStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.session = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session file: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return fmt.Errorf("decoding session file: %w", err)
	}
	s.session = &sess
	s.invalidated = false
	return nil
}

// Save persists the session to disk and makes it current.
func (s *SessionStore) Save(sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	s.session = &sess
	s.invalidated = false
	return nil
}

// Clear removes the session from memory and disk. Used on logout.
func (s *SessionStore) Clear() error {
	s.session = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// Current returns the stored session, or nil when none exists.
func (s *SessionStore) Current() *Session {
	return s.session
}

// Invalidate clears the session and fires OnInvalidated. Repeated calls
// for the same invalidation are collapsed; a fresh Save or Load arms the
// hook again.
func (s *SessionStore) Invalidate() {
	hadSession := s.session != nil
	_ = s.Clear()
	if s.invalidated {
		return
	}
	s.invalidated = true
	if hadSession && s.OnInvalidated != nil {
		s.OnInvalidated()
	}
}
