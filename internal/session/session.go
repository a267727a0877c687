// Package session persists the device-side login state: the issued token,
// the user snapshot, and the client settings, in a single config file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/formpilot/deviceauth/internal/models"
)

// expirySkew is subtracted from the token deadline so callers never hand
// out a token about to expire mid-request.
const expirySkew = 5 * time.Minute

var (
	// ErrNoValidToken means the caller must run the login flow again.
	ErrNoValidToken = errors.New("no valid token, log in again")

	// ErrRefreshUnsupported is the refresh outcome: expiry always forces a
	// full re-login.
	ErrRefreshUnsupported = errors.New("token refresh is not supported")
)

// File is the on-disk shape of the client configuration.
type File struct {
	ServerURL       string       `json:"server_url"`
	AutoOpenBrowser bool         `json:"auto_open_browser"`
	AccessToken     string       `json:"access_token,omitempty"`
	RefreshToken    string       `json:"refresh_token,omitempty"`
	TokenExpiresAt  int64        `json:"token_expires_at,omitempty"` // unix seconds
	User            *models.User `json:"user,omitempty"`
}

// Manager owns the config file: read once at construction, written
// atomically on every mutation.
type Manager struct {
	mu   sync.Mutex
	path string
	data File
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".formpilot", "config.json"), nil
}

// NewManager loads the config file at path. A missing file yields defaults;
// a corrupt file is an error rather than a silent reset.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path: path,
		data: File{
			ServerURL:       "http://localhost:8080",
			AutoOpenBrowser: true,
		},
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(raw, &m.data); err != nil {
		return nil, fmt.Errorf("config file %s is corrupt: %w", path, err)
	}

	return m, nil
}

// Store persists a successful login, overwriting any prior session.
func (m *Manager) Store(token *models.TokenResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.AccessToken = token.AccessToken
	m.data.RefreshToken = token.RefreshToken
	m.data.TokenExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second).Unix()
	user := token.User
	m.data.User = &user

	return m.save()
}

// GetAccessToken returns the stored token while it is comfortably inside
// its lifetime. Past the skew it attempts a refresh, which is unsupported,
// so callers get ErrNoValidToken and must re-run login.
func (m *Manager) GetAccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data.AccessToken == "" {
		return "", ErrNoValidToken
	}
	if time.Now().Before(time.Unix(m.data.TokenExpiresAt, 0).Add(-expirySkew)) {
		return m.data.AccessToken, nil
	}

	if err := m.refresh(); err != nil {
		return "", ErrNoValidToken
	}
	return m.data.AccessToken, nil
}

// IsAuthenticated reports token presence within its raw lifetime.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.data.AccessToken != "" &&
		time.Now().Before(time.Unix(m.data.TokenExpiresAt, 0))
}

// Logout deletes all session fields. Idempotent.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data.AccessToken = ""
	m.data.RefreshToken = ""
	m.data.TokenExpiresAt = 0
	m.data.User = nil

	return m.save()
}

// User returns the persisted user snapshot, or nil when logged out.
func (m *Manager) User() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data.User == nil {
		return nil
	}
	user := *m.data.User
	return &user
}

// ServerURL returns the configured server base URL.
func (m *Manager) ServerURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.ServerURL
}

// SetServerURL persists a new server base URL.
func (m *Manager) SetServerURL(url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.ServerURL = url
	return m.save()
}

// AutoOpenBrowser reports whether login should launch the browser.
func (m *Manager) AutoOpenBrowser() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AutoOpenBrowser
}

// TokenExpiresAt returns the absolute token deadline, zero when logged out.
func (m *Manager) TokenExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data.TokenExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(m.data.TokenExpiresAt, 0)
}

// refresh is deliberately unsupported: the server rejects the refresh
// grant, so the client does not pretend otherwise.
func (m *Manager) refresh() error {
	return ErrRefreshUnsupported
}

// save writes the config atomically: write a sibling temp file, then
// rename over the target, so a crash never leaves a partial session.
func (m *Manager) save() error {
	payload, err := json.MarshalIndent(m.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp config: %w", err)
	}

	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
