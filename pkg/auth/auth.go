// Package auth resolves the acting user and stores market data credentials
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// User is the authenticated principal every ledger call is scoped to
type User struct {
	ID string `json:"id"`
}

// Resolver returns the current user or trading.ErrNotAuthenticated
type Resolver interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// Static always resolves to the same user id. An empty id resolves to
// ErrNotAuthenticated.
type Static string

// CurrentUser implements Resolver
func (s Static) CurrentUser(ctx context.Context) (*User, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return nil, trading.ErrNotAuthenticated
	}
	return &User{ID: id}, nil
}

// Env resolves the user from an environment variable
type Env string

// DefaultUserEnv is the variable read by Env("")
const DefaultUserEnv = "SIGNALDESK_USER"

// CurrentUser implements Resolver
func (e Env) CurrentUser(ctx context.Context) (*User, error) {
	key := string(e)
	if key == "" {
		key = DefaultUserEnv
	}
	return Static(os.Getenv(key)).CurrentUser(ctx)
}

// Chain tries each resolver in order and returns the first user found
type Chain []Resolver

// CurrentUser implements Resolver
func (c Chain) CurrentUser(ctx context.Context) (*User, error) {
	for _, r := range c {
		u, err := r.CurrentUser(ctx)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, trading.ErrNotAuthenticated) {
			return nil, err
		}
	}
	return nil, trading.ErrNotAuthenticated
}

// UserID is a convenience returning the current user id
func UserID(ctx context.Context, r Resolver) (string, error) {
	u, err := r.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// Provider names a market data provider that needs credentials
type Provider string

const (
	ProviderAlpaca Provider = "alpaca"
)

// Credentials holds API credentials for a provider
type Credentials struct {
	Provider  Provider `json:"provider"`
	APIKey    string   `json:"api_key"`
	APISecret string   `json:"api_secret"`
	BaseURL   string   `json:"base_url,omitempty"`
}

// Manager keeps provider credentials in a 0600 JSON file
type Manager struct {
	mu          sync.RWMutex
	credentials map[Provider]*Credentials
	configDir   string
}

// NewManager creates a manager rooted at configDir (~/.signaldesk when empty)
// and loads any saved credentials
func NewManager(configDir string) *Manager {
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".signaldesk")
	}

	m := &Manager{
		credentials: make(map[Provider]*Credentials),
		configDir:   configDir,
	}
	m.loadCredentials()
	return m
}

// GetCredentials returns credentials for a provider
func (m *Manager) GetCredentials(provider Provider) (*Credentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	creds, exists := m.credentials[provider]
	if !exists {
		return nil, fmt.Errorf("no credentials for %s", provider)
	}
	c := *creds
	return &c, nil
}

// SetCredentials stores credentials for a provider and saves them
func (m *Manager) SetCredentials(creds *Credentials) error {
	if creds.APIKey == "" || creds.APISecret == "" {
		return &trading.ValidationError{Field: "api_key", Message: "key and secret are required"}
	}
	c := *creds
	m.mu.Lock()
	m.credentials[creds.Provider] = &c
	m.mu.Unlock()
	return m.saveCredentials()
}

// Logout removes credentials for a provider
func (m *Manager) Logout(provider Provider) error {
	m.mu.Lock()
	delete(m.credentials, provider)
	m.mu.Unlock()
	return m.saveCredentials()
}

// ListProviders returns all providers with stored credentials
func (m *Manager) ListProviders() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()

	providers := make([]Provider, 0, len(m.credentials))
	for p := range m.credentials {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// Resolve fills empty key, secret or base URL from stored credentials.
// Values already set, typically from the environment, win.
func (m *Manager) Resolve(provider Provider, key, secret, baseURL string) (string, string, string) {
	creds, err := m.GetCredentials(provider)
	if err != nil {
		return key, secret, baseURL
	}
	if key == "" {
		key = creds.APIKey
	}
	if secret == "" {
		secret = creds.APISecret
	}
	if baseURL == "" {
		baseURL = creds.BaseURL
	}
	return key, secret, baseURL
}

// credentialsFile returns the path to the credentials file
func (m *Manager) credentialsFile() string {
	return filepath.Join(m.configDir, "credentials.json")
}

// loadCredentials loads credentials from file
func (m *Manager) loadCredentials() {
	data, err := os.ReadFile(m.credentialsFile())
	if err != nil {
		return
	}

	var creds map[Provider]*Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return
	}

	m.mu.Lock()
	m.credentials = creds
	m.mu.Unlock()
}

// saveCredentials writes credentials to file
func (m *Manager) saveCredentials() error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m.credentials, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	tmp := m.credentialsFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp, m.credentialsFile())
}
