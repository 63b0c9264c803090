// Package mcpoauth manages OAuth 2.0 authorization flows for MCP servers:
// config registration, CSRF-correlated auth URL generation, token storage,
// and a local callback listener for providers that redirect to a
// qualified-name endpoint rather than a standard token exchange.
package mcpoauth

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/lucidloop/deskagent/internal/errkind"
)

// Config is the OAuth registration for one server.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
}

// Token wraps golang.org/x/oauth2.Token's expiry convention: a zero Expiry
// means the token never expires.
type Token struct {
	oauth2.Token
}

// IsExpired reports whether the token is past its expiry, per the
// present-and-past convention; a zero Expiry never expires.
func (t Token) IsExpired() bool {
	if t.Expiry.IsZero() {
		return false
	}
	return time.Now().After(t.Expiry) || time.Now().Equal(t.Expiry)
}

// Manager registers OAuth configs per server, generates authorization
// URLs, and stores resulting tokens.
type Manager struct {
	mu           sync.Mutex
	configs      map[uuid.UUID]Config
	tokens       map[uuid.UUID]Token
	pendingFlows map[string]uuid.UUID
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		configs:      make(map[uuid.UUID]Config),
		tokens:       make(map[uuid.UUID]Token),
		pendingFlows: make(map[string]uuid.UUID),
	}
}

// RegisterConfig stores the OAuth config for serverID, replacing any
// existing registration.
func (m *Manager) RegisterConfig(serverID uuid.UUID, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[serverID] = cfg
}

// GetConfig returns the registered config for serverID, if any.
func (m *Manager) GetConfig(serverID uuid.UUID) (Config, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.configs[serverID]
	return cfg, ok
}

// StoreToken records tok as the current token for serverID.
func (m *Manager) StoreToken(serverID uuid.UUID, tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[serverID] = tok
}

// GetToken returns the stored token for serverID, if any.
func (m *Manager) GetToken(serverID uuid.UUID) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[serverID]
	return tok, ok
}

// HasValidToken reports whether serverID has a stored, non-expired token.
func (m *Manager) HasValidToken(serverID uuid.UUID) bool {
	tok, ok := m.GetToken(serverID)
	return ok && !tok.IsExpired()
}

// GenerateAuthURL builds the standard authorization-code URL for serverID
// and records a fresh CSRF state in the pending-flows map.
func (m *Manager) GenerateAuthURL(serverID uuid.UUID) (string, error) {
	m.mu.Lock()
	cfg, ok := m.configs[serverID]
	m.mu.Unlock()
	if !ok {
		return "", errkind.New(errkind.NotFound, "no OAuth config registered for server %s", serverID)
	}

	state := uuid.New().String()
	m.mu.Lock()
	m.pendingFlows[state] = serverID
	m.mu.Unlock()

	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", cfg.ClientID)
	v.Set("redirect_uri", cfg.RedirectURI)
	v.Set("state", state)
	if len(cfg.Scopes) > 0 {
		v.Set("scope", strings.Join(cfg.Scopes, " "))
	}

	return cfg.AuthURL + "?" + v.Encode(), nil
}

// GenerateQualifiedAuthURL builds the browser URL for providers that use
// a qualified-name redirect pattern instead of standard OAuth endpoints
// (e.g. "https://<host>/server/<qualifiedName>/authorize?redirect_uri=…").
func GenerateQualifiedAuthURL(baseURL, qualifiedName, redirectURI string) string {
	v := url.Values{}
	v.Set("redirect_uri", redirectURI)
	return strings.TrimSuffix(baseURL, "/") + "/server/" + url.PathEscape(qualifiedName) + "/authorize?" + v.Encode()
}

// LookupState returns the server ID awaiting the given CSRF state.
func (m *Manager) LookupState(state string) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.pendingFlows[state]
	return id, ok
}

// ClearState drops a pending flow, whether or not it exists.
func (m *Manager) ClearState(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingFlows, state)
}

// Delete removes both the config and any stored token for serverID.
func (m *Manager) Delete(serverID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.configs, serverID)
	delete(m.tokens, serverID)
}
