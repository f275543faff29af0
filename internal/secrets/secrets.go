// Package secrets resolves credentials from pluggable backends so config
// files never have to carry API keys or database passwords.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Well-known secret keys resolved during config loading.
const (
	KeyLLMAPIKey     = "llm_api_key"
	KeyGraphPassword = "graph_password"
)

// Provider is a read-only secret backend.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key string) (string, error)
	// Name returns the provider name.
	Name() string
}

// Config selects and configures the secret backend.
type Config struct {
	// Provider is one of "env" (default), "file", or "vault".
	Provider string
	// EnvPrefix for environment variable lookups (default "WEAVE_").
	EnvPrefix string
	// FilePath is the JSON secrets file for the file backend.
	FilePath string
	// Vault holds HashiCorp Vault settings for the vault backend.
	Vault VaultConfig
}

// Manager resolves secrets from a primary backend with an env fallback,
// caching successful lookups.
type Manager struct {
	primary  Provider
	fallback Provider

	mu    sync.RWMutex
	cache map[string]string
}

// NewManager builds a manager for cfg. A nil cfg means env-only resolution.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var primary Provider
	var err error
	switch cfg.Provider {
	case "vault":
		primary, err = NewVaultProvider(cfg.Vault)
	case "file":
		primary, err = NewFileProvider(cfg.FilePath)
	case "env", "":
		primary = NewEnvProvider(cfg.EnvPrefix)
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s secrets provider: %w", cfg.Provider, err)
	}

	return &Manager{
		primary:  primary,
		fallback: NewEnvProvider(cfg.EnvPrefix),
		cache:    make(map[string]string),
	}, nil
}

// Get resolves a secret, trying the primary backend then the env fallback.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	if val, ok := m.cache[key]; ok {
		m.mu.RUnlock()
		return val, nil
	}
	m.mu.RUnlock()

	if val, err := m.primary.Get(ctx, key); err == nil && val != "" {
		m.put(key, val)
		return val, nil
	}
	if val, err := m.fallback.Get(ctx, key); err == nil && val != "" {
		m.put(key, val)
		return val, nil
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

// Resolve returns current unchanged when it is already set, otherwise it
// looks the key up and falls back to empty when no backend has it. Config
// loading uses this so explicit values always win over secret backends.
func (m *Manager) Resolve(ctx context.Context, current, key string) string {
	if current != "" {
		return current
	}
	val, err := m.Get(ctx, key)
	if err != nil {
		return ""
	}
	return val
}

func (m *Manager) put(key, value string) {
	m.mu.Lock()
	m.cache[key] = value
	m.mu.Unlock()
}

// EnvProvider reads secrets from environment variables, trying the
// prefixed name first and the bare upper-cased key second.
type EnvProvider struct {
	prefix string
}

func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "WEAVE_"
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	envKey := p.prefix + strings.ToUpper(key)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	if val := os.Getenv(strings.ToUpper(key)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", envKey)
}
