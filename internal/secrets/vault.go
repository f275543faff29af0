package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// VaultConfig configures the HashiCorp Vault backend (KV v2).
type VaultConfig struct {
	Address    string        // Vault server, e.g. "http://localhost:8200"
	Token      string        // authentication token
	MountPath  string        // KV engine mount (default "secret")
	SecretPath string        // path under the mount (default "weave")
	Timeout    time.Duration // per-request bound (default 10s)
}

// VaultProvider reads from a single KV v2 path. All of weave's secrets live
// as keys of one Vault secret, so every Get fetches the same path and picks
// the requested key out of the map.
type VaultProvider struct {
	url    string
	token  string
	path   string
	client *http.Client
}

func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address required")
	}
	if cfg.Token == "" {
		return nil, errors.New("vault token required")
	}
	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	path := cfg.SecretPath
	if path == "" {
		path = "weave"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	// KV v2 prefixes the read endpoint with /data/.
	url := fmt.Sprintf("%s/v1/%s/data/%s", strings.TrimSuffix(cfg.Address, "/"), mount, path)
	return &VaultProvider{
		url:    url,
		token:  cfg.Token,
		path:   path,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

// kvReadResponse is the KV v2 read envelope: the secret's key/value map
// sits under data.data.
type kvReadResponse struct {
	Data struct {
		Data map[string]any `json:"data"`
	} `json:"data"`
}

func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Vault-Token", p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vault read: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("vault path %s does not exist", p.path)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("vault read: status %d: %s", resp.StatusCode, body)
	}

	var envelope kvReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("vault read: %w", err)
	}

	val, ok := envelope.Data.Data[key]
	if !ok {
		return "", fmt.Errorf("vault path %s has no key %q", p.path, key)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprint(val), nil
}
