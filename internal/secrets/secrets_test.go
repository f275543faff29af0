package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("WEAVE_LLM_API_KEY", "env-key")
	t.Setenv("GRAPH_PASSWORD", "bare-pass")

	p := NewEnvProvider("")
	ctx := context.Background()

	got, err := p.Get(ctx, KeyLLMAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "env-key" {
		t.Errorf("prefixed lookup = %q, want %q", got, "env-key")
	}

	got, err = p.Get(ctx, KeyGraphPassword)
	if err != nil {
		t.Fatalf("Get bare: %v", err)
	}
	if got != "bare-pass" {
		t.Errorf("bare lookup = %q, want %q", got, "bare-pass")
	}

	if _, err := p.Get(ctx, "missing_key"); err == nil {
		t.Error("expected error for missing env var")
	}
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(`{"llm_api_key": "file-key"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	got, err := p.Get(context.Background(), KeyLLMAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "file-key" {
		t.Errorf("Get = %q, want %q", got, "file-key")
	}

	if _, err := p.Get(context.Background(), "nope"); err == nil {
		t.Error("expected error for absent key")
	}
}

func TestFileProviderMissingFile(t *testing.T) {
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := NewFileProvider(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestVaultProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/weave" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"data": {"data": {"llm_api_key": "vault-key"}}}`))
	}))
	defer srv.Close()

	p, err := NewVaultProvider(VaultConfig{Address: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewVaultProvider: %v", err)
	}

	got, err := p.Get(context.Background(), KeyLLMAPIKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "vault-key" {
		t.Errorf("Get = %q, want %q", got, "vault-key")
	}

	if _, err := p.Get(context.Background(), "absent"); err == nil {
		t.Error("expected error for key missing at path")
	}
}

func TestVaultProviderConfigValidation(t *testing.T) {
	if _, err := NewVaultProvider(VaultConfig{Token: "tok"}); err == nil {
		t.Error("expected error for missing address")
	}
	if _, err := NewVaultProvider(VaultConfig{Address: "http://localhost:8200"}); err == nil {
		t.Error("expected error for missing token")
	}
}

func TestManagerFallsBackToEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WEAVE_GRAPH_PASSWORD", "from-env")

	m, err := NewManager(&Config{Provider: "file", FilePath: path})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	got, err := m.Get(context.Background(), KeyGraphPassword)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "from-env" {
		t.Errorf("Get = %q, want %q", got, "from-env")
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	if _, err := NewManager(&Config{Provider: "consul"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("WEAVE_LLM_API_KEY", "resolved")

	m, err := NewManager(nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if got := m.Resolve(ctx, "explicit", KeyLLMAPIKey); got != "explicit" {
		t.Errorf("explicit value should win, got %q", got)
	}
	if got := m.Resolve(ctx, "", KeyLLMAPIKey); got != "resolved" {
		t.Errorf("Resolve = %q, want %q", got, "resolved")
	}
	if got := m.Resolve(ctx, "", "no_such_secret"); got != "" {
		t.Errorf("missing secret should resolve empty, got %q", got)
	}
}
