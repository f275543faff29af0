package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	warnings := cfg.Validate()
	if len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{
		LLM: LLMConfig{Provider: "openai"},
	}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool // true = should warn
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: LLMConfig{Temperature: tt.temp}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "temperature") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_NoneProvider(t *testing.T) {
	// "none" provider with no API key should not warn
	cfg := &Config{LLM: LLMConfig{Provider: "none"}}
	warnings := cfg.Validate()
	for _, w := range warnings {
		if strings.Contains(w, "api_key") {
			t.Error("'none' provider should not warn about missing api_key")
		}
	}
}

func TestValidate_Window(t *testing.T) {
	tests := []struct {
		name      string
		low, high float64
		want      bool
	}{
		{"unset", 0, 0, false},
		{"valid", 0.5, 0.7, false},
		{"inverted", 0.7, 0.5, true},
		{"empty", 0.6, 0.6, true},
		{"above_one", 0.5, 1.2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Analysis: AnalysisConfig{WindowLow: tt.low, WindowHigh: tt.high}}
			warnings := cfg.Validate()
			hasWarn := false
			for _, w := range warnings {
				if strings.Contains(w, "window") {
					hasWarn = true
				}
			}
			if hasWarn != tt.want {
				t.Errorf("window [%.1f, %.1f]: hasWarn=%v, want=%v", tt.low, tt.high, hasWarn, tt.want)
			}
		})
	}
}

func TestValidate_WeightSum(t *testing.T) {
	cfg := &Config{Analysis: AnalysisConfig{
		StructuralWeight:  0.4,
		SemanticWeight:    0.3,
		FeasibilityWeight: 0.2,
		NoveltyWeight:     0.2,
	}}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "weights") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about weight sum")
	}

	cfg.Analysis.NoveltyWeight = 0.1
	for _, w := range cfg.Validate() {
		if strings.Contains(w, "weights") {
			t.Errorf("weights summing to 1.0 should not warn: %s", w)
		}
	}
}

func TestValidate_Expertise(t *testing.T) {
	cfg := &Config{Analysis: AnalysisConfig{
		Expertise: map[string]float64{"ml": 0.8, "physics": 1.5},
	}}
	warnings := cfg.Validate()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "physics") {
			found = true
		}
	}
	if !found {
		t.Error("expected warning about out-of-range expertise")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Port != 6334 {
		t.Errorf("vector port = %d, want 6334", cfg.Vector.Port)
	}
	if cfg.Temporal.TaskQueue != "weave-analysis" {
		t.Errorf("task queue = %s", cfg.Temporal.TaskQueue)
	}
	if cfg.Snapshot.Dir == "" {
		t.Error("snapshot dir default missing")
	}
}

func TestLoadDetectorThresholds(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	body := "analysis:\n" +
		"  max_shortcut_pairs: 200\n" +
		"  hierarchy_cohesion: 0.3\n" +
		"  organizer_fraction: 0.5\n" +
		"  bridge_edge_fraction: 0.4\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a := cfg.Analysis
	if a.MaxShortcutPairs != 200 {
		t.Errorf("max_shortcut_pairs = %d, want 200", a.MaxShortcutPairs)
	}
	if a.HierarchyCohesion != 0.3 {
		t.Errorf("hierarchy_cohesion = %v, want 0.3", a.HierarchyCohesion)
	}
	if a.OrganizerFraction != 0.5 {
		t.Errorf("organizer_fraction = %v, want 0.5", a.OrganizerFraction)
	}
	if a.BridgeEdgeFraction != 0.4 {
		t.Errorf("bridge_edge_fraction = %v, want 0.4", a.BridgeEdgeFraction)
	}
}

func TestLoadResolvesSecretsFromFile(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(secretsPath, []byte(`{"llm_api_key": "sk-from-file", "graph_password": "n4j"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("llm:\n  provider: openai\nsecrets:\n  provider: file\n  file_path: %s\n", secretsPath)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-from-file" {
		t.Errorf("api key = %q, want %q", cfg.LLM.APIKey, "sk-from-file")
	}
	if cfg.Graph.Password != "n4j" {
		t.Errorf("graph password = %q, want %q", cfg.Graph.Password, "n4j")
	}
}

func TestLoadExplicitKeyWinsOverSecrets(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.json")
	if err := os.WriteFile(secretsPath, []byte(`{"llm_api_key": "sk-from-file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("llm:\n  provider: openai\n  api_key: sk-explicit\nsecrets:\n  provider: file\n  file_path: %s\n", secretsPath)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-explicit" {
		t.Errorf("api key = %q, want %q", cfg.LLM.APIKey, "sk-explicit")
	}
}
