package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/weavenn/weave/internal/secrets"
)

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Usage    UsageConfig    `mapstructure:"usage"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Log      LogConfig      `mapstructure:"log"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	// RequestsPerMinute and TokensPerMinute enable client-side rate
	// limiting when positive.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	TokensPerMinute   int `mapstructure:"tokens_per_minute"`
	// TimeoutSeconds bounds each generation call; a timed-out call gets
	// one retry before the suggestion is marked failed.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// GraphConfig points at the Neo4j database holding the knowledge graph.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// VectorConfig points at the Qdrant collection used for similarity search.
type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// UsageConfig locates the suggestion-outcome log.
type UsageConfig struct {
	Path string `mapstructure:"path"`
}

// SnapshotConfig locates the local snapshot archive.
type SnapshotConfig struct {
	Dir string `mapstructure:"dir"`
}

// AnalysisConfig tunes detection, scoring, and generation.
type AnalysisConfig struct {
	Seed           int64 `mapstructure:"seed"`
	OrphanDegree   int   `mapstructure:"orphan_degree"`
	HubDegree      int   `mapstructure:"hub_degree"`
	MaxSuggestGaps int   `mapstructure:"max_suggest_gaps"`

	LongPathHops       int     `mapstructure:"long_path_hops"`
	MinCommunitySize   int     `mapstructure:"min_community_size"`
	ShortcutSimilarity float64 `mapstructure:"shortcut_similarity"`
	MaxShortcutPairs   int     `mapstructure:"max_shortcut_pairs"`
	HierarchyDegree    int     `mapstructure:"hierarchy_degree"`
	HierarchyCohesion  float64 `mapstructure:"hierarchy_cohesion"`
	OrganizerFraction  float64 `mapstructure:"organizer_fraction"`
	BridgeEdgeFraction float64 `mapstructure:"bridge_edge_fraction"`

	StructuralWeight  float64 `mapstructure:"structural_weight"`
	SemanticWeight    float64 `mapstructure:"semantic_weight"`
	FeasibilityWeight float64 `mapstructure:"feasibility_weight"`
	NoveltyWeight     float64 `mapstructure:"novelty_weight"`

	WindowLow           float64 `mapstructure:"window_low"`
	WindowHigh          float64 `mapstructure:"window_high"`
	ValidationThreshold float64 `mapstructure:"validation_threshold"`

	// Expertise maps tags to the user's familiarity in [0,1], used by
	// feasibility scoring and validation.
	Expertise map[string]float64 `mapstructure:"expertise"`
}

// SecretsConfig selects the backend that fills in credentials left empty
// in the config file: LLM api_key and graph password.
type SecretsConfig struct {
	// Provider is "env" (default), "file", or "vault".
	Provider string `mapstructure:"provider"`
	// FilePath is the JSON secrets file for the file backend.
	FilePath string `mapstructure:"file_path"`

	VaultAddress   string `mapstructure:"vault_address"`
	VaultToken     string `mapstructure:"vault_token"`
	VaultMount     string `mapstructure:"vault_mount"`
	VaultPath      string `mapstructure:"vault_path"`
	VaultTimeoutMS int    `mapstructure:"vault_timeout_ms"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// AuditPath enables the JSONL audit log when set.
	AuditPath string `mapstructure:"audit_path"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	a := c.Analysis
	if a.WindowLow != 0 || a.WindowHigh != 0 {
		if a.WindowLow >= a.WindowHigh {
			warnings = append(warnings, fmt.Sprintf("acceptance window [%.2f, %.2f] is empty", a.WindowLow, a.WindowHigh))
		}
		if a.WindowLow < 0 || a.WindowHigh > 1 {
			warnings = append(warnings, fmt.Sprintf("acceptance window [%.2f, %.2f] exceeds [0, 1]", a.WindowLow, a.WindowHigh))
		}
	}
	if sum := a.StructuralWeight + a.SemanticWeight + a.FeasibilityWeight + a.NoveltyWeight; sum != 0 && (sum < 0.99 || sum > 1.01) {
		warnings = append(warnings, fmt.Sprintf("scoring weights sum to %.2f, expected 1.0", sum))
	}
	for tag, level := range a.Expertise {
		if level < 0 || level > 1 {
			warnings = append(warnings, fmt.Sprintf("expertise for tag '%s' is %.2f, outside [0, 1]", tag, level))
		}
	}

	return warnings
}

// Load reads configuration from file and environment. The file is optional;
// with an empty path, defaults and WEAVE_* environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := resolveSecrets(&cfg); err != nil {
		return nil, err
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// resolveSecrets fills credentials left empty by the file and environment
// from the configured secrets backend. Explicit config values win.
func resolveSecrets(cfg *Config) error {
	s := cfg.Secrets
	mgr, err := secrets.NewManager(&secrets.Config{
		Provider: s.Provider,
		FilePath: s.FilePath,
		Vault: secrets.VaultConfig{
			Address:    s.VaultAddress,
			Token:      s.VaultToken,
			MountPath:  s.VaultMount,
			SecretPath: s.VaultPath,
			Timeout:    time.Duration(s.VaultTimeoutMS) * time.Millisecond,
		},
	})
	if err != nil {
		return fmt.Errorf("secrets backend: %w", err)
	}

	ctx := context.Background()
	cfg.LLM.APIKey = mgr.Resolve(ctx, cfg.LLM.APIKey, secrets.KeyLLMAPIKey)
	cfg.Graph.Password = mgr.Resolve(ctx, cfg.Graph.Password, secrets.KeyGraphPassword)
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("graph.uri", "bolt://localhost:7687")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "weave_notes")
	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "weave-analysis")
	v.SetDefault("usage.path", "weave-usage.db")
	v.SetDefault("snapshot.dir", ".weave/snapshots")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("secrets.provider", "env")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
