package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/weavenn/weave/internal/analysis"
	"github.com/weavenn/weave/internal/config"
	"github.com/weavenn/weave/internal/gaps"
	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/graph/neo4j"
	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/llmutil"
	"github.com/weavenn/weave/internal/observability"
	"github.com/weavenn/weave/internal/snapshot"
	"github.com/weavenn/weave/internal/suggest"
	"github.com/weavenn/weave/internal/topology"
	"github.com/weavenn/weave/internal/usage"
	"github.com/weavenn/weave/internal/vector"
	"github.com/weavenn/weave/internal/vector/qdrant"
)

// Exit codes: 0 success, 1 usage or infrastructure error, 2 empty graph,
// 3 analysis completed with partial results.
const (
	exitEmptyGraph = 2
	exitPartial    = 3
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func main() {
	var (
		configPath string
		inputPath  string
		jsonOut    bool
	)

	rootCmd := &cobra.Command{
		Use:           "weave",
		Short:         "Knowledge graph topology analysis and gap filling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional)")
	rootCmd.PersistentFlags().StringVar(&inputPath, "input", "", "Vault export file (default: live graph database)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	var (
		reportPath string
		tag        string
	)
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze graph topology and suggest gap fills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), configPath, inputPath, reportPath, tag, jsonOut)
		},
	}
	analyzeCmd.Flags().StringVar(&reportPath, "report", "", "Write full JSON report to file")
	analyzeCmd.Flags().StringVar(&tag, "tag", "", "Tag for the archived snapshot")

	var (
		gapType  string
		minScore float64
	)
	gapsCmd := &cobra.Command{
		Use:   "gaps",
		Short: "List detected gaps ranked by score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGaps(cmd.Context(), configPath, inputPath, gapType, minScore, jsonOut)
		},
	}
	gapsCmd.Flags().StringVar(&gapType, "type", "", "Filter by gap type (bridge, shortcut, hierarchy, orphan)")
	gapsCmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum total score")

	var suggestionID string
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a suggestion from a report to the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecision(cmd.Context(), configPath, reportPath, suggestionID, true)
		},
	}
	applyCmd.Flags().StringVar(&reportPath, "report", "", "Report file from a previous analyze run")
	applyCmd.Flags().StringVar(&suggestionID, "id", "", "Suggestion ID")
	_ = applyCmd.MarkFlagRequired("report")
	_ = applyCmd.MarkFlagRequired("id")

	rejectCmd := &cobra.Command{
		Use:   "reject",
		Short: "Record that a suggestion was rejected",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecision(cmd.Context(), configPath, reportPath, suggestionID, false)
		},
	}
	rejectCmd.Flags().StringVar(&reportPath, "report", "", "Report file from a previous analyze run")
	rejectCmd.Flags().StringVar(&suggestionID, "id", "", "Suggestion ID")
	_ = rejectCmd.MarkFlagRequired("report")
	_ = rejectCmd.MarkFlagRequired("id")

	var statsKey string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show suggestion acceptance statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), configPath, statsKey, jsonOut)
		},
	}
	statsCmd.Flags().StringVar(&statsKey, "key", "", "Gap signature or suggestion ID")
	_ = statsCmd.MarkFlagRequired("key")

	var (
		impactSig string
		beforeID  string
		afterID   string
	)
	impactCmd := &cobra.Command{
		Use:   "impact",
		Short: "Measure the realized impact of an applied suggestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(cmd.Context(), configPath, impactSig, beforeID, afterID, jsonOut)
		},
	}
	impactCmd.Flags().StringVar(&impactSig, "sig", "", "Gap signature")
	impactCmd.Flags().StringVar(&beforeID, "before", "", "Snapshot id or tag before the change")
	impactCmd.Flags().StringVar(&afterID, "after", "", "Snapshot id or tag after the change (default: live graph)")
	_ = impactCmd.MarkFlagRequired("sig")
	_ = impactCmd.MarkFlagRequired("before")

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Embed all notes into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), configPath, inputPath)
		},
	}

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List archived graph snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshots(configPath, jsonOut)
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (run without LLM — no bridge concept generation)")
			fmt.Println()
			fmt.Println("Configure in weave.yaml or via environment:")
			fmt.Println("  WEAVE_LLM_PROVIDER=anthropic")
			fmt.Println("  WEAVE_LLM_API_KEY=sk-ant-...")
			fmt.Println("  WEAVE_LLM_MODEL=claude-sonnet-4-20250514")
		},
	}

	rootCmd.AddCommand(analyzeCmd, gapsCmd, applyCmd, rejectCmd, statsCmd, impactCmd, indexCmd, snapshotsCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)
	return factory.Create(llm.ProviderConfig{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		TokensPerMinute:   cfg.LLM.TokensPerMinute,
	})
}

func newEngine(cfg *config.Config, provider llm.Provider, sim vector.Similarity, history suggest.History) *analysis.Engine {
	a := cfg.Analysis
	return analysis.New(analysis.Config{
		Detector: gaps.Config{
			LongPathHops:       a.LongPathHops,
			MinCommunitySize:   a.MinCommunitySize,
			ShortcutSimilarity: a.ShortcutSimilarity,
			MaxShortcutPairs:   a.MaxShortcutPairs,
			HierarchyDegree:    a.HierarchyDegree,
			HierarchyCohesion:  a.HierarchyCohesion,
			OrganizerFraction:  a.OrganizerFraction,
			BridgeEdgeFraction: a.BridgeEdgeFraction,
		},
		Weights: gaps.Weights{
			Structural:  a.StructuralWeight,
			Semantic:    a.SemanticWeight,
			Feasibility: a.FeasibilityWeight,
			Novelty:     a.NoveltyWeight,
		},
		Generator: suggest.Config{
			WindowLow:  a.WindowLow,
			WindowHigh: a.WindowHigh,
			Seed:       a.Seed,
		},
		Validator: suggest.ValidatorConfig{
			Threshold:  a.ValidationThreshold,
			WindowLow:  a.WindowLow,
			WindowHigh: a.WindowHigh,
		},
		OrphanDegree:   a.OrphanDegree,
		HubDegree:      a.HubDegree,
		Seed:           a.Seed,
		MaxSuggestGaps: a.MaxSuggestGaps,
		Expertise:      a.Expertise,
	}, provider, sim, nil, history)
}

// loadGraph reads the vault export file when --input is given, otherwise
// connects to the live graph database. The caller owns the cleanup func.
func loadGraph(ctx context.Context, cfg *config.Config, inputPath string) (*graph.Snapshot, func(), error) {
	if inputPath != "" {
		snap, dropped, err := graph.LoadFile(inputPath)
		if err != nil {
			return nil, nil, err
		}
		if dropped > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d unresolved links dropped\n", dropped)
		}
		return snap, func() {}, nil
	}

	vault, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("connect graph database: %w", err)
	}
	snap, err := vault.LoadSnapshot(ctx)
	if err != nil {
		vault.Close(ctx)
		return nil, nil, err
	}
	return snap, func() { vault.Close(ctx) }, nil
}

// newAudit opens the JSONL audit log when configured. A nil logger is
// valid and drops every event.
func newAudit(cfg *config.Config) *observability.AuditLogger {
	if cfg.Log.AuditPath == "" {
		return nil
	}
	audit, err := observability.NewFileAuditLogger(cfg.Log.AuditPath, uuid.NewString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: audit log disabled: %v\n", err)
		return nil
	}
	return audit
}

// newSimilarity builds the embedding-backed similarity port, or nil when no
// provider with embeddings is configured.
func newSimilarity(provider llm.Provider) vector.Similarity {
	if provider == nil {
		return nil
	}
	return vector.NewEmbeddingSimilarity(provider)
}

func runAnalyze(ctx context.Context, configPath, inputPath, reportPath, tag string, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	snap, cleanup, err := loadGraph(ctx, cfg, inputPath)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	if err != nil {
		return err
	}
	if tag == "" {
		tag = "analyze"
	}
	if _, err := store.Save(snap, tag); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}

	tracker, err := usage.Open(cfg.Usage.Path)
	if err != nil {
		return err
	}
	defer tracker.Close()

	audit := newAudit(cfg)
	defer audit.Close()

	engine := newEngine(cfg, provider, newSimilarity(provider), tracker)
	report, err := engine.Analyze(ctx, snap)
	if err != nil {
		audit.LogAnalysis(snap.ContentHash(), 0, err)
		if errors.Is(err, graph.ErrEmptyGraph) {
			return &exitError{code: exitEmptyGraph, err: err}
		}
		return err
	}
	audit.LogAnalysis(report.SnapshotHash, report.Duration, nil)

	if reportPath != "" {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(reportPath, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if jsonOut {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		report.PrintSummary(os.Stdout)
	}

	if report.Partial {
		return &exitError{code: exitPartial, err: errors.New("analysis completed with partial results")}
	}
	return nil
}

func runGaps(ctx context.Context, configPath, inputPath, gapType string, minScore float64, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	snap, cleanup, err := loadGraph(ctx, cfg, inputPath)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}

	engine := newEngine(cfg, provider, newSimilarity(provider), nil)
	report, err := engine.Analyze(ctx, snap)
	if errors.Is(err, graph.ErrEmptyGraph) {
		return &exitError{code: exitEmptyGraph, err: err}
	}
	if err != nil {
		return err
	}

	filtered := report.FilterGaps(gaps.Type(gapType), minScore)
	if jsonOut {
		data, err := json.MarshalIndent(filtered, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(filtered) == 0 {
		fmt.Println("No gaps found.")
		return nil
	}
	fmt.Printf("%-9s %-9s %-7s %s\n", "PRIORITY", "TYPE", "SCORE", "ENDPOINTS")
	for _, g := range filtered {
		endpoints := g.Source
		if g.Target != "" {
			endpoints += " ↔ " + g.Target
		}
		fmt.Printf("%-9s %-9s %-7.3f %s\n", g.Priority, g.Type, g.Score.Total, endpoints)
	}
	return nil
}

// runDecision applies or rejects one suggestion out of a saved report.
func runDecision(ctx context.Context, configPath, reportPath, suggestionID string, apply bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	var report analysis.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("parse report: %w", err)
	}

	var sug *suggest.Suggestion
	var predicted float64
	for i := range report.Suggestions {
		if report.Suggestions[i].ID == suggestionID {
			sug = &report.Suggestions[i]
			break
		}
	}
	if sug == nil {
		return fmt.Errorf("suggestion %s not found in %s", suggestionID, reportPath)
	}
	for _, g := range report.Gaps {
		if g.Signature() == sug.GapSignature {
			predicted = g.Score.Structural
			break
		}
	}

	tracker, err := usage.Open(cfg.Usage.Path)
	if err != nil {
		return err
	}
	defer tracker.Close()

	audit := newAudit(cfg)
	defer audit.Close()

	if !apply {
		err := analysis.Reject(ctx, tracker, *sug)
		audit.LogSuggestionDecision(suggestionID, false, err)
		if err != nil {
			return err
		}
		fmt.Printf("Rejected suggestion %s\n", suggestionID)
		return nil
	}

	vault, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		return fmt.Errorf("connect graph database: %w", err)
	}
	defer vault.Close(ctx)

	// Archive the pre-change state so impact can be measured later.
	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	if err != nil {
		return err
	}
	before, err := vault.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if _, err := store.Save(before, "pre-apply:"+suggestionID); err != nil {
		return fmt.Errorf("archive snapshot: %w", err)
	}

	err = analysis.Apply(ctx, vault, tracker, *sug, predicted)
	audit.LogSuggestionDecision(suggestionID, true, err)
	if err != nil {
		return err
	}
	fmt.Printf("Applied suggestion %s (%s)\n", suggestionID, sug.Kind)
	return nil
}

func runStats(ctx context.Context, configPath, key string, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	tracker, err := usage.Open(cfg.Usage.Path)
	if err != nil {
		return err
	}
	defer tracker.Close()

	rate, err := tracker.AcceptanceRate(ctx, key)
	if err != nil {
		return err
	}
	history, err := tracker.History(ctx, key)
	if err != nil {
		return err
	}

	if jsonOut {
		out := struct {
			Key            string         `json:"key"`
			AcceptanceRate float64        `json:"acceptance_rate"`
			History        []usage.Record `json:"history,omitempty"`
		}{key, rate, history}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Key:             %s\n", key)
	fmt.Printf("Acceptance rate: %.2f\n", rate)
	fmt.Printf("Decisions:       %d\n", len(history))
	for _, rec := range history {
		fmt.Printf("  %s  %-9s %s\n", rec.CreatedAt.Format(time.RFC3339), rec.Outcome, rec.SuggestionID)
	}
	return nil
}

func runImpact(ctx context.Context, configPath, sig, beforeID, afterID string, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	if err != nil {
		return err
	}
	before, err := loadArchived(store, beforeID)
	if err != nil {
		return fmt.Errorf("load before snapshot: %w", err)
	}

	var after *graph.Snapshot
	if afterID != "" {
		after, err = loadArchived(store, afterID)
		if err != nil {
			return fmt.Errorf("load after snapshot: %w", err)
		}
	} else {
		var cleanup func()
		after, cleanup, err = loadGraph(ctx, cfg, "")
		if err != nil {
			return err
		}
		defer cleanup()
	}

	tracker, err := usage.Open(cfg.Usage.Path)
	if err != nil {
		return err
	}
	defer tracker.Close()

	engine := topology.NewEngine(topology.NewErdosRenyi(cfg.Analysis.Seed), cfg.Analysis.OrphanDegree, cfg.Analysis.HubDegree)
	impact, err := tracker.MeasureImpact(ctx, engine, sig, before, after)
	if err != nil {
		return err
	}
	diff := snapshot.Compare(before, after)

	if jsonOut {
		out := struct {
			*usage.Impact
			Changes *snapshot.Diff `json:"changes"`
		}{impact, diff}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Gap:               %s\n", sig)
	fmt.Printf("Predicted:         %.3f\n", impact.Predicted)
	fmt.Printf("Realized:          %.3f\n", impact.Realized)
	fmt.Printf("Clustering delta:  %+.4f\n", impact.ClusteringDelta)
	fmt.Printf("Avg path delta:    %+.4f\n", impact.AvgPathDelta)
	fmt.Printf("Small-world delta: %+.4f\n", impact.SmallWorldDelta)
	fmt.Printf("Modularity delta:  %+.4f\n", impact.ModularityDelta)

	if diff.Empty() {
		fmt.Println("Changes:           none")
		return nil
	}
	fmt.Printf("Changes:           +%d/-%d nodes, +%d/-%d edges\n",
		len(diff.AddedNodes), len(diff.RemovedNodes), len(diff.AddedEdges), len(diff.RemovedEdges))
	for _, id := range diff.AddedNodes {
		fmt.Printf("  + node %s\n", id)
	}
	for _, id := range diff.RemovedNodes {
		fmt.Printf("  - node %s\n", id)
	}
	for _, e := range diff.AddedEdges {
		fmt.Printf("  + edge %s -> %s\n", e.Source, e.Target)
	}
	for _, e := range diff.RemovedEdges {
		fmt.Printf("  - edge %s -> %s\n", e.Source, e.Target)
	}
	return nil
}

// loadArchived resolves an archive id, falling back to tag lookup.
func loadArchived(store *snapshot.Store, ref string) (*graph.Snapshot, error) {
	snap, err := store.Load(ref)
	if err == nil {
		return snap, nil
	}
	return store.FindByTag(ref)
}

func runIndex(ctx context.Context, configPath, inputPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	snap, cleanup, err := loadGraph(ctx, cfg, inputPath)
	if err != nil {
		return err
	}
	defer cleanup()

	provider, err := newProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		return errors.New("indexing requires an LLM provider with embeddings")
	}

	repo, err := qdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
	if err != nil {
		return fmt.Errorf("connect vector store: %w", err)
	}
	defer repo.Close(ctx)

	indexer := vector.NewIndexer(provider, repo, 0)
	n, err := indexer.IndexSnapshot(ctx, snap)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d notes into %s\n", n, cfg.Vector.Collection)
	return nil
}

func runSnapshots(configPath string, jsonOut bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	if err != nil {
		return err
	}

	summaries := store.List()
	if jsonOut {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		fmt.Println("No snapshots archived.")
		return nil
	}
	fmt.Printf("%-14s %-18s %6s %6s  %s\n", "ID", "TAG", "NODES", "EDGES", "CREATED")
	for _, s := range summaries {
		id := s.ID
		if len(id) > 12 {
			id = id[:12]
		}
		fmt.Printf("%-14s %-18s %6d %6d  %s\n", id, s.Tag, s.Nodes, s.Edges, s.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
