package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/weavenn/weave/internal/analysis"
	"github.com/weavenn/weave/internal/config"
	"github.com/weavenn/weave/internal/gaps"
	"github.com/weavenn/weave/internal/graph/neo4j"
	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/llmutil"
	"github.com/weavenn/weave/internal/observability"
	"github.com/weavenn/weave/internal/server"
	"github.com/weavenn/weave/internal/snapshot"
	"github.com/weavenn/weave/internal/suggest"
	temporalmod "github.com/weavenn/weave/internal/temporal"
	"github.com/weavenn/weave/internal/usage"
	"github.com/weavenn/weave/internal/vector"
	"github.com/weavenn/weave/internal/vector/qdrant"

	temporalclient "go.temporal.io/sdk/client"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName: "weave-worker",
		SampleRate:  1.0,
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}

	// Build LLM provider via factory (supports no-LLM operation: bridge
	// concept generation is skipped, everything else still runs).
	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	provider, err := factory.Create(llm.ProviderConfig{
		Provider:          cfg.LLM.Provider,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		Timeout:           time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		TokensPerMinute:   cfg.LLM.TokensPerMinute,
	})
	if err != nil {
		log.Fatalf("creating LLM provider: %v", err)
	}

	vault, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		log.Fatalf("graph database: %v", err)
	}

	store, err := snapshot.NewStore(cfg.Snapshot.Dir)
	if err != nil {
		log.Fatalf("snapshot store: %v", err)
	}

	tracker, err := usage.Open(cfg.Usage.Path)
	if err != nil {
		log.Fatalf("usage store: %v", err)
	}

	var audit *observability.AuditLogger
	if cfg.Log.AuditPath != "" {
		audit, err = observability.NewFileAuditLogger(cfg.Log.AuditPath, uuid.NewString())
		if err != nil {
			log.Printf("audit log disabled: %v", err)
		}
	}

	var sim vector.Similarity
	var indexer *vector.Indexer
	var repo *qdrant.Repository
	if provider != nil {
		sim = vector.NewEmbeddingSimilarity(provider)
		repo, err = qdrant.New(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			log.Printf("Warning: vector store unavailable (%v), shortcut detection degraded", err)
			repo = nil
		} else {
			indexer = vector.NewIndexer(provider, repo, 0)
		}
	}

	a := cfg.Analysis
	engine := analysis.New(analysis.Config{
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
		Generator: suggest.Config{WindowLow: a.WindowLow, WindowHigh: a.WindowHigh, Seed: a.Seed},
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
	}, provider, sim, nil, tracker)

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Source:    vault,
		Snapshots: store,
		Engine:    engine,
		Indexer:   indexer,
		Audit:     audit,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	observability.Metrics().ActiveWorkers.Inc()
	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	// Health endpoints plus graceful shutdown of every resource.
	graceful := server.NewGracefulServer(&server.HealthConfig{Version: "0.1.0"}, nil)
	graceful.Health.RegisterCheck("graph", server.GraphHealthChecker(vault.Ping))
	graceful.Health.RegisterCheck("usage", server.UsageStoreHealthChecker(tracker.Ping))
	graceful.Health.RegisterCheck("llm", server.LLMHealthChecker(cfg.LLM.Provider, nil))
	if repo != nil {
		graceful.Health.RegisterCheck("vector", server.VectorHealthChecker(repo.Ping))
	}

	graceful.AddHook(server.TemporalWorkerShutdownHook(w.Stop))
	graceful.AddHook(server.ShutdownHook{
		Name:     "temporal-client",
		Priority: 30,
		Run: func(context.Context) error {
			c.Close()
			return nil
		},
	})
	graceful.AddHook(server.TracingShutdownHook(tracing.Shutdown))
	graceful.AddHook(server.GraphStoreShutdownHook(vault.Close))
	graceful.AddHook(server.UsageStoreShutdownHook(tracker.Close))
	if repo != nil {
		graceful.AddHook(server.VectorStoreShutdownHook(repo.Close))
	}
	if audit != nil {
		graceful.AddHook(server.AuditLoggerShutdownHook(audit.Close))
	}

	if err := graceful.Start(":8080"); err != nil {
		log.Fatalf("server: %v", err)
	}
	graceful.Wait()
	observability.Metrics().ActiveWorkers.Dec()
	fmt.Println("Worker stopped")
}
