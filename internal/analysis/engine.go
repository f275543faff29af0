// Package analysis orchestrates the full pipeline: topology metrics, gap
// detection, scoring, suggestion generation, and validation over one
// immutable graph snapshot. The engine holds no mutable state, so runs on
// the same snapshot are idempotent and safe to invoke concurrently.
package analysis

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/weavenn/weave/internal/gaps"
	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/observability"
	"github.com/weavenn/weave/internal/suggest"
	"github.com/weavenn/weave/internal/topology"
	"github.com/weavenn/weave/internal/vector"
)

// Config collects the knobs of one analysis run. Zero values use the
// package defaults throughout.
type Config struct {
	Detector  gaps.Config
	Weights   gaps.Weights
	Generator suggest.Config
	Validator suggest.ValidatorConfig

	// OrphanDegree and HubDegree are the degree-distribution flag
	// thresholds.
	OrphanDegree int
	HubDegree    int
	// Seed drives the random-graph reference and representative sampling.
	Seed int64
	// MaxSuggestGaps bounds how many top-ranked gaps get suggestions.
	MaxSuggestGaps int
	// Expertise maps tags to the acting user's familiarity in [0,1].
	Expertise map[string]float64
}

const defaultMaxSuggestGaps = 10

// Engine wires the pipeline components around a set of capability ports.
// Every port may be nil: the engine degrades to the analyses that remain
// possible and reports what it could not do.
type Engine struct {
	cfg       Config
	metrics   *topology.Engine
	detector  *gaps.Detector
	scorer    *gaps.Scorer
	generator *suggest.Generator
	validator *suggest.Validator
	history   suggest.History
}

// New builds an Engine from explicit configuration and ports.
func New(cfg Config, provider llm.Provider, sim vector.Similarity, random topology.RandomGraphGenerator, history suggest.History) *Engine {
	if cfg.OrphanDegree <= 0 {
		cfg.OrphanDegree = 3
	}
	if cfg.HubDegree <= 0 {
		cfg.HubDegree = 50
	}
	if cfg.MaxSuggestGaps <= 0 {
		cfg.MaxSuggestGaps = defaultMaxSuggestGaps
	}
	if random == nil {
		random = topology.NewErdosRenyi(cfg.Seed)
	}
	gen := cfg.Generator
	if gen.Seed == 0 {
		gen.Seed = cfg.Seed
	}
	return &Engine{
		cfg:       cfg,
		metrics:   topology.NewEngine(random, cfg.OrphanDegree, cfg.HubDegree),
		detector:  gaps.NewDetector(cfg.Detector, sim),
		scorer:    gaps.NewScorer(cfg.Weights, sim, cfg.Expertise),
		generator: suggest.NewGenerator(provider, sim, gen),
		validator: suggest.NewValidator(sim, history, cfg.Expertise, cfg.Validator),
		history:   history,
	}
}

// Analyze runs the full pipeline. Per-gap failures never abort the run;
// they are collected in the report and flip its Partial flag. Cancellation
// is cooperative: already-scored gaps are still returned.
func (e *Engine) Analyze(ctx context.Context, snap *graph.Snapshot) (*Report, error) {
	if snap == nil || snap.NodeCount() == 0 {
		return nil, graph.ErrEmptyGraph
	}
	started := time.Now()
	ctx, span := observability.StartAnalysisSpan(ctx, snap.NodeCount(), snap.EdgeCount())
	defer span.End()

	metrics, err := e.metrics.Compute(snap)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	report := &Report{
		GeneratedAt:  started,
		SnapshotHash: snap.ContentHash(),
		Metrics:      metrics,
		Coverage: Coverage{
			TotalNodes:    metrics.NodeCount,
			AnalyzedNodes: metrics.AnalyzedNodes,
			Components:    metrics.Components,
			Disconnected:  metrics.Components > 1,
		},
	}

	detected := e.detector.DetectAll(ctx, snap, metrics)
	scored, scoreErr := e.scorer.ScoreAll(ctx, snap, metrics, detected)
	sortGaps(scored)
	report.Gaps = scored
	if scoreErr != nil {
		report.Partial = true
		report.Failures = append(report.Failures, Failure{Stage: "scoring", Err: scoreErr.Error()})
		report.Duration = time.Since(started)
		e.finish(span, report)
		return report, nil
	}

	e.suggestTop(ctx, snap, metrics, report)
	report.Duration = time.Since(started)
	e.finish(span, report)
	return report, nil
}

func (e *Engine) finish(span trace.Span, report *Report) {
	observability.RecordAnalysisResult(span, len(report.Gaps), len(report.Suggestions), report.Partial)
	observability.Metrics().RecordAnalysis(report.Duration, len(report.Gaps), report.Partial)
}

// suggestTop generates and validates suggestions for the highest-ranked
// gaps, skipping content already applied in the past.
func (e *Engine) suggestTop(ctx context.Context, snap *graph.Snapshot, metrics *topology.Result, report *Report) {
	limit := e.cfg.MaxSuggestGaps
	if limit > len(report.Gaps) {
		limit = len(report.Gaps)
	}
	for _, g := range report.Gaps[:limit] {
		if err := ctx.Err(); err != nil {
			report.Partial = true
			report.Failures = append(report.Failures, Failure{Stage: "generation", Err: err.Error()})
			return
		}
		for _, sug := range e.generator.Generate(ctx, snap, metrics, g) {
			if sug.Status == suggest.StatusGenerationFailed {
				report.Partial = true
				report.Failures = append(report.Failures, Failure{
					GapSignature: sug.GapSignature,
					Stage:        "generation",
					Err:          sug.Error,
				})
				report.Suggestions = append(report.Suggestions, sug)
				observability.Metrics().RecordSuggestion(true, 0)
				continue
			}
			if e.alreadyApplied(ctx, sug) {
				continue
			}
			e.validator.Validate(ctx, snap, &sug)
			report.Suggestions = append(report.Suggestions, sug)
			observability.Metrics().RecordSuggestion(false, sug.ValidationScore)
		}
	}
}

// alreadyApplied suppresses regeneration of suggestions the user has
// accepted before.
func (e *Engine) alreadyApplied(ctx context.Context, sug suggest.Suggestion) bool {
	if e.history == nil {
		return false
	}
	applied, err := e.history.WasApplied(ctx, sug.GapSignature, sug.ContentKey())
	return err == nil && applied
}

// sortGaps orders by total score descending with the signature as a stable
// tiebreak, so identical runs produce identical orderings.
func sortGaps(gs []gaps.Gap) {
	sort.SliceStable(gs, func(i, j int) bool {
		if gs[i].Score.Total != gs[j].Score.Total {
			return gs[i].Score.Total > gs[j].Score.Total
		}
		return gs[i].Signature() < gs[j].Signature()
	})
}
