package temporal

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/weavenn/weave/internal/analysis"
	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/observability"
	"github.com/weavenn/weave/internal/snapshot"
	"github.com/weavenn/weave/internal/vector"
)

// AnalyzeResult is the serializable result passed out of the analyze
// activity.
type AnalyzeResult struct {
	ReportJSON      string
	Coverage        string
	GapCount        int
	SuggestionCount int
	Partial         bool
}

// Dependencies holds shared resources injected into activities. Audit may
// be nil, which disables audit logging.
type Dependencies struct {
	Source    graph.Source
	Snapshots *snapshot.Store
	Engine    *analysis.Engine
	Indexer   *vector.Indexer
	Audit     *observability.AuditLogger
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

// CaptureSnapshotActivity loads the current graph and archives it, returning
// the content hash used by the later activities.
func CaptureSnapshotActivity(ctx context.Context, input AnalysisInput) (string, error) {
	snap, err := loadGraph(ctx, input)
	if err != nil {
		return "", err
	}
	tag := input.Tag
	if tag == "" {
		tag = "scheduled"
	}
	id, err := deps.Snapshots.Save(snap, tag)
	if err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	deps.Audit.Log(observability.AuditEvent{
		EventType:    observability.AuditEventSnapshotSave,
		SnapshotHash: id,
		Success:      true,
	})
	return id, nil
}

// IndexVectorsActivity refreshes the vector collection from the archived
// snapshot and returns how many notes were indexed.
func IndexVectorsActivity(ctx context.Context, snapshotHash string) (int, error) {
	if deps.Indexer == nil {
		return 0, errors.New("no vector indexer configured")
	}
	snap, err := deps.Snapshots.Load(snapshotHash)
	if err != nil {
		return 0, err
	}
	return deps.Indexer.IndexSnapshot(ctx, snap)
}

// AnalyzeActivity runs the full analysis over an archived snapshot.
func AnalyzeActivity(ctx context.Context, snapshotHash string) (AnalyzeResult, error) {
	snap, err := deps.Snapshots.Load(snapshotHash)
	if err != nil {
		return AnalyzeResult{}, err
	}

	report, err := deps.Engine.Analyze(ctx, snap)
	if err != nil {
		deps.Audit.LogAnalysis(snapshotHash, 0, err)
		return AnalyzeResult{}, err
	}
	deps.Audit.LogAnalysis(snapshotHash, report.Duration, nil)

	data, err := report.JSON()
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("marshal report: %w", err)
	}
	return AnalyzeResult{
		ReportJSON:      string(data),
		Coverage:        report.Coverage.String(),
		GapCount:        len(report.Gaps),
		SuggestionCount: len(report.Suggestions),
		Partial:         report.Partial,
	}, nil
}

// StoreReportActivity writes the report JSON to disk.
func StoreReportActivity(ctx context.Context, path, reportJSON string) error {
	if err := os.WriteFile(path, []byte(reportJSON), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func loadGraph(ctx context.Context, input AnalysisInput) (*graph.Snapshot, error) {
	if input.SnapshotPath != "" {
		snap, _, err := graph.LoadFile(input.SnapshotPath)
		return snap, err
	}
	if deps.Source == nil {
		return nil, errors.New("no graph source configured")
	}
	return deps.Source.LoadSnapshot(ctx)
}
