// Package temporal runs scheduled graph analyses as Temporal workflows, so
// long-running runs survive worker restarts and failed activities retry
// with the platform's policies.
package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/workflow"
)

// AnalysisInput holds the workflow parameters.
type AnalysisInput struct {
	// SnapshotPath optionally loads the graph from a vault export file
	// instead of the live graph database.
	SnapshotPath string
	// ReportPath is where the JSON report is written. Empty means the
	// report is only returned through the workflow result.
	ReportPath string
	// Tag is attached to the archived snapshot for later impact
	// measurement.
	Tag string
	// ReindexVectors refreshes the vector collection before analysis.
	ReindexVectors bool
}

// AnalysisOutput holds the workflow result.
type AnalysisOutput struct {
	SnapshotHash string
	Coverage     string
	GapCount     int
	Suggestions  int
	Partial      bool
	ReportPath   string
}

// AnalysisWorkflow captures a snapshot, optionally refreshes the vector
// index, analyzes the graph, and stores the report.
func AnalysisWorkflow(ctx workflow.Context, input AnalysisInput) (*AnalysisOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var snapshotHash string
	if err := workflow.ExecuteActivity(ctx, CaptureSnapshotActivity, input).Get(ctx, &snapshotHash); err != nil {
		return nil, fmt.Errorf("capture snapshot: %w", err)
	}

	if input.ReindexVectors {
		var indexed int
		if err := workflow.ExecuteActivity(ctx, IndexVectorsActivity, snapshotHash).Get(ctx, &indexed); err != nil {
			// Analysis degrades without fresh vectors but still runs.
			workflow.GetLogger(ctx).Warn("vector reindex failed", "error", err)
		}
	}

	var result AnalyzeResult
	if err := workflow.ExecuteActivity(ctx, AnalyzeActivity, snapshotHash).Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	output := &AnalysisOutput{
		SnapshotHash: snapshotHash,
		Coverage:     result.Coverage,
		GapCount:     result.GapCount,
		Suggestions:  result.SuggestionCount,
		Partial:      result.Partial,
	}

	if input.ReportPath != "" {
		if err := workflow.ExecuteActivity(ctx, StoreReportActivity, input.ReportPath, result.ReportJSON).Get(ctx, nil); err != nil {
			return nil, fmt.Errorf("store report: %w", err)
		}
		output.ReportPath = input.ReportPath
	}

	return output, nil
}
