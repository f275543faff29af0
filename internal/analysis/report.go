package analysis

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/weavenn/weave/internal/gaps"
	"github.com/weavenn/weave/internal/suggest"
	"github.com/weavenn/weave/internal/topology"
)

// Coverage records how much of the graph the metrics describe. When the
// graph is disconnected only the largest component is measured, and the
// report says so instead of silently shrinking the denominator.
type Coverage struct {
	TotalNodes    int  `json:"total_nodes"`
	AnalyzedNodes int  `json:"analyzed_nodes"`
	Components    int  `json:"components"`
	Disconnected  bool `json:"disconnected"`
}

func (c Coverage) String() string {
	if !c.Disconnected {
		return fmt.Sprintf("%d/%d nodes", c.AnalyzedNodes, c.TotalNodes)
	}
	return fmt.Sprintf("%d/%d nodes (largest of %d components)", c.AnalyzedNodes, c.TotalNodes, c.Components)
}

// Failure is one non-fatal pipeline error, kept so a partial report can
// explain what is missing.
type Failure struct {
	GapSignature string `json:"gap_signature,omitempty"`
	Stage        string `json:"stage"`
	Err          string `json:"error"`
}

// Report is the result of one analysis run.
type Report struct {
	GeneratedAt  time.Time            `json:"generated_at"`
	SnapshotHash string               `json:"snapshot_hash"`
	Duration     time.Duration        `json:"duration_ns"`
	Coverage     Coverage             `json:"coverage"`
	Metrics      *topology.Result     `json:"metrics"`
	Gaps         []gaps.Gap           `json:"gaps,omitempty"`
	Suggestions  []suggest.Suggestion `json:"suggestions,omitempty"`
	Failures     []Failure            `json:"failures,omitempty"`
	Partial      bool                 `json:"partial"`
}

// JSON renders the report for machine consumption.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FilterGaps returns the gaps matching an optional type and a minimum
// total score, preserving rank order.
func (r *Report) FilterGaps(typ gaps.Type, minScore float64) []gaps.Gap {
	var out []gaps.Gap
	for _, g := range r.Gaps {
		if typ != "" && g.Type != typ {
			continue
		}
		if g.Score.Total < minScore {
			continue
		}
		out = append(out, g)
	}
	return out
}

// PrintSummary writes a human-readable digest of the run.
func (r *Report) PrintSummary(w io.Writer) {
	m := r.Metrics
	cOK, lOK, sOK := m.MeetsTargets()

	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        Graph Analysis Summary        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Coverage:    %-23s ║\n", r.Coverage.String())
	fmt.Fprintf(w, "║ Edges:       %-23d ║\n", m.EdgeCount)
	fmt.Fprintf(w, "║ Duration:    %-23s ║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Clustering:  %-18.3f %s ║\n", m.Clustering, targetMark(cOK))
	fmt.Fprintf(w, "║ Avg path:    %-18.3f %s ║\n", m.AvgPathLength, targetMark(lOK))
	fmt.Fprintf(w, "║ Small-world: %-18.3f %s ║\n", m.SmallWorld, targetMark(sOK))
	fmt.Fprintf(w, "║ Diameter:    %-23d ║\n", m.Diameter)
	fmt.Fprintf(w, "║ Modularity:  %-23.3f ║\n", m.Modularity)
	fmt.Fprintf(w, "║ Communities: %-23d ║\n", len(m.Communities))
	fmt.Fprintf(w, "║ Orphaned:    %-23d ║\n", len(m.Orphaned))
	fmt.Fprintf(w, "║ Hubs:        %-23d ║\n", len(m.Hubs))
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Gaps:        %-23s ║\n", r.gapCounts())
	fmt.Fprintf(w, "║ Suggestions: %-23d ║\n", len(r.Suggestions))
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")

	if len(r.Gaps) > 0 {
		fmt.Fprintf(w, "\nTop gaps:\n")
		limit := 5
		if limit > len(r.Gaps) {
			limit = len(r.Gaps)
		}
		for _, g := range r.Gaps[:limit] {
			fmt.Fprintf(w, "  [%s] %-9s %.3f  %s\n", g.Priority, g.Type, g.Score.Total, gapEndpoints(g))
		}
	}
	if r.Partial {
		fmt.Fprintf(w, "\n⚠ Partial results, %d failure(s):\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  • %s: %s\n", f.Stage, f.Err)
		}
	}
}

func (r *Report) gapCounts() string {
	counts := map[gaps.Type]int{}
	for _, g := range r.Gaps {
		counts[g.Type]++
	}
	parts := make([]string, 0, 4)
	for _, t := range []gaps.Type{gaps.TypeBridge, gaps.TypeShortcut, gaps.TypeHierarchy, gaps.TypeOrphan} {
		if counts[t] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[t], t))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func gapEndpoints(g gaps.Gap) string {
	if g.Target != "" {
		return g.Source + " ↔ " + g.Target
	}
	return g.Source
}

func targetMark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
