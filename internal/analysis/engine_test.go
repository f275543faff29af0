package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/weavenn/weave/internal/gaps"
	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/suggest"
	"github.com/weavenn/weave/internal/usage"
)

func buildGraph(t *testing.T, nodes []graph.Node, edges [][2]string) *graph.Snapshot {
	t.Helper()
	doc := graph.Document{Nodes: nodes}
	for _, e := range edges {
		doc.Edges = append(doc.Edges, graph.Edge{Source: e[0], Target: e[1]})
	}
	snap, err := graph.FromDoc(doc)
	if err != nil {
		t.Fatalf("FromDoc: %v", err)
	}
	return snap
}

func ids(names ...string) []graph.Node {
	out := make([]graph.Node, len(names))
	for i, n := range names {
		out[i] = graph.Node{ID: n}
	}
	return out
}

type fixedSim struct {
	pairwise  float64
	coherence float64
	err       error
}

func (f *fixedSim) Pairwise(ctx context.Context, a, b string) (float64, error) {
	return f.pairwise, f.err
}

func (f *fixedSim) Coherence(ctx context.Context, text string, contexts []string) (float64, error) {
	return f.coherence, f.err
}

type fakeProvider struct {
	content string
	err     error
	calls   int
}

func (f *fakeProvider) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type fakeHistory struct {
	applied map[string]bool
}

func (f *fakeHistory) WasRejected(ctx context.Context, sig, key string) (bool, error) {
	return false, nil
}

func (f *fakeHistory) WasApplied(ctx context.Context, sig, key string) (bool, error) {
	return f.applied[sig+"|"+key], nil
}

func TestAnalyzeEmptyGraph(t *testing.T) {
	e := New(Config{}, nil, nil, nil, nil)
	if _, err := e.Analyze(context.Background(), nil); !errors.Is(err, graph.ErrEmptyGraph) {
		t.Fatalf("want ErrEmptyGraph, got %v", err)
	}
}

func TestAnalyzeIsolatedNodes(t *testing.T) {
	snap := buildGraph(t, ids("n0", "n1", "n2", "n3", "n4", "n5", "n6", "n7", "n8", "n9"), nil)
	e := New(Config{Seed: 42}, nil, nil, nil, nil)

	report, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Gaps) != 10 {
		t.Fatalf("gaps = %d, want 10", len(report.Gaps))
	}
	for _, g := range report.Gaps {
		if g.Type != gaps.TypeOrphan {
			t.Errorf("gap %s has type %s, want orphan", g.Source, g.Type)
		}
		if g.Score.Total <= 0 {
			t.Errorf("gap %s has zero score", g.Source)
		}
	}
	if !report.Coverage.Disconnected {
		t.Error("coverage should be flagged disconnected")
	}
	if got := report.Coverage.String(); !strings.Contains(got, "1/10 nodes") {
		t.Errorf("coverage = %q", got)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	nodes := ids("a", "b", "c", "d", "e", "f", "g", "h")
	edges := [][2]string{
		{"a", "b"}, {"b", "c"}, {"a", "c"},
		{"d", "e"}, {"e", "f"}, {"d", "f"},
		{"c", "d"}, {"g", "h"},
	}
	sim := &fixedSim{pairwise: 0.8, coherence: 0.6}

	run := func() *Report {
		snap := buildGraph(t, nodes, edges)
		e := New(Config{Seed: 7}, nil, sim, nil, nil)
		report, err := e.Analyze(context.Background(), snap)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		return report
	}

	first, second := run(), run()
	if len(first.Gaps) != len(second.Gaps) {
		t.Fatalf("gap counts differ: %d vs %d", len(first.Gaps), len(second.Gaps))
	}
	for i := range first.Gaps {
		if first.Gaps[i].Signature() != second.Gaps[i].Signature() {
			t.Errorf("gap %d: %s vs %s", i, first.Gaps[i].Signature(), second.Gaps[i].Signature())
		}
		if first.Gaps[i].Score.Total != second.Gaps[i].Score.Total {
			t.Errorf("gap %d score: %v vs %v", i, first.Gaps[i].Score.Total, second.Gaps[i].Score.Total)
		}
	}
}

func TestAnalyzeGapsSortedByScore(t *testing.T) {
	snap := buildGraph(t, ids("n0", "n1", "n2", "n3", "n4"), [][2]string{{"n0", "n1"}})
	e := New(Config{Seed: 1}, nil, nil, nil, nil)

	report, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := 1; i < len(report.Gaps); i++ {
		prev, cur := report.Gaps[i-1], report.Gaps[i]
		if cur.Score.Total > prev.Score.Total {
			t.Fatalf("gaps out of order at %d: %v after %v", i, cur.Score.Total, prev.Score.Total)
		}
		if cur.Score.Total == prev.Score.Total && cur.Signature() < prev.Signature() {
			t.Fatalf("tie not broken by signature at %d", i)
		}
	}
}

func TestAnalyzeCancellationReturnsScoredGaps(t *testing.T) {
	snap := buildGraph(t, ids("n0", "n1", "n2"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Config{Seed: 1}, nil, nil, nil, nil)
	report, err := e.Analyze(ctx, snap)
	if err != nil {
		t.Fatalf("Analyze should not fail on cancellation: %v", err)
	}
	if !report.Partial {
		t.Error("report should be partial")
	}
	if len(report.Failures) == 0 {
		t.Error("cancellation should be recorded as a failure")
	}
	if report.Metrics == nil {
		t.Error("metrics should survive cancellation")
	}
}

func TestAnalyzeGenerationFailureIsPartial(t *testing.T) {
	snap := buildGraph(t, ids("n0", "n1", "n2"), nil)
	provider := &fakeProvider{err: errors.New("model unavailable")}
	sim := &fixedSim{pairwise: 0.6, coherence: 0.6}

	e := New(Config{Seed: 1, MaxSuggestGaps: 1}, provider, sim, nil, nil)
	report, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	// Orphan gaps produce link suggestions without the provider, so the run
	// stays complete; what matters is that nothing aborted.
	if len(report.Gaps) != 3 {
		t.Fatalf("gaps = %d, want 3", len(report.Gaps))
	}
}

func TestAnalyzeSkipsAppliedSuggestions(t *testing.T) {
	// Two triangles joined by a long chain, so distant similar pairs
	// produce shortcut gaps and direct_link suggestions.
	nodes := ids("n0", "n1", "n2", "p1", "p2", "p3", "n3", "n4", "n5")
	edges := [][2]string{
		{"n0", "n1"}, {"n1", "n2"}, {"n0", "n2"},
		{"n2", "p1"}, {"p1", "p2"}, {"p2", "p3"}, {"p3", "n3"},
		{"n3", "n4"}, {"n4", "n5"}, {"n3", "n5"},
	}
	cfg := Config{Seed: 1, Detector: gaps.Config{MinCommunitySize: 3}}

	snap := buildGraph(t, nodes, edges)
	base := New(cfg, nil, &fixedSim{pairwise: 0.8, coherence: 0.6}, nil, nil)
	baseline, err := base.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var sig, key string
	for _, s := range baseline.Suggestions {
		if s.Kind == suggest.KindDirectLink {
			sig, key = s.GapSignature, s.ContentKey()
		}
	}
	if sig == "" {
		t.Fatal("baseline produced no direct_link suggestion")
	}

	hist := &fakeHistory{applied: map[string]bool{sig + "|" + key: true}}
	e := New(cfg, nil, &fixedSim{pairwise: 0.8, coherence: 0.6}, nil, hist)
	report, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, s := range report.Suggestions {
		if s.GapSignature == sig && s.ContentKey() == key {
			t.Fatalf("applied suggestion %s regenerated", s.ID)
		}
	}
}

func TestReportJSONRoundTrip(t *testing.T) {
	snap := buildGraph(t, ids("a", "b", "c"), [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})
	e := New(Config{Seed: 3}, nil, nil, nil, nil)
	report, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	data, err := report.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(string(data), "snapshot_hash") {
		t.Error("JSON missing snapshot_hash")
	}
}

func TestPrintSummary(t *testing.T) {
	snap := buildGraph(t, ids("a", "b", "c", "d"), [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}})
	e := New(Config{Seed: 3}, nil, nil, nil, nil)
	report, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var buf strings.Builder
	report.PrintSummary(&buf)
	out := buf.String()
	for _, want := range []string{"Graph Analysis Summary", "Coverage:", "Clustering:", "Gaps:"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestFilterGaps(t *testing.T) {
	r := &Report{Gaps: []gaps.Gap{
		{Type: gaps.TypeOrphan, Source: "a", Score: gaps.Score{Total: 0.9}},
		{Type: gaps.TypeBridge, Source: "b", Target: "c", Score: gaps.Score{Total: 0.5}},
		{Type: gaps.TypeOrphan, Source: "d", Score: gaps.Score{Total: 0.2}},
	}}
	if got := r.FilterGaps(gaps.TypeOrphan, 0); len(got) != 2 {
		t.Errorf("orphan filter = %d, want 2", len(got))
	}
	if got := r.FilterGaps("", 0.4); len(got) != 2 {
		t.Errorf("score filter = %d, want 2", len(got))
	}
	if got := r.FilterGaps(gaps.TypeBridge, 0.6); len(got) != 0 {
		t.Errorf("combined filter = %d, want 0", len(got))
	}
}

type fakeMutator struct {
	nodes []graph.Node
	edges [][3]string
	err   error
}

func (f *fakeMutator) CreateNode(ctx context.Context, n graph.Node, body string) error {
	if f.err != nil {
		return f.err
	}
	f.nodes = append(f.nodes, n)
	return nil
}

func (f *fakeMutator) CreateEdge(ctx context.Context, source, target, label string) error {
	if f.err != nil {
		return f.err
	}
	f.edges = append(f.edges, [3]string{source, target, label})
	return nil
}

type captureRecorder struct {
	records []usage.Record
}

func (c *captureRecorder) Append(ctx context.Context, rec usage.Record) error {
	c.records = append(c.records, rec)
	return nil
}

func TestApplyDirectLink(t *testing.T) {
	mut := &fakeMutator{}
	rec := &captureRecorder{}
	sug := suggest.Suggestion{
		ID:           "s1",
		GapSignature: "shortcut:a|b",
		Kind:         suggest.KindDirectLink,
		Status:       suggest.StatusOK,
		Source:       "a",
		Target:       "b",
		Relationship: "relates_to",
	}
	if err := Apply(context.Background(), mut, rec, sug, 0.7); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(mut.edges) != 1 || mut.edges[0] != [3]string{"a", "b", "relates_to"} {
		t.Fatalf("edges = %v", mut.edges)
	}
	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	got := rec.records[0]
	if got.Outcome != usage.OutcomeAccepted || got.PredictedStructural != 0.7 {
		t.Errorf("record = %+v", got)
	}
}

func TestApplyNewConcept(t *testing.T) {
	mut := &fakeMutator{}
	sug := suggest.Suggestion{
		ID:          "s2",
		Kind:        suggest.KindNewConcept,
		Status:      suggest.StatusOK,
		Title:       "Gradient Descent Methods",
		Description: "Connects optimization theory with training practice.",
		LinkTo:      []string{"optimization", "training"},
	}
	if err := Apply(context.Background(), mut, nil, sug, 0.5); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(mut.nodes) != 1 || mut.nodes[0].ID != "gradient-descent-methods" {
		t.Fatalf("nodes = %v", mut.nodes)
	}
	if len(mut.edges) != 2 {
		t.Fatalf("edges = %v", mut.edges)
	}
}

func TestApplyOrganizingHub(t *testing.T) {
	mut := &fakeMutator{}
	sug := suggest.Suggestion{
		ID:     "s3",
		Kind:   suggest.KindOrganizingHub,
		Status: suggest.StatusOK,
		Title:  "Map of Content: Databases",
		Parent: "databases",
		Outline: []suggest.OutlineSection{
			{Heading: "storage", Children: []string{"btree", "lsm"}},
			{Heading: "query", Children: []string{"planner"}},
		},
	}
	if err := Apply(context.Background(), mut, nil, sug, 0); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(mut.nodes) != 1 {
		t.Fatalf("nodes = %v", mut.nodes)
	}
	// parent link plus three child links
	if len(mut.edges) != 4 {
		t.Fatalf("edges = %v", mut.edges)
	}
	if mut.edges[0] != [3]string{"databases", "map-of-content-databases", "organized_by"} {
		t.Errorf("parent edge = %v", mut.edges[0])
	}
}

func TestApplyFailedSuggestionRejected(t *testing.T) {
	mut := &fakeMutator{}
	sug := suggest.Suggestion{ID: "s4", Kind: suggest.KindNewConcept, Status: suggest.StatusGenerationFailed}
	if err := Apply(context.Background(), mut, nil, sug, 0); err == nil {
		t.Fatal("expected error applying failed suggestion")
	}
	if len(mut.nodes) != 0 || len(mut.edges) != 0 {
		t.Error("mutator should not be touched")
	}
}

func TestReject(t *testing.T) {
	rec := &captureRecorder{}
	sug := suggest.Suggestion{ID: "s5", GapSignature: "orphan:x", Kind: suggest.KindDirectLink}
	if err := Reject(context.Background(), rec, sug); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if len(rec.records) != 1 || rec.records[0].Outcome != usage.OutcomeRejected {
		t.Fatalf("records = %+v", rec.records)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Gradient Descent Methods": "gradient-descent-methods",
		"  spaced   out  ":         "spaced-out",
		"C++ & Go!":                "c-go",
		"already-fine":             "already-fine",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
