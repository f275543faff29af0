package gaps

import (
	"context"
	"errors"
	"testing"

	"github.com/weavenn/weave/internal/graph"
)

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		total float64
		want  Priority
	}{
		{0.9, PriorityCritical},
		{0.81, PriorityCritical},
		{0.8, PriorityHigh},
		{0.6, PriorityHigh},
		{0.59, PriorityMedium},
		{0.4, PriorityMedium},
		{0.39, PriorityLow},
		{0, PriorityLow},
	}
	for _, tt := range tests {
		if got := PriorityFor(tt.total); got != tt.want {
			t.Errorf("PriorityFor(%v) = %s, want %s", tt.total, got, tt.want)
		}
	}
}

func TestCombineMonotonic(t *testing.T) {
	w := DefaultWeights()
	base := Score{Structural: 0.3, Semantic: 0.4, Feasibility: 0.5, Novelty: 0.6}

	bump := []struct {
		name string
		mod  func(s Score) Score
	}{
		{"structural", func(s Score) Score { s.Structural = 0.9; return s }},
		{"semantic", func(s Score) Score { s.Semantic = 0.9; return s }},
		{"feasibility", func(s Score) Score { s.Feasibility = 0.9; return s }},
		{"novelty", func(s Score) Score { s.Novelty = 0.9; return s }},
	}
	for _, tt := range bump {
		t.Run(tt.name, func(t *testing.T) {
			if w.Combine(tt.mod(base)) < w.Combine(base) {
				t.Errorf("raising %s sub-score lowered the total", tt.name)
			}
		})
	}
}

func TestCombineWeights(t *testing.T) {
	w := DefaultWeights()
	got := w.Combine(Score{Structural: 1, Semantic: 1, Feasibility: 1, Novelty: 1})
	if got != 1 {
		t.Errorf("Combine(all ones) = %v, want 1", got)
	}
	got = w.Combine(Score{Structural: 1})
	if got != 0.4 {
		t.Errorf("Combine(structural only) = %v, want 0.4", got)
	}
}

func TestScoreBridgeStructural(t *testing.T) {
	// A missing bridge scores higher structurally than a weak existing one.
	sc := NewScorer(Weights{}, nil, nil)
	d := NewDetector(Config{MinCommunitySize: 2}, nil)

	sNo := twoTriangles(t, false)
	topoNo := computeTopo(t, sNo)
	gapsNo := d.Bridges(sNo, topoNo)
	if len(gapsNo) != 1 {
		t.Fatalf("expected 1 bridge gap, got %d", len(gapsNo))
	}
	sc.Score(context.Background(), sNo, topoNo, &gapsNo[0])

	sYes := twoTriangles(t, true)
	topoYes := computeTopo(t, sYes)
	gapsYes := d.Bridges(sYes, topoYes)
	if len(gapsYes) != 1 {
		t.Fatalf("expected 1 bridge gap, got %d", len(gapsYes))
	}
	sc.Score(context.Background(), sYes, topoYes, &gapsYes[0])

	if gapsNo[0].Score.Structural <= gapsYes[0].Score.Structural {
		t.Errorf("disconnected bridge structural %v should exceed bridged %v",
			gapsNo[0].Score.Structural, gapsYes[0].Score.Structural)
	}
	if gapsYes[0].Score.Structural <= 0 {
		t.Errorf("bridged pair structural = %v, want low but nonzero", gapsYes[0].Score.Structural)
	}
}

func TestScoreSemanticFailureDefaultsToZero(t *testing.T) {
	s := twoTriangles(t, true)
	topo := computeTopo(t, s)
	sc := NewScorer(Weights{}, &fakeSim{err: errors.New("embedder down")}, nil)

	g := Gap{Type: TypeShortcut, Source: "n1", Target: "n6", PathLength: 3}
	sc.Score(context.Background(), s, topo, &g)

	if g.Score.Semantic != 0 {
		t.Errorf("Semantic = %v on similarity failure, want 0", g.Score.Semantic)
	}
	if g.Score.Total <= 0 {
		t.Error("Total should still reflect the other sub-scores")
	}
	if g.Priority == "" {
		t.Error("Priority not assigned")
	}
}

func TestScoreSemanticSplit(t *testing.T) {
	s := twoTriangles(t, true)
	topo := computeTopo(t, s)
	sim := &fakeSim{pair: map[string]float64{pairKey("n1", "n6"): 0.8}, coh: 0.4}
	sc := NewScorer(Weights{}, sim, nil)

	g := Gap{Type: TypeShortcut, Source: "n1", Target: "n6", PathLength: 3}
	sc.Score(context.Background(), s, topo, &g)

	want := 0.7*0.8 + 0.3*0.4
	if diff := g.Score.Semantic - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Semantic = %v, want %v", g.Score.Semantic, want)
	}
}

func TestFeasibilityExpertise(t *testing.T) {
	s := buildGraph(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	topo := computeTopo(t, s)

	expert := NewScorer(Weights{}, nil, map[string]float64{"ml": 1})
	novice := NewScorer(Weights{}, nil, map[string]float64{"ml": 0})
	g1 := Gap{Type: TypeShortcut, Source: "a", Target: "b", PathLength: 5}
	g2 := g1
	expert.Score(context.Background(), s, topo, &g1)
	novice.Score(context.Background(), s, topo, &g2)

	// Untagged nodes give no expertise signal either way.
	if g1.Score.Feasibility != g2.Score.Feasibility {
		t.Errorf("untagged feasibility differs: %v vs %v", g1.Score.Feasibility, g2.Score.Feasibility)
	}
}

func TestFeasibilityTaggedExpertise(t *testing.T) {
	snap := buildTagged(t)
	topo := computeTopo(t, snap)

	expert := NewScorer(Weights{}, nil, map[string]float64{"ml": 1, "math": 1})
	novice := NewScorer(Weights{}, nil, map[string]float64{"ml": 0, "math": 0})
	g1 := Gap{Type: TypeShortcut, Source: "a", Target: "b", PathLength: 5}
	g2 := g1
	expert.Score(context.Background(), snap, topo, &g1)
	novice.Score(context.Background(), snap, topo, &g2)

	if g1.Score.Feasibility <= g2.Score.Feasibility {
		t.Errorf("expert feasibility %v should exceed novice %v", g1.Score.Feasibility, g2.Score.Feasibility)
	}
}

func TestNoveltyCrossFolder(t *testing.T) {
	snap := buildTagged(t)
	topo := computeTopo(t, snap)
	sc := NewScorer(Weights{}, nil, nil)

	cross := Gap{Type: TypeShortcut, Source: "a", Target: "b", PathLength: 5}
	sc.Score(context.Background(), snap, topo, &cross)

	same := Gap{Type: TypeShortcut, Source: "a", Target: "c", PathLength: 5}
	sc.Score(context.Background(), snap, topo, &same)

	if cross.Score.Novelty <= same.Score.Novelty {
		t.Errorf("cross-folder novelty %v should exceed same-folder %v",
			cross.Score.Novelty, same.Score.Novelty)
	}
}

func TestScoreAllCancellation(t *testing.T) {
	s := twoTriangles(t, true)
	topo := computeTopo(t, s)
	sc := NewScorer(Weights{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gs := []Gap{{Type: TypeOrphan, Source: "n1"}, {Type: TypeOrphan, Source: "n2"}}
	scored, err := sc.ScoreAll(ctx, s, topo, gs)
	if err == nil {
		t.Fatal("ScoreAll() expected context error")
	}
	if len(scored) != 0 {
		t.Errorf("ScoreAll() scored %d gaps after cancellation, want 0", len(scored))
	}
}

func TestTagDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"disjoint", []string{"x"}, []string{"y"}, 1},
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 0},
		{"both empty", nil, nil, 0.5},
		{"half overlap", []string{"x", "y"}, []string{"y", "z"}, 1 - 1.0/3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tagDistance(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("tagDistance() = %v, want %v", got, tt.want)
			}
		})
	}
}

// buildTagged is a small fixture with folders and tags: a and b sit in
// different folders with disjoint tags, a and c share a folder and tags.
func buildTagged(t *testing.T) *graph.Snapshot {
	t.Helper()
	s, err := graph.Build([]graph.Node{
		{ID: "a", Folder: "projects", Tags: []string{"ml"}},
		{ID: "b", Folder: "reference", Tags: []string{"math"}},
		{ID: "c", Folder: "projects", Tags: []string{"ml"}},
	}, []graph.Edge{{Source: "a", Target: "b"}, {Source: "a", Target: "c"}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return s
}
