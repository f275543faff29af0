package gaps

import (
	"context"
	"sort"

	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/topology"
	"github.com/weavenn/weave/internal/vector"
)

// Weights combines the four sub-scores into a total. They should sum to 1.
type Weights struct {
	Structural  float64 `json:"structural"`
	Semantic    float64 `json:"semantic"`
	Feasibility float64 `json:"feasibility"`
	Novelty     float64 `json:"novelty"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Structural: 0.4, Semantic: 0.3, Feasibility: 0.2, Novelty: 0.1}
}

// Combine computes the weighted total for a score.
func (w Weights) Combine(s Score) float64 {
	return w.Structural*s.Structural +
		w.Semantic*s.Semantic +
		w.Feasibility*s.Feasibility +
		w.Novelty*s.Novelty
}

// Split of the structural sub-score between estimated betweenness gain and
// path-length reduction, and of the semantic sub-score between endpoint
// similarity and context coherence.
const (
	betweennessWeight   = 0.6
	pathReductionWeight = 0.4
	endpointWeight      = 0.7
	coherenceWeight     = 0.3
)

// maxCoherenceContexts bounds how many neighbor texts feed a coherence call.
const maxCoherenceContexts = 8

// Scorer assigns multi-factor scores to gaps. Semantic scoring goes through
// the similarity port; when that port fails the semantic sub-score falls to
// 0.0 instead of failing the gap.
type Scorer struct {
	weights   Weights
	sim       vector.Similarity
	expertise map[string]float64
}

// NewScorer builds a Scorer. A zero Weights value falls back to defaults.
// expertise maps tags to the acting user's familiarity in [0,1]; nil means
// unknown, scored neutrally.
func NewScorer(weights Weights, sim vector.Similarity, expertise map[string]float64) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Scorer{weights: weights, sim: sim, expertise: expertise}
}

// ScoreAll scores gaps in place, checking for cancellation between gaps.
// On cancellation the gaps scored so far keep their scores and the context
// error is returned; callers decide whether that is a partial result.
func (sc *Scorer) ScoreAll(ctx context.Context, snap *graph.Snapshot, topo *topology.Result, gs []Gap) ([]Gap, error) {
	for i := range gs {
		if err := ctx.Err(); err != nil {
			return gs[:i], err
		}
		sc.Score(ctx, snap, topo, &gs[i])
	}
	return gs, nil
}

// Score fills in the gap's score and priority tier.
func (sc *Scorer) Score(ctx context.Context, snap *graph.Snapshot, topo *topology.Result, g *Gap) {
	g.Score = Score{
		Structural:  sc.structural(snap, topo, g),
		Semantic:    sc.semantic(ctx, snap, g),
		Feasibility: sc.feasibility(snap, g),
		Novelty:     sc.novelty(snap, g),
	}
	g.Score.Total = sc.weights.Combine(g.Score)
	g.Priority = PriorityFor(g.Score.Total)
}

// structural estimates how much filling the gap would raise betweenness
// centrality and shorten paths. These are heuristic estimates; the usage
// tracker measures realized impact after a suggestion is applied.
func (sc *Scorer) structural(snap *graph.Snapshot, topo *topology.Result, g *Gap) float64 {
	var gain, reduction float64
	switch g.Type {
	case TypeBridge:
		sizeA, sizeB := communitySize(topo, g.Communities[0]), communitySize(topo, g.Communities[1])
		deficit := 1.0
		if g.ExpectedEdges > 0 {
			deficit = clamp01(1 - float64(g.ActualEdges)/g.ExpectedEdges)
		}
		n := snap.NodeCount()
		pairs := float64(n*(n-1)) / 2
		if pairs > 0 {
			gain = clamp01(float64(sizeA*sizeB)/pairs) * deficit
		}
		reduction = deficit
	case TypeShortcut:
		if g.PathLength > 1 {
			reduction = float64(g.PathLength-1) / float64(g.PathLength)
		}
		if topo.Diameter > 0 {
			gain = clamp01(float64(g.PathLength) / float64(topo.Diameter))
		}
	case TypeHierarchy:
		gain = clamp01(float64(len(g.Children)) / 50)
		reduction = clamp01(1 - topology.LocalClustering(snap, g.Source))
	case TypeOrphan:
		v := 1 / float64(1+snap.Degree(g.Source))
		gain, reduction = v, v
	}
	return clamp01(betweennessWeight*gain + pathReductionWeight*reduction)
}

// semantic combines endpoint similarity with coherence against the
// surrounding context. Any similarity failure yields 0.0.
func (sc *Scorer) semantic(ctx context.Context, snap *graph.Snapshot, g *Gap) float64 {
	if sc.sim == nil {
		return 0
	}

	var endpoint float64
	if g.Target != "" {
		a, _ := snap.Node(g.Source)
		b, _ := snap.Node(g.Target)
		v, err := sc.sim.Pairwise(ctx, a.Text(), b.Text())
		if err != nil {
			return 0
		}
		endpoint = v
	} else {
		// Single-endpoint gaps measure fit against their own surroundings.
		endpoint = sc.contextCoherence(ctx, snap, g)
	}

	coherence := sc.contextCoherence(ctx, snap, g)
	return clamp01(endpointWeight*endpoint + coherenceWeight*coherence)
}

func (sc *Scorer) contextCoherence(ctx context.Context, snap *graph.Snapshot, g *Gap) float64 {
	contexts := coherenceContexts(snap, g)
	if len(contexts) == 0 {
		return 0
	}
	n, _ := snap.Node(g.Source)
	v, err := sc.sim.Coherence(ctx, n.Text(), contexts)
	if err != nil {
		return 0
	}
	return v
}

// coherenceContexts gathers neighbor texts around the gap, deterministic
// and bounded.
func coherenceContexts(snap *graph.Snapshot, g *Gap) []string {
	seen := map[string]bool{g.Source: true}
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if g.Target != "" {
		seen[g.Target] = true
	}
	for _, id := range snap.Neighbors(g.Source) {
		add(id)
	}
	if g.Target != "" {
		for _, id := range snap.Neighbors(g.Target) {
			add(id)
		}
	}
	for _, id := range g.Children {
		add(id)
	}
	sort.Strings(ids)
	if len(ids) > maxCoherenceContexts {
		ids = ids[:maxCoherenceContexts]
	}
	texts := make([]string, len(ids))
	for i, id := range ids {
		n, _ := snap.Node(id)
		texts[i] = n.Text()
	}
	return texts
}

// creationEffort estimates how expensive each remedy is to author.
var creationEffort = map[Type]float64{
	TypeShortcut:  0.2, // one link
	TypeOrphan:    0.4, // several links
	TypeHierarchy: 0.5, // a hub note with an outline
	TypeBridge:    0.6, // a whole new concept note
}

// feasibility is the inverse of creation effort adjusted by how well the
// gap's tags overlap the acting user's expertise.
func (sc *Scorer) feasibility(snap *graph.Snapshot, g *Gap) float64 {
	match := sc.expertiseMatch(gapTags(snap, g))
	return clamp01(0.7*(1-creationEffort[g.Type]) + 0.3*match)
}

func gapTags(snap *graph.Snapshot, g *Gap) []string {
	src, _ := snap.Node(g.Source)
	tags := append([]string(nil), src.Tags...)
	if g.Target != "" {
		dst, _ := snap.Node(g.Target)
		tags = append(tags, dst.Tags...)
	}
	return tags
}

func (sc *Scorer) expertiseMatch(tags []string) float64 {
	if len(sc.expertise) == 0 || len(tags) == 0 {
		return 0.5
	}
	var sum float64
	for _, t := range tags {
		sum += sc.expertise[t]
	}
	return clamp01(sum / float64(len(tags)))
}

// novelty rewards gaps that span otherwise-unconnected domains: different
// folders and disjoint tag sets.
func (sc *Scorer) novelty(snap *graph.Snapshot, g *Gap) float64 {
	src, _ := snap.Node(g.Source)
	if g.Target == "" {
		if g.Type == TypeHierarchy {
			return clamp01(folderSpread(snap, g.Children))
		}
		// An orphan's span is unknown until it is connected.
		return 0.5
	}
	dst, _ := snap.Node(g.Target)

	cross := 0.2
	if src.Folder != dst.Folder {
		cross = 1.0
	}
	return clamp01(0.6*cross + 0.4*tagDistance(src.Tags, dst.Tags))
}

// folderSpread is the fraction of distinct folders among the given nodes.
func folderSpread(snap *graph.Snapshot, ids []string) float64 {
	if len(ids) == 0 {
		return 0
	}
	folders := make(map[string]bool)
	for _, id := range ids {
		n, _ := snap.Node(id)
		folders[n.Folder] = true
	}
	return float64(len(folders)) / float64(len(ids))
}

// tagDistance is the Jaccard distance between two tag sets; fully disjoint
// sets score 1.
func tagDistance(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.5
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := len(set)
	for _, t := range b {
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0.5
	}
	return 1 - float64(inter)/float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func communitySize(topo *topology.Result, id int) int {
	for _, c := range topo.Communities {
		if c.ID == id {
			return len(c.Members)
		}
	}
	return 0
}
