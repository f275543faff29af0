package gaps

import (
	"context"
	"sort"
	"sync"

	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/topology"
	"github.com/weavenn/weave/internal/vector"
)

// Config holds the detection thresholds. Zero values fall back to defaults,
// so a partially filled config is usable.
type Config struct {
	// LongPathHops is the shortest-path distance beyond which a node pair
	// becomes a shortcut candidate.
	LongPathHops int
	// MinCommunitySize is the smallest community considered for bridge gaps.
	MinCommunitySize int
	// ShortcutSimilarity is the minimum semantic similarity for a shortcut
	// candidate to become a gap.
	ShortcutSimilarity float64
	// MaxShortcutPairs bounds the candidate pair scan; pairs are ranked by
	// combined degree before the cut so the bound is deterministic.
	MaxShortcutPairs int
	// HierarchyDegree is the neighbor count at which a node is considered
	// overloaded.
	HierarchyDegree int
	// HierarchyCohesion is the local clustering below which an overloaded
	// neighborhood counts as loosely connected.
	HierarchyCohesion float64
	// OrganizerFraction disqualifies a hierarchy gap when some neighbor is
	// already adjacent to at least this fraction of the other neighbors.
	OrganizerFraction float64
	// BridgeEdgeFraction flags a community pair when its inter-edge count is
	// below this fraction of the density-predicted count.
	BridgeEdgeFraction float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		LongPathHops:       4,
		MinCommunitySize:   5,
		ShortcutSimilarity: 0.7,
		MaxShortcutPairs:   500,
		HierarchyDegree:    12,
		HierarchyCohesion:  0.25,
		OrganizerFraction:  0.6,
		BridgeEdgeFraction: 0.5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LongPathHops <= 0 {
		c.LongPathHops = d.LongPathHops
	}
	if c.MinCommunitySize <= 0 {
		c.MinCommunitySize = d.MinCommunitySize
	}
	if c.ShortcutSimilarity <= 0 {
		c.ShortcutSimilarity = d.ShortcutSimilarity
	}
	if c.MaxShortcutPairs <= 0 {
		c.MaxShortcutPairs = d.MaxShortcutPairs
	}
	if c.HierarchyDegree <= 0 {
		c.HierarchyDegree = d.HierarchyDegree
	}
	if c.HierarchyCohesion <= 0 {
		c.HierarchyCohesion = d.HierarchyCohesion
	}
	if c.OrganizerFraction <= 0 {
		c.OrganizerFraction = d.OrganizerFraction
	}
	if c.BridgeEdgeFraction <= 0 {
		c.BridgeEdgeFraction = d.BridgeEdgeFraction
	}
	return c
}

// Detector runs the four gap detectors over a snapshot and its topology
// metrics. Detectors only read their inputs, so they are safe to run
// concurrently.
type Detector struct {
	cfg Config
	sim vector.Similarity
}

// NewDetector builds a Detector. sim may be nil, in which case the shortcut
// detector emits no gaps (similarity unknown for every pair).
func NewDetector(cfg Config, sim vector.Similarity) *Detector {
	return &Detector{cfg: cfg.withDefaults(), sim: sim}
}

// DetectAll runs the four detectors in parallel and concatenates their
// results in fixed order: bridge, shortcut, hierarchy, orphan.
func (d *Detector) DetectAll(ctx context.Context, snap *graph.Snapshot, topo *topology.Result) []Gap {
	var out [4][]Gap
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); out[0] = d.Bridges(snap, topo) }()
	go func() { defer wg.Done(); out[1] = d.Shortcuts(ctx, snap, topo) }()
	go func() { defer wg.Done(); out[2] = d.Hierarchies(snap, topo) }()
	go func() { defer wg.Done(); out[3] = d.Orphans(topo) }()
	wg.Wait()

	var all []Gap
	for _, gs := range out {
		all = append(all, gs...)
	}
	return all
}

// Bridges flags community pairs whose inter-community edge count is zero or
// far below what overall density predicts. Endpoints are the highest-degree
// node of each community.
func (d *Detector) Bridges(snap *graph.Snapshot, topo *topology.Result) []Gap {
	var comms []topology.Community
	for _, c := range topo.Communities {
		if len(c.Members) >= d.cfg.MinCommunitySize {
			comms = append(comms, c)
		}
	}

	density := snap.Density()
	var out []Gap
	for i := 0; i < len(comms); i++ {
		for j := i + 1; j < len(comms); j++ {
			a, b := comms[i], comms[j]
			actual := interEdges(snap, a.Members, b.Members)
			expected := density * float64(len(a.Members)) * float64(len(b.Members))
			if actual > 0 && float64(actual) >= d.cfg.BridgeEdgeFraction*expected {
				continue
			}
			out = append(out, Gap{
				Type:          TypeBridge,
				Source:        representative(snap, a.Members),
				Target:        representative(snap, b.Members),
				Communities:   [2]int{a.ID, b.ID},
				ActualEdges:   actual,
				ExpectedEdges: expected,
			})
		}
	}
	return out
}

func interEdges(snap *graph.Snapshot, a, b []string) int {
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}
	count := 0
	for _, id := range a {
		for _, n := range snap.Neighbors(id) {
			if inB[n] {
				count++
			}
		}
	}
	return count
}

// representative picks the highest-degree member, smallest id on ties.
// Members arrive sorted, so the first maximum wins.
func representative(snap *graph.Snapshot, members []string) string {
	best := members[0]
	bestDeg := snap.Degree(best)
	for _, id := range members[1:] {
		if deg := snap.Degree(id); deg > bestDeg {
			best, bestDeg = id, deg
		}
	}
	return best
}

// Shortcuts flags node pairs whose graph distance exceeds the hop threshold
// but whose semantic similarity is high. Pairs where similarity cannot be
// computed are skipped rather than failing the scan.
func (d *Detector) Shortcuts(ctx context.Context, snap *graph.Snapshot, topo *topology.Result) []Gap {
	type pair struct {
		a, b string
		dist int
	}
	var candidates []pair
	ids := snap.NodeIDs()
	for _, a := range ids {
		dists := snap.BFSFrom(a)
		for b, dist := range dists {
			if b <= a || dist <= d.cfg.LongPathHops {
				continue
			}
			candidates = append(candidates, pair{a: a, b: b, dist: dist})
		}
	}

	// Rank by combined degree so the cap keeps the most central pairs, with
	// a lexicographic tiebreak for determinism.
	sort.Slice(candidates, func(i, j int) bool {
		di := snap.Degree(candidates[i].a) + snap.Degree(candidates[i].b)
		dj := snap.Degree(candidates[j].a) + snap.Degree(candidates[j].b)
		if di != dj {
			return di > dj
		}
		if candidates[i].a != candidates[j].a {
			return candidates[i].a < candidates[j].a
		}
		return candidates[i].b < candidates[j].b
	})
	if len(candidates) > d.cfg.MaxShortcutPairs {
		candidates = candidates[:d.cfg.MaxShortcutPairs]
	}

	var out []Gap
	if d.sim == nil {
		return out
	}
	for _, p := range candidates {
		if ctx.Err() != nil {
			return out
		}
		na, _ := snap.Node(p.a)
		nb, _ := snap.Node(p.b)
		sim, err := d.sim.Pairwise(ctx, na.Text(), nb.Text())
		if err != nil || sim < d.cfg.ShortcutSimilarity {
			continue
		}
		out = append(out, Gap{
			Type:       TypeShortcut,
			Source:     p.a,
			Target:     p.b,
			PathLength: p.dist,
			Similarity: sim,
		})
	}
	return out
}

// Hierarchies flags nodes with many loosely connected neighbors and no
// neighbor already acting as an organizer.
func (d *Detector) Hierarchies(snap *graph.Snapshot, topo *topology.Result) []Gap {
	var out []Gap
	for _, id := range snap.NodeIDs() {
		nbrs := snap.Neighbors(id)
		if len(nbrs) < d.cfg.HierarchyDegree {
			continue
		}
		if topology.LocalClustering(snap, id) >= d.cfg.HierarchyCohesion {
			continue
		}
		if hasOrganizer(snap, nbrs, d.cfg.OrganizerFraction) {
			continue
		}
		out = append(out, Gap{Type: TypeHierarchy, Source: id, Children: nbrs})
	}
	return out
}

func hasOrganizer(snap *graph.Snapshot, nbrs []string, fraction float64) bool {
	need := fraction * float64(len(nbrs)-1)
	for _, candidate := range nbrs {
		adjacent := 0
		for _, other := range nbrs {
			if other != candidate && snap.HasEdge(candidate, other) {
				adjacent++
			}
		}
		if float64(adjacent) >= need {
			return true
		}
	}
	return false
}

// Orphans flags under-connected nodes outside every community.
func (d *Detector) Orphans(topo *topology.Result) []Gap {
	var out []Gap
	for _, id := range topo.Orphaned {
		if _, ok := topo.Membership[id]; ok {
			continue
		}
		out = append(out, Gap{Type: TypeOrphan, Source: id})
	}
	return out
}
