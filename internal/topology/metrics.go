// Package topology computes structural health metrics over a vault snapshot:
// clustering, path lengths, degree distribution, small-world index, and a
// modularity-maximizing community partition. Every computation is a pure
// function of the snapshot; rerunning on an unchanged snapshot with the same
// random seed yields identical results.
package topology

import (
	"fmt"
	"math"

	"github.com/weavenn/weave/internal/graph"
)

// Default degree thresholds for flagging nodes.
const (
	DefaultOrphanDegree = 3
	DefaultHubDegree    = 50
)

// Engine computes topology metrics. The random-graph generator is injected
// so tests can supply a fixed reference graph.
type Engine struct {
	gen          RandomGraphGenerator
	orphanDegree int
	hubDegree    int
}

// NewEngine creates a metrics engine. A nil generator disables the
// small-world index (it is reported as 0). Zero thresholds take defaults.
func NewEngine(gen RandomGraphGenerator, orphanDegree, hubDegree int) *Engine {
	if orphanDegree <= 0 {
		orphanDegree = DefaultOrphanDegree
	}
	if hubDegree <= 0 {
		hubDegree = DefaultHubDegree
	}
	return &Engine{gen: gen, orphanDegree: orphanDegree, hubDegree: hubDegree}
}

// Result holds all metrics for one snapshot. Path-based metrics (average
// path length, diameter, small-world) are computed on the largest connected
// component; AnalyzedNodes records that scope for reporting.
type Result struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`

	Components       int      `json:"components"`
	LargestComponent []string `json:"-"`
	AnalyzedNodes    int      `json:"analyzed_nodes"`

	Clustering    float64 `json:"clustering"`
	AvgPathLength float64 `json:"avg_path_length"`
	Diameter      int     `json:"diameter"`

	RandomClustering float64 `json:"random_clustering"`
	RandomPathLength float64 `json:"random_path_length"`
	SmallWorld       float64 `json:"small_world"`

	Degrees  map[string]int `json:"degrees"`
	Orphaned []string       `json:"orphaned,omitempty"`
	Hubs     []string       `json:"hubs,omitempty"`

	Communities []Community    `json:"communities,omitempty"`
	Membership  map[string]int `json:"-"`
	Modularity  float64        `json:"modularity"`
}

// MeetsTargets reports the health-target checks used for reporting and
// scoring guidance: C > 0.3, L < log2(N), S > 3.
func (r *Result) MeetsTargets() (clustering, pathLength, smallWorld bool) {
	clustering = r.Clustering > 0.3
	if r.NodeCount > 1 {
		pathLength = r.AvgPathLength < math.Log2(float64(r.NodeCount))
	}
	smallWorld = r.SmallWorld > 3
	return
}

// Compute runs all metrics over the snapshot.
func (e *Engine) Compute(snap *graph.Snapshot) (*Result, error) {
	if snap == nil || snap.NodeCount() == 0 {
		return nil, graph.ErrEmptyGraph
	}

	r := &Result{
		NodeCount: snap.NodeCount(),
		EdgeCount: snap.EdgeCount(),
		Degrees:   make(map[string]int, snap.NodeCount()),
	}

	for _, id := range snap.NodeIDs() {
		d := snap.Degree(id)
		r.Degrees[id] = d
		if d < e.orphanDegree {
			r.Orphaned = append(r.Orphaned, id)
		}
		if d > e.hubDegree {
			r.Hubs = append(r.Hubs, id)
		}
	}

	comps := snap.ConnectedComponents()
	r.Components = len(comps)
	r.LargestComponent = comps[0]
	r.AnalyzedNodes = len(comps[0])

	r.Clustering = ClusteringCoefficient(snap)

	if r.AnalyzedNodes > 1 {
		lcc, err := snap.Subgraph(r.LargestComponent)
		if err != nil {
			return nil, fmt.Errorf("largest component: %w", err)
		}
		r.AvgPathLength, r.Diameter = pathMetrics(lcc)
	}

	r.Communities, r.Membership, r.Modularity = DetectCommunities(snap)

	if e.gen != nil {
		if err := e.smallWorld(snap, r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// smallWorld compares the observed clustering and path length against an
// equivalent random graph: S = (C/C_rand) / (L/L_rand). Undefined ratios
// (empty random graph, zero path length) leave S at 0.
func (e *Engine) smallWorld(snap *graph.Snapshot, r *Result) error {
	random, err := e.gen.Generate(snap.NodeCount(), snap.Density())
	if err != nil {
		return fmt.Errorf("random reference graph: %w", err)
	}

	r.RandomClustering = ClusteringCoefficient(random)
	comps := random.ConnectedComponents()
	if len(comps[0]) > 1 {
		lcc, err := random.Subgraph(comps[0])
		if err != nil {
			return err
		}
		r.RandomPathLength, _ = pathMetrics(lcc)
	}

	if r.RandomClustering > 0 && r.RandomPathLength > 0 && r.AvgPathLength > 0 {
		gamma := r.Clustering / r.RandomClustering
		lambda := r.AvgPathLength / r.RandomPathLength
		if lambda > 0 {
			r.SmallWorld = gamma / lambda
		}
	}
	return nil
}

// ClusteringCoefficient returns the average, over nodes with degree >= 2,
// of the fraction of each node's neighbor pairs that are themselves linked.
// A graph with no such nodes has coefficient 0.
func ClusteringCoefficient(snap *graph.Snapshot) float64 {
	var sum float64
	counted := 0
	for _, id := range snap.NodeIDs() {
		nbrs := snap.Neighbors(id)
		k := len(nbrs)
		if k < 2 {
			continue
		}
		linked := 0
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if snap.HasEdge(nbrs[i], nbrs[j]) {
					linked++
				}
			}
		}
		sum += 2 * float64(linked) / (float64(k) * float64(k-1))
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

// LocalClustering returns the clustering coefficient of a single node's
// neighborhood, or 0 for degree < 2.
func LocalClustering(snap *graph.Snapshot, id string) float64 {
	nbrs := snap.Neighbors(id)
	k := len(nbrs)
	if k < 2 {
		return 0
	}
	linked := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if snap.HasEdge(nbrs[i], nbrs[j]) {
				linked++
			}
		}
	}
	return 2 * float64(linked) / (float64(k) * float64(k-1))
}

// pathMetrics computes mean shortest-path distance and diameter over a
// connected snapshot by BFS from every node.
func pathMetrics(connected *graph.Snapshot) (avg float64, diameter int) {
	ids := connected.NodeIDs()
	var total float64
	pairs := 0
	for _, id := range ids {
		dist := connected.BFSFrom(id)
		for other, d := range dist {
			if other == id {
				continue
			}
			total += float64(d)
			pairs++
			if d > diameter {
				diameter = d
			}
		}
	}
	if pairs == 0 {
		return 0, 0
	}
	// Each unordered pair is visited twice; the ratio is unaffected.
	return total / float64(pairs), diameter
}
