package topology

import (
	"fmt"
	"math/rand"

	"github.com/weavenn/weave/internal/graph"
)

// RandomGraphGenerator produces the reference graph used by the small-world
// index. Injected so tests can supply a deterministic fake.
type RandomGraphGenerator interface {
	// Generate returns a random graph with n nodes and approximately the
	// given edge density.
	Generate(n int, density float64) (*graph.Snapshot, error)
}

// ErdosRenyi generates G(n, p) graphs from a fixed seed, so repeated runs
// over the same snapshot produce the same reference metrics.
type ErdosRenyi struct {
	seed int64
}

// NewErdosRenyi creates a seeded generator.
func NewErdosRenyi(seed int64) *ErdosRenyi {
	return &ErdosRenyi{seed: seed}
}

// Generate includes each possible edge independently with probability equal
// to the requested density.
func (g *ErdosRenyi) Generate(n int, density float64) (*graph.Snapshot, error) {
	if n <= 0 {
		return nil, graph.ErrEmptyGraph
	}
	if density < 0 || density > 1 {
		return nil, fmt.Errorf("topology: density %v out of range", density)
	}

	rng := rand.New(rand.NewSource(g.seed))
	nodes := make([]graph.Node, n)
	for i := range nodes {
		nodes[i] = graph.Node{ID: fmt.Sprintf("r%06d", i)}
	}
	var edges []graph.Edge
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() < density {
				edges = append(edges, graph.Edge{Source: nodes[i].ID, Target: nodes[j].ID})
			}
		}
	}
	return graph.Build(nodes, edges)
}

var _ RandomGraphGenerator = (*ErdosRenyi)(nil)
