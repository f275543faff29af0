package snapshot

import "github.com/weavenn/weave/internal/graph"

// Diff lists what changed between two snapshots.
type Diff struct {
	AddedNodes   []string     `json:"added_nodes,omitempty"`
	RemovedNodes []string     `json:"removed_nodes,omitempty"`
	AddedEdges   []graph.Edge `json:"added_edges,omitempty"`
	RemovedEdges []graph.Edge `json:"removed_edges,omitempty"`
}

// Empty reports whether the two snapshots were identical.
func (d *Diff) Empty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// Compare returns the node and edge changes from before to after. Output
// order follows the snapshots' sorted iteration order, so it is stable.
func Compare(before, after *graph.Snapshot) *Diff {
	d := &Diff{}

	for _, id := range after.NodeIDs() {
		if !before.HasNode(id) {
			d.AddedNodes = append(d.AddedNodes, id)
		}
	}
	for _, id := range before.NodeIDs() {
		if !after.HasNode(id) {
			d.RemovedNodes = append(d.RemovedNodes, id)
		}
	}
	for _, e := range after.Edges() {
		if !before.HasNode(e.Source) || !before.HasNode(e.Target) || !before.HasEdge(e.Source, e.Target) {
			d.AddedEdges = append(d.AddedEdges, e)
		}
	}
	for _, e := range before.Edges() {
		if !after.HasNode(e.Source) || !after.HasNode(e.Target) || !after.HasEdge(e.Source, e.Target) {
			d.RemovedEdges = append(d.RemovedEdges, e)
		}
	}
	return d
}
