package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrEmptyGraph is returned when a snapshot is built from zero nodes.
// Analysis cannot produce anything meaningful on an empty vault.
var ErrEmptyGraph = errors.New("graph: snapshot contains no nodes")

// Node is a single note in the vault. The engine never mutates note content;
// it only reads the attributes captured at snapshot time.
type Node struct {
	ID       string    `json:"id"`
	Title    string    `json:"title,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Folder   string    `json:"folder,omitempty"`
	Created  time.Time `json:"created,omitempty"`
	Modified time.Time `json:"modified,omitempty"`
}

// Text returns the textual surface of a node used for embedding: the title
// (falling back to the id) plus its tags.
func (n Node) Text() string {
	title := n.Title
	if title == "" {
		title = n.ID
	}
	if len(n.Tags) == 0 {
		return title
	}
	return title + " " + strings.Join(n.Tags, " ")
}

// Edge is a link between two notes. Links are directed in note content but
// undirected for topology, so Build collapses (a,b) and (b,a).
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Snapshot is an immutable view of the vault graph at one point in time.
// All analysis runs against a single snapshot; nothing here mutates after
// Build returns, so a snapshot is safe for concurrent readers.
type Snapshot struct {
	nodes map[string]Node
	adj   map[string]map[string]bool
	ids   []string // sorted, for deterministic iteration
	edges int
}

// Build constructs a snapshot from nodes and edges. Duplicate edges and
// self-links are collapsed; an edge referencing a node absent from the
// snapshot is an input error.
func Build(nodes []Node, edges []Edge) (*Snapshot, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	s := &Snapshot{
		nodes: make(map[string]Node, len(nodes)),
		adj:   make(map[string]map[string]bool, len(nodes)),
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("graph: node with empty id")
		}
		if _, dup := s.nodes[n.ID]; dup {
			return nil, fmt.Errorf("graph: duplicate node id %q", n.ID)
		}
		s.nodes[n.ID] = n
		s.adj[n.ID] = make(map[string]bool)
		s.ids = append(s.ids, n.ID)
	}
	sort.Strings(s.ids)

	for _, e := range edges {
		if e.Source == e.Target {
			continue
		}
		if _, ok := s.nodes[e.Source]; !ok {
			return nil, fmt.Errorf("graph: edge references unknown node %q", e.Source)
		}
		if _, ok := s.nodes[e.Target]; !ok {
			return nil, fmt.Errorf("graph: edge references unknown node %q", e.Target)
		}
		if s.adj[e.Source][e.Target] {
			continue
		}
		s.adj[e.Source][e.Target] = true
		s.adj[e.Target][e.Source] = true
		s.edges++
	}
	return s, nil
}

// NodeCount returns the number of nodes.
func (s *Snapshot) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of undirected edges.
func (s *Snapshot) EdgeCount() int { return s.edges }

// Density returns the fraction of possible undirected edges present.
func (s *Snapshot) Density() float64 {
	n := len(s.nodes)
	if n < 2 {
		return 0
	}
	return 2 * float64(s.edges) / (float64(n) * float64(n-1))
}

// NodeIDs returns all node ids in sorted order.
func (s *Snapshot) NodeIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Node returns the node with the given id.
func (s *Snapshot) Node(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// HasNode reports whether a node exists.
func (s *Snapshot) HasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// HasEdge reports whether an undirected edge exists between a and b.
func (s *Snapshot) HasEdge(a, b string) bool {
	return s.adj[a][b]
}

// Neighbors returns a node's neighbors in sorted order.
func (s *Snapshot) Neighbors(id string) []string {
	nbrs := s.adj[id]
	if len(nbrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(nbrs))
	for n := range nbrs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Degree returns the number of neighbors of a node.
func (s *Snapshot) Degree(id string) int {
	return len(s.adj[id])
}

// ShortestPathLength returns the hop distance between a and b via BFS, or
// -1 when b is unreachable from a.
func (s *Snapshot) ShortestPathLength(a, b string) int {
	if !s.HasNode(a) || !s.HasNode(b) {
		return -1
	}
	if a == b {
		return 0
	}
	dist := s.BFSFrom(a)
	d, ok := dist[b]
	if !ok {
		return -1
	}
	return d
}

// BFSFrom returns hop distances from the start node to every reachable node,
// including the start itself at distance 0.
func (s *Snapshot) BFSFrom(start string) map[string]int {
	dist := map[string]int{start: 0}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for nbr := range s.adj[cur] {
			if _, seen := dist[nbr]; !seen {
				dist[nbr] = dist[cur] + 1
				queue = append(queue, nbr)
			}
		}
	}
	return dist
}

// ConnectedComponents returns the components of the graph, largest first
// (ties broken by smallest member id). Each component's members are sorted.
func (s *Snapshot) ConnectedComponents() [][]string {
	seen := make(map[string]bool, len(s.nodes))
	var comps [][]string
	for _, id := range s.ids {
		if seen[id] {
			continue
		}
		var comp []string
		queue := []string{id}
		seen[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for nbr := range s.adj[cur] {
				if !seen[nbr] {
					seen[nbr] = true
					queue = append(queue, nbr)
				}
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(i, j int) bool {
		if len(comps[i]) != len(comps[j]) {
			return len(comps[i]) > len(comps[j])
		}
		return comps[i][0] < comps[j][0]
	})
	return comps
}

// Subgraph returns a new snapshot restricted to the given node ids. Edges
// with an endpoint outside the set are dropped.
func (s *Snapshot) Subgraph(ids []string) (*Snapshot, error) {
	keep := make(map[string]bool, len(ids))
	var nodes []Node
	for _, id := range ids {
		n, ok := s.nodes[id]
		if !ok {
			return nil, fmt.Errorf("graph: subgraph references unknown node %q", id)
		}
		keep[id] = true
		nodes = append(nodes, n)
	}
	var edges []Edge
	for _, id := range ids {
		for nbr := range s.adj[id] {
			if keep[nbr] && id < nbr {
				edges = append(edges, Edge{Source: id, Target: nbr})
			}
		}
	}
	return Build(nodes, edges)
}

// Edges returns all undirected edges with Source < Target, sorted.
func (s *Snapshot) Edges() []Edge {
	var out []Edge
	for _, id := range s.ids {
		for nbr := range s.adj[id] {
			if id < nbr {
				out = append(out, Edge{Source: id, Target: nbr})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// ContentHash returns a stable SHA-256 over the node set and edge set. Two
// snapshots with the same topology and attributes hash identically.
func (s *Snapshot) ContentHash() string {
	h := sha256.New()
	for _, id := range s.ids {
		n := s.nodes[id]
		h.Write([]byte(n.ID))
		h.Write([]byte(n.Title))
		h.Write([]byte(n.Folder))
		tags := append([]string(nil), n.Tags...)
		sort.Strings(tags)
		for _, t := range tags {
			h.Write([]byte(t))
		}
	}
	for _, e := range s.Edges() {
		h.Write([]byte(e.Source))
		h.Write([]byte{0})
		h.Write([]byte(e.Target))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
