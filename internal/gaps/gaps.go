// Package gaps detects structural weaknesses in a knowledge graph and
// scores them for repair priority. Four detectors (bridge, shortcut,
// hierarchy, orphan) read an immutable snapshot plus topology metrics and
// emit candidate gaps; the scorer ranks candidates with a weighted
// multi-factor model.
package gaps

import (
	"fmt"
	"sort"
	"strings"
)

// Type classifies a structural weakness.
type Type string

const (
	TypeBridge    Type = "bridge"    // two communities with little or no connection
	TypeShortcut  Type = "shortcut"  // semantically close nodes far apart in the graph
	TypeHierarchy Type = "hierarchy" // overloaded node lacking an organizing hub
	TypeOrphan    Type = "orphan"    // under-connected node outside every community
)

// Score is the multi-factor assessment of one gap. All fields are in [0,1].
type Score struct {
	Total       float64 `json:"total"`
	Structural  float64 `json:"structural"`
	Semantic    float64 `json:"semantic"`
	Feasibility float64 `json:"feasibility"`
	Novelty     float64 `json:"novelty"`
}

// Priority buckets a total score for display urgency. It never filters:
// every scored gap stays retrievable regardless of tier.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityFor maps a total score to its tier.
func PriorityFor(total float64) Priority {
	switch {
	case total > 0.8:
		return PriorityCritical
	case total >= 0.6:
		return PriorityHigh
	case total >= 0.4:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Gap is one candidate structural weakness. Source and Target carry the
// endpoints: the representative nodes of the two communities for bridge
// gaps, the distant pair for shortcut gaps, the overloaded parent for
// hierarchy gaps (Target empty), and the isolated node for orphan gaps
// (Target empty).
type Gap struct {
	Type   Type   `json:"type"`
	Source string `json:"source"`
	Target string `json:"target,omitempty"`

	// Bridge fields.
	Communities   [2]int  `json:"communities,omitempty"`
	ActualEdges   int     `json:"actual_edges,omitempty"`
	ExpectedEdges float64 `json:"expected_edges,omitempty"`

	// Shortcut fields.
	PathLength int     `json:"path_length,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`

	// Hierarchy fields.
	Children []string `json:"children,omitempty"`

	Score    Score    `json:"score"`
	Priority Priority `json:"priority,omitempty"`
}

// Signature returns a stable identity for the gap across analysis runs on
// the same graph: type plus sorted endpoint ids. Acceptance history in the
// usage log is keyed by this value.
func (g *Gap) Signature() string {
	ends := []string{g.Source}
	if g.Target != "" {
		ends = append(ends, g.Target)
	}
	sort.Strings(ends)
	return fmt.Sprintf("%s:%s", g.Type, strings.Join(ends, "|"))
}
