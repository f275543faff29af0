package topology

import (
	"sort"

	"github.com/weavenn/weave/internal/graph"
)

// Community is one cell of the modularity partition. Members are sorted.
type Community struct {
	ID      int      `json:"id"`
	Members []string `json:"members"`
}

const maxPasses = 32

// DetectCommunities partitions the graph by greedy modularity optimization
// (single-level Louvain moves iterated to convergence). Node visiting order
// is fixed, so the partition is deterministic. Singleton communities are
// omitted from the returned list and membership map; they still count
// toward the modularity score. Returns communities (largest first), a
// node-to-community index, and the overall modularity.
func DetectCommunities(s *graph.Snapshot) ([]Community, map[string]int, float64) {
	m := float64(s.EdgeCount())
	if m == 0 {
		return nil, map[string]int{}, 0
	}

	ids := s.NodeIDs()
	assign := make(map[string]int, len(ids))
	degree := make(map[string]float64, len(ids))
	sumTot := make(map[int]float64, len(ids))
	for i, id := range ids {
		assign[id] = i
		degree[id] = float64(s.Degree(id))
		sumTot[i] = degree[id]
	}

	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for _, id := range ids {
			k := degree[id]
			if k == 0 {
				continue
			}
			cur := assign[id]

			// Edges from this node into each adjacent community.
			linksTo := make(map[int]float64)
			for _, nbr := range s.Neighbors(id) {
				linksTo[assign[nbr]]++
			}

			// Detach before evaluating candidates.
			sumTot[cur] -= k

			best := cur
			bestGain := linksTo[cur] - sumTot[cur]*k/(2*m)
			cands := make([]int, 0, len(linksTo))
			for c := range linksTo {
				cands = append(cands, c)
			}
			sort.Ints(cands)
			for _, c := range cands {
				if c == cur {
					continue
				}
				gain := linksTo[c] - sumTot[c]*k/(2*m)
				if gain > bestGain {
					bestGain = gain
					best = c
				}
			}

			sumTot[best] += k
			if best != cur {
				assign[id] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	return finalize(s, assign, m)
}

// Modularity computes Q for an arbitrary assignment. Nodes absent from the
// assignment are treated as singleton communities.
func Modularity(s *graph.Snapshot, membership map[string]int) float64 {
	m := float64(s.EdgeCount())
	if m == 0 {
		return 0
	}
	// Remap to avoid collisions between explicit ids and implicit singletons.
	next := 0
	remap := make(map[int]int)
	assign := make(map[string]int, s.NodeCount())
	for _, id := range s.NodeIDs() {
		if c, ok := membership[id]; ok {
			mapped, seen := remap[c]
			if !seen {
				mapped = next
				next++
				remap[c] = mapped
			}
			assign[id] = mapped
		} else {
			assign[id] = next
			next++
		}
	}
	return modularityOf(s, assign, m)
}

func modularityOf(s *graph.Snapshot, assign map[string]int, m float64) float64 {
	intra := make(map[int]float64)
	degSum := make(map[int]float64)
	for _, id := range s.NodeIDs() {
		c := assign[id]
		degSum[c] += float64(s.Degree(id))
		for _, nbr := range s.Neighbors(id) {
			if id < nbr && assign[nbr] == c {
				intra[c]++
			}
		}
	}
	var q float64
	for c, ds := range degSum {
		frac := ds / (2 * m)
		q += intra[c]/m - frac*frac
	}
	return q
}

// finalize renumbers communities by smallest member, drops singletons, and
// computes the modularity of the final assignment.
func finalize(s *graph.Snapshot, assign map[string]int, m float64) ([]Community, map[string]int, float64) {
	q := modularityOf(s, assign, m)

	groups := make(map[int][]string)
	for _, id := range s.NodeIDs() {
		c := assign[id]
		groups[c] = append(groups[c], id)
	}

	var comms []Community
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		comms = append(comms, Community{Members: members})
	}
	sort.Slice(comms, func(i, j int) bool {
		if len(comms[i].Members) != len(comms[j].Members) {
			return len(comms[i].Members) > len(comms[j].Members)
		}
		return comms[i].Members[0] < comms[j].Members[0]
	})

	membership := make(map[string]int)
	for i := range comms {
		comms[i].ID = i
		for _, id := range comms[i].Members {
			membership[id] = i
		}
	}
	return comms, membership, q
}
