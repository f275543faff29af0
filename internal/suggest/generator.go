package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/weavenn/weave/internal/gaps"
	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/llmutil"
	"github.com/weavenn/weave/internal/observability"
	"github.com/weavenn/weave/internal/topology"
	"github.com/weavenn/weave/internal/vector"
)

// Config holds generation settings. Zero values fall back to defaults.
type Config struct {
	// WindowLow and WindowHigh bound the closed similarity acceptance
	// window for generated bridge concepts.
	WindowLow  float64
	WindowHigh float64
	// MaxProposals caps how many intermediate concepts one LLM call may
	// contribute.
	MaxProposals int
	// SampleSize is how many representative nodes are drawn from each
	// community for the generation prompt.
	SampleSize int
	// MaxLinks caps the direct-link suggestions for one orphan gap.
	MaxLinks int
	// Seed drives representative sampling, making runs reproducible.
	Seed int64
}

// DefaultConfig returns the standard generation settings.
func DefaultConfig() Config {
	return Config{
		WindowLow:    0.5,
		WindowHigh:   0.7,
		MaxProposals: 3,
		SampleSize:   3,
		MaxLinks:     3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowLow <= 0 {
		c.WindowLow = d.WindowLow
	}
	if c.WindowHigh <= 0 {
		c.WindowHigh = d.WindowHigh
	}
	if c.MaxProposals <= 0 {
		c.MaxProposals = d.MaxProposals
	}
	if c.SampleSize <= 0 {
		c.SampleSize = d.SampleSize
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = d.MaxLinks
	}
	return c
}

// Generator produces remedies for scored gaps. provider may be nil, in
// which case bridge gaps report generation_failed and the non-LLM remedies
// still work.
type Generator struct {
	provider llm.Provider
	sim      vector.Similarity
	cfg      Config
	newID    func() string
}

// NewGenerator builds a Generator.
func NewGenerator(provider llm.Provider, sim vector.Similarity, cfg Config) *Generator {
	return &Generator{
		provider: provider,
		sim:      sim,
		cfg:      cfg.withDefaults(),
		newID:    uuid.NewString,
	}
}

// Generate produces suggestions for one gap. Failures of the external
// text-generation capability surface as suggestions with status
// generation_failed rather than errors, so one bad gap never aborts a run.
func (g *Generator) Generate(ctx context.Context, snap *graph.Snapshot, topo *topology.Result, gap gaps.Gap) []Suggestion {
	switch gap.Type {
	case gaps.TypeBridge:
		return g.bridgeConcepts(ctx, snap, topo, gap)
	case gaps.TypeShortcut:
		return []Suggestion{g.directLink(snap, gap)}
	case gaps.TypeHierarchy:
		return []Suggestion{g.organizingHub(snap, gap)}
	case gaps.TypeOrphan:
		return g.orphanLinks(ctx, snap, topo, gap)
	default:
		return nil
	}
}

// bridgeConcepts asks the LLM for intermediate concepts joining two
// communities, then keeps only proposals whose similarity to each side
// falls inside the acceptance window.
func (g *Generator) bridgeConcepts(ctx context.Context, snap *graph.Snapshot, topo *topology.Result, gap gaps.Gap) []Suggestion {
	if g.provider == nil {
		return []Suggestion{g.failed(gap, KindNewConcept, "no text generation provider configured")}
	}

	sideA := g.sampleCommunity(snap, topo, gap.Communities[0], gap.Source)
	sideB := g.sampleCommunity(snap, topo, gap.Communities[1], gap.Target)

	resp, err := g.complete(ctx, bridgePrompt(sideA, sideB))
	if err != nil {
		return []Suggestion{g.failed(gap, KindNewConcept, err.Error())}
	}
	proposals, err := parseProposals(resp.Content, g.cfg.MaxProposals)
	if err != nil {
		return []Suggestion{g.failed(gap, KindNewConcept, fmt.Sprintf("unparseable response: %v", err))}
	}

	var out []Suggestion
	simErrs := 0
	var lastSimErr error
	for _, p := range proposals {
		text := p.Title + " " + p.Description
		simA, errA := g.sideSimilarity(ctx, text, sideA)
		simB, errB := g.sideSimilarity(ctx, text, sideB)
		if errA != nil || errB != nil {
			// Similarity unknown: the window check cannot pass.
			simErrs++
			if errA != nil {
				lastSimErr = errA
			} else {
				lastSimErr = errB
			}
			continue
		}
		if !InWindow(simA, g.cfg.WindowLow, g.cfg.WindowHigh) || !InWindow(simB, g.cfg.WindowLow, g.cfg.WindowHigh) {
			continue
		}
		out = append(out, Suggestion{
			ID:             g.newID(),
			GapSignature:   gap.Signature(),
			Kind:           KindNewConcept,
			Status:         StatusOK,
			Title:          p.Title,
			Description:    p.Description,
			LinkTo:         []string{gap.Source, gap.Target},
			SideSimilarity: []float64{simA, simB},
		})
	}
	if len(out) == 0 && simErrs == len(proposals) {
		// Every proposal was lost to the similarity port, not the window.
		return []Suggestion{g.failed(gap, KindNewConcept,
			fmt.Sprintf("similarity unavailable: %v", lastSimErr))}
	}
	return out
}

func (g *Generator) sideSimilarity(ctx context.Context, text string, side []string) (float64, error) {
	if g.sim == nil {
		return 0, fmt.Errorf("no similarity port configured")
	}
	return g.sim.Coherence(ctx, text, side)
}

// directLink proposes a single new link for a shortcut gap and reports the
// path-length reduction it achieves.
func (g *Generator) directLink(snap *graph.Snapshot, gap gaps.Gap) Suggestion {
	reduction := 0
	if gap.PathLength > 1 {
		reduction = gap.PathLength - 1
	}
	return Suggestion{
		ID:            g.newID(),
		GapSignature:  gap.Signature(),
		Kind:          KindDirectLink,
		Status:        StatusOK,
		Source:        gap.Source,
		Target:        gap.Target,
		Relationship:  relationshipLabel(snap, gap.Source, gap.Target),
		PathReduction: reduction,
	}
}

// relationshipLabel infers a link label from shared tags or folders.
func relationshipLabel(snap *graph.Snapshot, source, target string) string {
	a, _ := snap.Node(source)
	b, _ := snap.Node(target)
	for _, ta := range a.Tags {
		for _, tb := range b.Tags {
			if ta == tb {
				return "shares_topic_" + ta
			}
		}
	}
	if a.Folder != "" && a.Folder == b.Folder {
		return "same_area"
	}
	return "relates_to"
}

// organizingHub proposes a hub note whose outline groups the children by
// folder, falling back to first tag.
func (g *Generator) organizingHub(snap *graph.Snapshot, gap gaps.Gap) Suggestion {
	parent, _ := snap.Node(gap.Source)
	title := parent.Title
	if title == "" {
		title = parent.ID
	}

	groups := make(map[string][]string)
	for _, id := range gap.Children {
		n, _ := snap.Node(id)
		heading := n.Folder
		if heading == "" && len(n.Tags) > 0 {
			heading = n.Tags[0]
		}
		if heading == "" {
			heading = "general"
		}
		groups[heading] = append(groups[heading], id)
	}
	headings := make([]string, 0, len(groups))
	for h := range groups {
		headings = append(headings, h)
	}
	sort.Strings(headings)

	outline := make([]OutlineSection, len(headings))
	for i, h := range headings {
		sort.Strings(groups[h])
		outline[i] = OutlineSection{Heading: h, Children: groups[h]}
	}

	return Suggestion{
		ID:           g.newID(),
		GapSignature: gap.Signature(),
		Kind:         KindOrganizingHub,
		Status:       StatusOK,
		Title:        "Map of Content: " + title,
		Parent:       gap.Source,
		Outline:      outline,
	}
}

// orphanLinks proposes direct links from an isolated node to representative
// nodes of the largest communities, ranked by similarity when available.
func (g *Generator) orphanLinks(ctx context.Context, snap *graph.Snapshot, topo *topology.Result, gap gaps.Gap) []Suggestion {
	type candidate struct {
		id  string
		sim float64
	}
	orphan, _ := snap.Node(gap.Source)

	var cands []candidate
	for _, c := range topo.Communities {
		rep := highestDegree(snap, c.Members)
		if rep == "" || rep == gap.Source {
			continue
		}
		cand := candidate{id: rep}
		if g.sim != nil {
			repNode, _ := snap.Node(rep)
			if v, err := g.sim.Pairwise(ctx, orphan.Text(), repNode.Text()); err == nil {
				cand.sim = v
			}
		}
		cands = append(cands, cand)
	}
	// Communities arrive largest first; a stable sort keeps that order
	// among similarity ties.
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].sim > cands[j].sim })
	if len(cands) > g.cfg.MaxLinks {
		cands = cands[:g.cfg.MaxLinks]
	}

	out := make([]Suggestion, len(cands))
	for i, c := range cands {
		out[i] = Suggestion{
			ID:           g.newID(),
			GapSignature: gap.Signature(),
			Kind:         KindDirectLink,
			Status:       StatusOK,
			Source:       gap.Source,
			Target:       c.id,
			Relationship: relationshipLabel(snap, gap.Source, c.id),
		}
	}
	return out
}

func (g *Generator) failed(gap gaps.Gap, kind Kind, detail string) Suggestion {
	return Suggestion{
		ID:           g.newID(),
		GapSignature: gap.Signature(),
		Kind:         kind,
		Status:       StatusGenerationFailed,
		Error:        detail,
	}
}

// sampleCommunity draws up to SampleSize member texts, weighted by degree
// so central notes anchor the prompt. The fallback endpoint covers gaps
// whose community is no longer in the partition.
func (g *Generator) sampleCommunity(snap *graph.Snapshot, topo *topology.Result, communityID int, fallback string) []string {
	var members []string
	for _, c := range topo.Communities {
		if c.ID == communityID {
			members = append([]string(nil), c.Members...)
			break
		}
	}
	if len(members) == 0 {
		members = []string{fallback}
	}

	picked := weightedSample(snap, members, g.cfg.SampleSize, g.cfg.Seed)
	texts := make([]string, len(picked))
	for i, id := range picked {
		n, _ := snap.Node(id)
		texts[i] = n.Text()
	}
	return texts
}

// weightedSample picks up to k members without replacement, with
// probability proportional to degree+1. The seed fixes the draw.
func weightedSample(snap *graph.Snapshot, members []string, k int, seed int64) []string {
	if len(members) <= k {
		return members
	}
	r := rand.New(rand.NewSource(seed))
	pool := append([]string(nil), members...)
	weights := make([]int, len(pool))
	total := 0
	for i, id := range pool {
		weights[i] = snap.Degree(id) + 1
		total += weights[i]
	}

	var picked []string
	for len(picked) < k {
		roll := r.Intn(total)
		for i, w := range weights {
			if w == 0 {
				continue
			}
			roll -= w
			if roll < 0 {
				picked = append(picked, pool[i])
				total -= w
				weights[i] = 0
				break
			}
		}
	}
	sort.Strings(picked)
	return picked
}

func highestDegree(snap *graph.Snapshot, members []string) string {
	if len(members) == 0 {
		return ""
	}
	best := members[0]
	bestDeg := snap.Degree(best)
	for _, id := range members[1:] {
		if deg := snap.Degree(id); deg > bestDeg {
			best, bestDeg = id, deg
		}
	}
	return best
}

// proposal is the shape the LLM is asked to return.
type proposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func bridgePrompt(sideA, sideB []string) *llm.Prompt {
	return &llm.Prompt{
		SystemPrompt: "You connect ideas in a personal knowledge base. " +
			"Given two clusters of note titles, propose intermediate concepts that relate them. " +
			`Respond with a JSON array of objects: [{"title": "...", "description": "..."}]. No other text.`,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf("Cluster A:\n- %s\n\nCluster B:\n- %s\n\nPropose 1-3 bridging concepts.",
				strings.Join(sideA, "\n- "), strings.Join(sideB, "\n- ")),
		}},
	}
}

// complete runs one text-generation call with tracing and metrics around it.
func (g *Generator) complete(ctx context.Context, prompt *llm.Prompt) (*llm.Response, error) {
	ctx, span := observability.StartLLMSpan(ctx, g.provider.Name(), "")
	defer span.End()

	started := time.Now()
	resp, err := g.provider.Complete(ctx, prompt, nil)
	elapsed := time.Since(started)
	if err != nil {
		observability.RecordError(span, err)
		observability.Metrics().RecordLLMRequest(elapsed, 0, err)
		return nil, err
	}
	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, elapsed)
	observability.Metrics().RecordLLMRequest(elapsed, resp.InputTokens+resp.OutputTokens, nil)
	return resp, nil
}

// parseProposals extracts the JSON array from an LLM response, tolerating
// reasoning tags and code fences around it.
func parseProposals(content string, max int) ([]proposal, error) {
	s := llmutil.StripMarkdownFences(content)
	if start := strings.Index(s, "["); start >= 0 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	var out []proposal
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	var kept []proposal
	for _, p := range out {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		kept = append(kept, p)
		if len(kept) == max {
			break
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no usable proposals in response")
	}
	return kept, nil
}
