package suggest

import (
	"context"
	"strings"

	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/vector"
)

// History answers questions about past outcomes for a gap signature. The
// usage tracker implements it; a nil History means no history is held
// against a suggestion.
type History interface {
	// WasRejected reports whether this content was already suggested for
	// the gap and rejected.
	WasRejected(ctx context.Context, gapSignature, contentKey string) (bool, error)
	// WasApplied reports whether this content was already accepted and
	// applied for the gap.
	WasApplied(ctx context.Context, gapSignature, contentKey string) (bool, error)
}

// ValidatorConfig holds validation settings.
type ValidatorConfig struct {
	// Threshold is the validation score below which a suggestion is marked
	// invalid. It still remains in the result set.
	Threshold float64
	// WindowLow and WindowHigh repeat the bridge acceptance window for the
	// coherence re-check of generated concepts.
	WindowLow  float64
	WindowHigh float64
}

// DefaultValidatorConfig returns the standard validation settings.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{Threshold: 0.6, WindowLow: 0.5, WindowHigh: 0.7}
}

func (c ValidatorConfig) withDefaults() ValidatorConfig {
	d := DefaultValidatorConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.WindowLow <= 0 {
		c.WindowLow = d.WindowLow
	}
	if c.WindowHigh <= 0 {
		c.WindowHigh = d.WindowHigh
	}
	return c
}

// Validator runs four checks per suggestion and averages them into a
// validation score. Suggestions below the threshold are marked invalid but
// returned with that status so callers decide whether to show them.
type Validator struct {
	sim       vector.Similarity
	history   History
	expertise map[string]float64
	cfg       ValidatorConfig
}

// NewValidator builds a Validator. sim and history may be nil; the
// corresponding checks then score neutrally.
func NewValidator(sim vector.Similarity, history History, expertise map[string]float64, cfg ValidatorConfig) *Validator {
	return &Validator{sim: sim, history: history, expertise: expertise, cfg: cfg.withDefaults()}
}

// Validate scores a suggestion in place. Suggestions that already failed
// generation are left untouched.
func (v *Validator) Validate(ctx context.Context, snap *graph.Snapshot, s *Suggestion) {
	if s.Status == StatusGenerationFailed {
		return
	}

	checks := []float64{
		v.coherenceCheck(ctx, snap, s),
		v.structuralCheck(snap, s),
		v.noveltyCheck(ctx, s),
		v.expertiseCheck(snap, s),
	}
	sum := 0.0
	for _, c := range checks {
		sum += c
	}
	s.ValidationScore = sum / float64(len(checks))
	if s.ValidationScore < v.cfg.Threshold {
		s.Status = StatusInvalid
	}
}

// coherenceCheck re-verifies semantic fit. Generated concepts must sit
// inside the acceptance window on both sides; links are checked by endpoint
// similarity.
func (v *Validator) coherenceCheck(ctx context.Context, snap *graph.Snapshot, s *Suggestion) float64 {
	switch s.Kind {
	case KindNewConcept:
		if len(s.SideSimilarity) == 0 {
			return 0
		}
		for _, sim := range s.SideSimilarity {
			if !InWindow(sim, v.cfg.WindowLow, v.cfg.WindowHigh) {
				return 0
			}
		}
		return 1
	case KindDirectLink:
		if v.sim == nil {
			return 0.5
		}
		a, _ := snap.Node(s.Source)
		b, _ := snap.Node(s.Target)
		sim, err := v.sim.Pairwise(ctx, a.Text(), b.Text())
		if err != nil {
			return 0
		}
		return sim
	case KindOrganizingHub:
		if v.sim == nil {
			return 0.5
		}
		parent, _ := snap.Node(s.Parent)
		var children []string
		for _, sec := range s.Outline {
			for _, id := range sec.Children {
				n, _ := snap.Node(id)
				children = append(children, n.Text())
			}
		}
		if len(children) == 0 {
			return 0
		}
		sim, err := v.sim.Coherence(ctx, parent.Text(), children)
		if err != nil {
			return 0
		}
		return sim
	default:
		return 0
	}
}

// structuralCheck verifies endpoints still exist and a proposed link is not
// already present.
func (v *Validator) structuralCheck(snap *graph.Snapshot, s *Suggestion) float64 {
	switch s.Kind {
	case KindNewConcept:
		for _, id := range s.LinkTo {
			if !snap.HasNode(id) {
				return 0
			}
		}
		return 1
	case KindDirectLink:
		if !snap.HasNode(s.Source) || !snap.HasNode(s.Target) {
			return 0
		}
		if snap.HasEdge(s.Source, s.Target) {
			return 0
		}
		return 1
	case KindOrganizingHub:
		if !snap.HasNode(s.Parent) {
			return 0
		}
		for _, sec := range s.Outline {
			for _, id := range sec.Children {
				if !snap.HasNode(id) {
					return 0
				}
			}
		}
		return 1
	default:
		return 0
	}
}

// noveltyCheck consults outcome history: content already rejected for this
// gap scores zero.
func (v *Validator) noveltyCheck(ctx context.Context, s *Suggestion) float64 {
	if v.history == nil {
		return 1
	}
	rejected, err := v.history.WasRejected(ctx, s.GapSignature, s.ContentKey())
	if err != nil {
		return 0.5
	}
	if rejected {
		return 0
	}
	return 1
}

// expertiseCheck scores how well the suggestion's tags match the acting
// user's expertise; unknown expertise is neutral.
func (v *Validator) expertiseCheck(snap *graph.Snapshot, s *Suggestion) float64 {
	if len(v.expertise) == 0 {
		return 0.5
	}
	tags := make(map[string]bool)
	for _, id := range s.involvedNodes() {
		n, ok := snap.Node(id)
		if !ok {
			continue
		}
		for _, t := range n.Tags {
			tags[t] = true
		}
	}
	if len(tags) == 0 {
		return 0.5
	}
	sum := 0.0
	for t := range tags {
		sum += v.expertise[t]
	}
	return sum / float64(len(tags))
}

func (s *Suggestion) involvedNodes() []string {
	switch s.Kind {
	case KindNewConcept:
		return s.LinkTo
	case KindDirectLink:
		return []string{s.Source, s.Target}
	case KindOrganizingHub:
		out := []string{s.Parent}
		for _, sec := range s.Outline {
			out = append(out, sec.Children...)
		}
		return out
	}
	return nil
}

// ContentKey identifies what a suggestion proposes, independent of its run-
// scoped ID. History lookups pair it with the gap signature.
func (s *Suggestion) ContentKey() string {
	switch s.Kind {
	case KindNewConcept:
		return "concept:" + strings.ToLower(strings.TrimSpace(s.Title))
	case KindDirectLink:
		a, b := s.Source, s.Target
		if b < a {
			a, b = b, a
		}
		return "link:" + a + "|" + b
	case KindOrganizingHub:
		return "hub:" + s.Parent
	}
	return ""
}
