package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/suggest"
	"github.com/weavenn/weave/internal/usage"
)

// Recorder receives the usage record written when a suggestion is applied.
// *usage.Tracker satisfies it.
type Recorder interface {
	Append(ctx context.Context, rec usage.Record) error
}

// Apply materializes an accepted suggestion through the host mutator and
// logs the decision. The usage record carries the predicted structural
// score so a later MeasureImpact call can compare prediction to outcome.
func Apply(ctx context.Context, mut graph.Mutator, rec Recorder, sug suggest.Suggestion, predicted float64) error {
	if mut == nil {
		return fmt.Errorf("apply %s: no graph mutator configured", sug.ID)
	}
	if sug.Status == suggest.StatusGenerationFailed {
		return fmt.Errorf("apply %s: suggestion did not generate", sug.ID)
	}

	var err error
	switch sug.Kind {
	case suggest.KindNewConcept:
		err = applyConcept(ctx, mut, sug)
	case suggest.KindDirectLink:
		err = mut.CreateEdge(ctx, sug.Source, sug.Target, sug.Relationship)
	case suggest.KindOrganizingHub:
		err = applyHub(ctx, mut, sug)
	default:
		err = fmt.Errorf("unknown suggestion kind %q", sug.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", sug.ID, err)
	}

	if rec == nil {
		return nil
	}
	return rec.Append(ctx, usage.Record{
		GapSignature:        sug.GapSignature,
		SuggestionID:        sug.ID,
		ContentKey:          sug.ContentKey(),
		Outcome:             usage.OutcomeAccepted,
		PredictedStructural: predicted,
		CreatedAt:           time.Now().UTC(),
	})
}

// Reject records that the user turned a suggestion down, so validation can
// penalize regenerating the same content later.
func Reject(ctx context.Context, rec Recorder, sug suggest.Suggestion) error {
	if rec == nil {
		return nil
	}
	return rec.Append(ctx, usage.Record{
		GapSignature: sug.GapSignature,
		SuggestionID: sug.ID,
		ContentKey:   sug.ContentKey(),
		Outcome:      usage.OutcomeRejected,
		CreatedAt:    time.Now().UTC(),
	})
}

func applyConcept(ctx context.Context, mut graph.Mutator, sug suggest.Suggestion) error {
	id := Slug(sug.Title)
	node := graph.Node{ID: id, Title: sug.Title}
	if err := mut.CreateNode(ctx, node, sug.Description); err != nil {
		return err
	}
	for _, target := range sug.LinkTo {
		if err := mut.CreateEdge(ctx, id, target, ""); err != nil {
			return err
		}
	}
	return nil
}

func applyHub(ctx context.Context, mut graph.Mutator, sug suggest.Suggestion) error {
	id := Slug(sug.Title)
	node := graph.Node{ID: id, Title: sug.Title}
	if err := mut.CreateNode(ctx, node, renderOutline(sug.Outline)); err != nil {
		return err
	}
	if err := mut.CreateEdge(ctx, sug.Parent, id, "organized_by"); err != nil {
		return err
	}
	for _, section := range sug.Outline {
		for _, child := range section.Children {
			if err := mut.CreateEdge(ctx, id, child, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderOutline writes the hub body as a markdown outline with one section
// per grouping and a wikilink per child.
func renderOutline(sections []suggest.OutlineSection) string {
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n", s.Heading)
		for _, child := range s.Children {
			fmt.Fprintf(&b, "- [[%s]]\n", child)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Slug derives a filesystem- and id-safe identifier from a title.
func Slug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
