// Package suggest turns scored gaps into concrete remedies: new bridging
// concepts proposed by an LLM, direct links, and organizing hub notes. All
// LLM output is untrusted candidate data until the validator has passed it.
package suggest

// Kind is the remedy variant.
type Kind string

const (
	KindNewConcept    Kind = "new_concept"
	KindDirectLink    Kind = "direct_link"
	KindOrganizingHub Kind = "organizing_hub"
)

// Status tracks a suggestion through generation and validation. Failed and
// invalid suggestions are returned with their status, never dropped.
type Status string

const (
	StatusOK               Status = "ok"
	StatusGenerationFailed Status = "generation_failed"
	StatusInvalid          Status = "invalid"
)

// OutlineSection groups a subset of a hub's children under a sub-topic.
type OutlineSection struct {
	Heading  string   `json:"heading"`
	Children []string `json:"children"`
}

// Suggestion is one concrete remedy for a gap.
type Suggestion struct {
	ID           string `json:"id"`
	GapSignature string `json:"gap_signature"`
	Kind         Kind   `json:"kind"`
	Status       Status `json:"status"`
	// Error carries the failure detail when Status is generation_failed.
	Error string `json:"error,omitempty"`

	// new_concept fields.
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	LinkTo      []string `json:"link_to,omitempty"`
	// SideSimilarity records the proposal's similarity to each side of a
	// bridge gap, in endpoint order.
	SideSimilarity []float64 `json:"side_similarity,omitempty"`

	// direct_link fields.
	Source        string `json:"source,omitempty"`
	Target        string `json:"target,omitempty"`
	Relationship  string `json:"relationship,omitempty"`
	PathReduction int    `json:"path_reduction,omitempty"`

	// organizing_hub fields.
	Parent  string           `json:"parent,omitempty"`
	Outline []OutlineSection `json:"outline,omitempty"`

	ValidationScore float64 `json:"validation_score,omitempty"`
}

// InWindow reports whether a similarity value lies inside the closed
// acceptance window [low, high]. Values above high are redundant with
// existing content; values below low are incoherent.
func InWindow(sim, low, high float64) bool {
	return sim >= low && sim <= high
}
