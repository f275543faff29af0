package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Source yields a snapshot of the host application's note graph.
type Source interface {
	// LoadSnapshot captures the current vault state.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// Mutator is the narrow write-back surface into the host application, used
// when a suggestion is applied. Note creation itself stays with the host;
// this engine only requests it.
type Mutator interface {
	// CreateNode asks the host to create a note with the given attributes
	// and body text.
	CreateNode(ctx context.Context, n Node, body string) error
	// CreateEdge asks the host to link source to target, optionally with a
	// relationship label embedded in the link context.
	CreateEdge(ctx context.Context, source, target, label string) error
}

// Document is the serialized form of a snapshot, used for vault exports,
// the snapshot store, and workflow transport.
type Document struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Doc converts a snapshot to its serialized form.
func (s *Snapshot) Doc() Document {
	doc := Document{Edges: s.Edges()}
	for _, id := range s.ids {
		doc.Nodes = append(doc.Nodes, s.nodes[id])
	}
	return doc
}

// FromDoc rebuilds a snapshot from its serialized form.
func FromDoc(doc Document) (*Snapshot, error) {
	return Build(doc.Nodes, doc.Edges)
}

// vaultExport matches the JSON produced by the note application's export:
// one entry per note carrying its outgoing link targets.
type vaultExport struct {
	Notes []struct {
		Node
		Links []string `json:"links,omitempty"`
	} `json:"notes"`
}

// LoadFile reads a snapshot from a vault export file. It accepts either the
// note-centric export format ({"notes": [...]}) or a plain Document. Links
// pointing at notes missing from the export (unresolved wiki links) are
// dropped; the count of dropped links is returned for reporting.
func LoadFile(path string) (*Snapshot, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read snapshot: %w", err)
	}
	return Parse(data)
}

// Parse decodes snapshot bytes. See LoadFile.
func Parse(data []byte) (*Snapshot, int, error) {
	var export vaultExport
	if err := json.Unmarshal(data, &export); err == nil && len(export.Notes) > 0 {
		known := make(map[string]bool, len(export.Notes))
		var nodes []Node
		for _, note := range export.Notes {
			known[note.ID] = true
			nodes = append(nodes, note.Node)
		}
		var edges []Edge
		dropped := 0
		for _, note := range export.Notes {
			for _, target := range note.Links {
				if !known[target] {
					dropped++
					continue
				}
				edges = append(edges, Edge{Source: note.ID, Target: target})
			}
		}
		snap, err := Build(nodes, edges)
		if err != nil {
			return nil, 0, err
		}
		return snap, dropped, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("parse snapshot: %w", err)
	}
	snap, err := FromDoc(doc)
	if err != nil {
		return nil, 0, err
	}
	return snap, 0, nil
}
