package vector

import (
	"context"

	"github.com/google/uuid"

	"github.com/weavenn/weave/internal/graph"
)

// Document is a note projected into the vector index.
type Document struct {
	ID       string
	NoteID   string
	Title    string
	Folder   string
	Tags     []string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is a scored match from the index.
type SearchResult struct {
	Document Document
	Score    float32
}

// Repository is the vector store port.
type Repository interface {
	Upsert(ctx context.Context, docs []Document) error
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
	Close(ctx context.Context) error
}

// noteNamespace keys deterministic point IDs so re-indexing the same note
// overwrites instead of duplicating.
var noteNamespace = uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")

// NoteID returns the stable index ID for a vault note.
func NoteID(noteID string) string {
	return uuid.NewSHA1(noteNamespace, []byte(noteID)).String()
}

// Indexer pushes vault notes into a Repository.
type Indexer struct {
	embedder Embedder
	repo     Repository
	batch    int
}

// NewIndexer builds an Indexer. batch bounds how many notes are embedded
// and upserted per round trip; values < 1 default to 64.
func NewIndexer(e Embedder, r Repository, batch int) *Indexer {
	if batch < 1 {
		batch = 64
	}
	return &Indexer{embedder: e, repo: r, batch: batch}
}

// IndexSnapshot embeds every node of a snapshot and upserts it. Returns the
// number of notes indexed.
func (ix *Indexer) IndexSnapshot(ctx context.Context, s *graph.Snapshot) (int, error) {
	ids := s.NodeIDs()
	total := 0
	for start := 0; start < len(ids); start += ix.batch {
		end := start + ix.batch
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		texts := make([]string, len(chunk))
		for i, id := range chunk {
			n, _ := s.Node(id)
			texts[i] = n.Text()
		}
		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return total, err
		}
		docs := make([]Document, len(chunk))
		for i, id := range chunk {
			n, _ := s.Node(id)
			docs[i] = Document{
				ID:     NoteID(id),
				NoteID: id,
				Title:  n.Title,
				Folder: n.Folder,
				Tags:   n.Tags,
				Vector: vecs[i],
			}
		}
		if err := ix.repo.Upsert(ctx, docs); err != nil {
			return total, err
		}
		total += len(docs)
	}
	return total, nil
}
