// Package snapshot archives graph snapshots on disk, content-addressed by
// their graph hash. Applying a suggestion saves the pre-change snapshot so
// realized impact can be measured against it later.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/weavenn/weave/internal/graph"
)

const (
	objectsDir = "objects"
	indexFile  = "index.json"
)

// Summary is one archived snapshot in the index.
type Summary struct {
	ID        string    `json:"id"`
	Tag       string    `json:"tag,omitempty"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
}

// Index lists all archived snapshots.
type Index struct {
	Snapshots []Summary `json:"snapshots"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a content-addressed snapshot archive rooted at one directory.
type Store struct {
	mu      sync.RWMutex
	rootDir string
	index   *Index
}

// NewStore creates or opens a store at rootDir.
func NewStore(rootDir string) (*Store, error) {
	s := &Store{rootDir: rootDir}
	if err := os.MkdirAll(filepath.Join(rootDir, objectsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := s.loadIndex(); err != nil {
		s.index = &Index{UpdatedAt: time.Now()}
	}
	return s, nil
}

// Save archives a snapshot and returns its content hash. Saving the same
// graph twice stores the object once; a new tag on a known graph gets its
// own index entry so every tag stays resolvable.
func (s *Store) Save(snap *graph.Snapshot, tag string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := snap.ContentHash()
	known := false
	for _, sum := range s.index.Snapshots {
		if sum.ID != id {
			continue
		}
		known = true
		if tag == "" || sum.Tag == tag {
			return id, nil
		}
	}
	if known {
		s.index.Snapshots = append(s.index.Snapshots, Summary{
			ID:        id,
			Tag:       tag,
			Nodes:     snap.NodeCount(),
			Edges:     snap.EdgeCount(),
			CreatedAt: time.Now(),
		})
		s.index.UpdatedAt = time.Now()
		return id, s.saveIndex()
	}

	data, err := json.MarshalIndent(snap.Doc(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.writeObject(id, data); err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", id, err)
	}

	s.index.Snapshots = append(s.index.Snapshots, Summary{
		ID:        id,
		Tag:       tag,
		Nodes:     snap.NodeCount(),
		Edges:     snap.EdgeCount(),
		CreatedAt: time.Now(),
	})
	s.index.UpdatedAt = time.Now()
	return id, s.saveIndex()
}

// Load rebuilds an archived snapshot by id.
func (s *Store) Load(id string) (*graph.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.readObject(id)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	var doc graph.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", id, err)
	}
	return graph.FromDoc(doc)
}

// List returns all summaries, newest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, len(s.index.Snapshots))
	copy(out, s.index.Snapshots)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// FindByTag loads the snapshot carrying the given tag.
func (s *Store) FindByTag(tag string) (*graph.Snapshot, error) {
	s.mu.RLock()
	var id string
	for _, sum := range s.index.Snapshots {
		if sum.Tag == tag {
			id = sum.ID
			break
		}
	}
	s.mu.RUnlock()

	if id == "" {
		return nil, fmt.Errorf("snapshot with tag %q not found", tag)
	}
	return s.Load(id)
}

// Tag assigns a tag to an archived snapshot.
func (s *Store) Tag(id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sum := range s.index.Snapshots {
		if sum.ID == id {
			s.index.Snapshots[i].Tag = tag
			s.index.UpdatedAt = time.Now()
			return s.saveIndex()
		}
	}
	return fmt.Errorf("snapshot %s not found", id)
}

// Delete removes a snapshot from the archive.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.objectPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot object: %w", err)
	}
	filtered := s.index.Snapshots[:0]
	for _, sum := range s.index.Snapshots {
		if sum.ID != id {
			filtered = append(filtered, sum)
		}
	}
	s.index.Snapshots = filtered
	s.index.UpdatedAt = time.Now()
	return s.saveIndex()
}

func (s *Store) objectPath(hash string) string {
	return filepath.Join(s.rootDir, objectsDir, hash[:2], hash[2:])
}

func (s *Store) writeObject(hash string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.objectPath(hash)), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(s.objectPath(hash)); err == nil {
		return nil // content-addressed dedup
	}
	return os.WriteFile(s.objectPath(hash), content, 0o644)
}

func (s *Store) readObject(hash string) ([]byte, error) {
	if len(hash) < 3 {
		return nil, fmt.Errorf("malformed snapshot id %q", hash)
	}
	return os.ReadFile(s.objectPath(hash))
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.rootDir, indexFile))
	if err != nil {
		return err
	}
	s.index = &Index{}
	return json.Unmarshal(data, s.index)
}

func (s *Store) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.rootDir, indexFile), data, 0o644)
}
