package snapshot

import (
	"testing"

	"github.com/weavenn/weave/internal/graph"
)

func buildSnap(t *testing.T, ids []string, edges [][2]string) *graph.Snapshot {
	t.Helper()
	nodes := make([]graph.Node, len(ids))
	for i, id := range ids {
		nodes[i] = graph.Node{ID: id}
	}
	es := make([]graph.Edge, len(edges))
	for i, e := range edges {
		es[i] = graph.Edge{Source: e[0], Target: e[1]}
	}
	s, err := graph.Build(nodes, es)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	snap := buildSnap(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})
	id, err := store.Save(snap, "before-apply")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id != snap.ContentHash() {
		t.Errorf("id = %s, want graph content hash", id)
	}

	loaded, err := store.Load(id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ContentHash() != snap.ContentHash() {
		t.Error("loaded snapshot differs from saved")
	}
	if loaded.NodeCount() != 3 || loaded.EdgeCount() != 2 {
		t.Errorf("loaded %d nodes %d edges, want 3 and 2", loaded.NodeCount(), loaded.EdgeCount())
	}
}

func TestSaveDeduplicates(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	snap := buildSnap(t, []string{"a", "b"}, [][2]string{{"a", "b"}})

	id1, err := store.Save(snap, "first")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	id2, err := store.Save(snap, "first")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id1 != id2 {
		t.Errorf("duplicate saves produced different ids: %s vs %s", id1, id2)
	}
	if got := len(store.List()); got != 1 {
		t.Errorf("List() = %d entries after duplicate save, want 1", got)
	}
}

func TestSaveKeepsNewTagOnKnownGraph(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	snap := buildSnap(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})

	// The flow that hits this: analyze archives the graph, then applying a
	// suggestion archives the same unchanged graph under a pre-apply tag.
	if _, err := store.Save(snap, "analyze"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Save(snap, "pre-apply:sug-1"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	for _, tag := range []string{"analyze", "pre-apply:sug-1"} {
		got, err := store.FindByTag(tag)
		if err != nil {
			t.Fatalf("FindByTag(%q) error = %v", tag, err)
		}
		if got.ContentHash() != snap.ContentHash() {
			t.Errorf("FindByTag(%q) returned wrong snapshot", tag)
		}
	}
	if got := len(store.List()); got != 2 {
		t.Errorf("List() = %d entries, want 2 (one per tag)", got)
	}

	// Saving the same tag again stays a no-op.
	if _, err := store.Save(snap, "pre-apply:sug-1"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := len(store.List()); got != 2 {
		t.Errorf("List() = %d entries after repeated tag, want 2", got)
	}

	// Both entries survive a store reopen.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	if _, err := reopened.FindByTag("pre-apply:sug-1"); err != nil {
		t.Errorf("FindByTag() after reopen error = %v", err)
	}
}

func TestFindByTagAndRetag(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	snap := buildSnap(t, []string{"a", "b"}, [][2]string{{"a", "b"}})
	id, err := store.Save(snap, "baseline")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.FindByTag("baseline")
	if err != nil {
		t.Fatalf("FindByTag() error = %v", err)
	}
	if got.ContentHash() != snap.ContentHash() {
		t.Error("FindByTag() returned wrong snapshot")
	}

	if err := store.Tag(id, "pre-bridge"); err != nil {
		t.Fatalf("Tag() error = %v", err)
	}

	// The index persists across store reopen.
	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() reopen error = %v", err)
	}
	if _, err := reopened.FindByTag("pre-bridge"); err != nil {
		t.Errorf("FindByTag() after reopen error = %v", err)
	}
	if _, err := reopened.FindByTag("missing"); err == nil {
		t.Error("FindByTag() expected error for unknown tag")
	}
}

func TestDelete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	snap := buildSnap(t, []string{"a", "b"}, nil)
	id, err := store.Save(snap, "")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := len(store.List()); got != 0 {
		t.Errorf("List() = %d entries after delete, want 0", got)
	}
	if _, err := store.Load(id); err == nil {
		t.Error("Load() expected error after delete")
	}
}

func TestCompare(t *testing.T) {
	before := buildSnap(t, []string{"a", "b", "c"}, [][2]string{{"a", "b"}})
	after := buildSnap(t, []string{"a", "b", "d"}, [][2]string{{"a", "b"}, {"a", "d"}})

	d := Compare(before, after)
	if d.Empty() {
		t.Fatal("Compare() reported no changes")
	}
	if len(d.AddedNodes) != 1 || d.AddedNodes[0] != "d" {
		t.Errorf("AddedNodes = %v, want [d]", d.AddedNodes)
	}
	if len(d.RemovedNodes) != 1 || d.RemovedNodes[0] != "c" {
		t.Errorf("RemovedNodes = %v, want [c]", d.RemovedNodes)
	}
	if len(d.AddedEdges) != 1 {
		t.Errorf("AddedEdges = %v, want one edge a-d", d.AddedEdges)
	}
	if len(d.RemovedEdges) != 0 {
		t.Errorf("RemovedEdges = %v, want none", d.RemovedEdges)
	}

	same := Compare(before, before)
	if !same.Empty() {
		t.Errorf("Compare(x, x) = %+v, want empty", same)
	}
}
