package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/weavenn/weave/internal/graph"
)

// Vault implements graph.Source and graph.Mutator against a Neo4j database
// holding the note graph as (:Note)-[:LINKS_TO]->(:Note).
type Vault struct {
	driver neo4j.DriverWithContext
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Vault, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Vault{driver: driver}, nil
}

// LoadSnapshot reads every note and link into an immutable snapshot.
func (v *Vault) LoadSnapshot(ctx context.Context) (*graph.Snapshot, error) {
	session := v.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx,
			"MATCH (n:Note) OPTIONAL MATCH (n)-[:LINKS_TO]->(m:Note) "+
				"RETURN n.id, n.title, n.tags, n.folder, n.created, n.modified, collect(m.id) AS targets",
			nil)
		if err != nil {
			return nil, err
		}

		var nodes []graph.Node
		var edges []graph.Edge
		for records.Next(ctx) {
			rec := records.Record()
			node := graph.Node{
				ID:     asString(rec, "n.id"),
				Title:  asString(rec, "n.title"),
				Folder: asString(rec, "n.folder"),
			}
			if tags, ok := recValue(rec, "n.tags").([]any); ok {
				for _, t := range tags {
					if s, ok := t.(string); ok {
						node.Tags = append(node.Tags, s)
					}
				}
			}
			if created, ok := recValue(rec, "n.created").(time.Time); ok {
				node.Created = created
			}
			if modified, ok := recValue(rec, "n.modified").(time.Time); ok {
				node.Modified = modified
			}
			nodes = append(nodes, node)

			if targets, ok := recValue(rec, "targets").([]any); ok {
				for _, t := range targets {
					if id, ok := t.(string); ok && id != "" {
						edges = append(edges, graph.Edge{Source: node.ID, Target: id})
					}
				}
			}
		}
		return graph.Document{Nodes: nodes, Edges: edges}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return graph.FromDoc(result.(graph.Document))
}

// CreateNode creates a note. The body is stored verbatim; rendering is the
// host application's concern.
func (v *Vault) CreateNode(ctx context.Context, n graph.Node, body string) error {
	session := v.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			"MERGE (n:Note {id: $id}) "+
				"SET n.title = $title, n.tags = $tags, n.folder = $folder, n.body = $body, "+
				"n.created = coalesce(n.created, datetime()), n.modified = datetime()",
			map[string]any{
				"id":     n.ID,
				"title":  n.Title,
				"tags":   n.Tags,
				"folder": n.Folder,
				"body":   body,
			})
	})
	if err != nil {
		return fmt.Errorf("create note %s: %w", n.ID, err)
	}
	return nil
}

// CreateEdge links source to target with an optional relationship label.
func (v *Vault) CreateEdge(ctx context.Context, source, target, label string) error {
	session := v.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			"MATCH (a:Note {id: $source}), (b:Note {id: $target}) "+
				"MERGE (a)-[r:LINKS_TO]->(b) SET r.label = $label",
			map[string]any{"source": source, "target": target, "label": label})
	})
	if err != nil {
		return fmt.Errorf("create link %s -> %s: %w", source, target, err)
	}
	return nil
}

// Ping verifies connectivity, for health checks.
func (v *Vault) Ping(ctx context.Context) error {
	return v.driver.VerifyConnectivity(ctx)
}

func (v *Vault) Close(ctx context.Context) error {
	return v.driver.Close(ctx)
}

func recValue(rec *neo4j.Record, key string) any {
	val, _ := rec.Get(key)
	return val
}

func asString(rec *neo4j.Record, key string) string {
	if s, ok := recValue(rec, key).(string); ok {
		return s
	}
	return ""
}

var (
	_ graph.Source  = (*Vault)(nil)
	_ graph.Mutator = (*Vault)(nil)
)
