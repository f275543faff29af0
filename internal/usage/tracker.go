// Package usage persists suggestion outcomes. It is the only component of
// the engine with mutable state: an append-only SQLite log keyed by gap
// signature and suggestion id, consulted by future scoring and validation.
package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/weavenn/weave/internal/graph"
	"github.com/weavenn/weave/internal/topology"
)

// Outcome is what the user did with a suggestion.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeModified Outcome = "modified"
	OutcomeRejected Outcome = "rejected"
	OutcomeDeferred Outcome = "deferred"
)

// Record is one logged outcome. Records are never updated or deleted;
// realized impact arrives as a later record for the same suggestion.
type Record struct {
	ID                  int64     `json:"id"`
	GapSignature        string    `json:"gap_signature"`
	SuggestionID        string    `json:"suggestion_id"`
	ContentKey          string    `json:"content_key"`
	Outcome             Outcome   `json:"outcome"`
	PredictedStructural float64   `json:"predicted_structural"`
	Impact              *Impact   `json:"impact,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Impact compares graph metrics before and after a suggestion was applied.
type Impact struct {
	Predicted       float64 `json:"predicted"`
	Realized        float64 `json:"realized"`
	ClusteringDelta float64 `json:"clustering_delta"`
	AvgPathDelta    float64 `json:"avg_path_delta"`
	SmallWorldDelta float64 `json:"small_world_delta"`
	ModularityDelta float64 `json:"modularity_delta"`
}

// Tracker is the append-only outcome log.
type Tracker struct {
	db *sql.DB
}

// Open opens or creates the log at path. The parent directory is created
// if needed.
func Open(path string) (*Tracker, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("usage: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("usage: open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("usage: set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS usage_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gap_signature TEXT NOT NULL,
			suggestion_id TEXT NOT NULL,
			content_key TEXT NOT NULL,
			outcome TEXT NOT NULL,
			predicted_structural REAL NOT NULL DEFAULT 0,
			impact TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_usage_signature ON usage_records(gap_signature);
		CREATE INDEX IF NOT EXISTS idx_usage_suggestion ON usage_records(suggestion_id);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("usage: initialize schema: %w", err)
	}
	return &Tracker{db: db}, nil
}

// Close closes the underlying database.
func (t *Tracker) Close() error { return t.db.Close() }

// Ping verifies the database is reachable, for health checks.
func (t *Tracker) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }

// Append writes one record. CreatedAt defaults to now.
func (t *Tracker) Append(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var impact any
	if rec.Impact != nil {
		data, err := json.Marshal(rec.Impact)
		if err != nil {
			return fmt.Errorf("usage: marshal impact: %w", err)
		}
		impact = string(data)
	}
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO usage_records
			(gap_signature, suggestion_id, content_key, outcome, predicted_structural, impact, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.GapSignature, rec.SuggestionID, rec.ContentKey, string(rec.Outcome),
		rec.PredictedStructural, impact, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("usage: append record: %w", err)
	}
	return nil
}

// AcceptanceRate returns the fraction of suggestions with latest outcome
// accepted or modified, for a gap signature or a suggestion id. Returns 0
// with no error when nothing matches.
func (t *Tracker) AcceptanceRate(ctx context.Context, key string) (float64, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT suggestion_id, outcome FROM usage_records
		WHERE gap_signature = ? OR suggestion_id = ?
		ORDER BY id`, key, key)
	if err != nil {
		return 0, fmt.Errorf("usage: query outcomes: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]Outcome)
	for rows.Next() {
		var id, outcome string
		if err := rows.Scan(&id, &outcome); err != nil {
			return 0, err
		}
		latest[id] = Outcome(outcome)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(latest) == 0 {
		return 0, nil
	}
	applied := 0
	for _, o := range latest {
		if o == OutcomeAccepted || o == OutcomeModified {
			applied++
		}
	}
	return float64(applied) / float64(len(latest)), nil
}

// WasRejected reports whether this content was suggested for the gap and
// rejected, with no later acceptance.
func (t *Tracker) WasRejected(ctx context.Context, gapSignature, contentKey string) (bool, error) {
	o, ok, err := t.latestOutcome(ctx, gapSignature, contentKey)
	if err != nil || !ok {
		return false, err
	}
	return o == OutcomeRejected, nil
}

// WasApplied reports whether this content was accepted or modified for the
// gap.
func (t *Tracker) WasApplied(ctx context.Context, gapSignature, contentKey string) (bool, error) {
	o, ok, err := t.latestOutcome(ctx, gapSignature, contentKey)
	if err != nil || !ok {
		return false, err
	}
	return o == OutcomeAccepted || o == OutcomeModified, nil
}

func (t *Tracker) latestOutcome(ctx context.Context, gapSignature, contentKey string) (Outcome, bool, error) {
	var outcome string
	err := t.db.QueryRowContext(ctx, `
		SELECT outcome FROM usage_records
		WHERE gap_signature = ? AND content_key = ?
		ORDER BY id DESC LIMIT 1`, gapSignature, contentKey).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("usage: query outcome: %w", err)
	}
	return Outcome(outcome), true, nil
}

// History returns all records for a gap signature in insertion order.
func (t *Tracker) History(ctx context.Context, gapSignature string) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, gap_signature, suggestion_id, content_key, outcome, predicted_structural, impact, created_at
		FROM usage_records WHERE gap_signature = ? ORDER BY id`, gapSignature)
	if err != nil {
		return nil, fmt.Errorf("usage: query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var outcome, created string
		var impact sql.NullString
		if err := rows.Scan(&rec.ID, &rec.GapSignature, &rec.SuggestionID, &rec.ContentKey,
			&outcome, &rec.PredictedStructural, &impact, &created); err != nil {
			return nil, err
		}
		rec.Outcome = Outcome(outcome)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.CreatedAt = ts
		}
		if impact.Valid {
			var im Impact
			if err := json.Unmarshal([]byte(impact.String), &im); err == nil {
				rec.Impact = &im
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MeasureImpact recomputes metrics on the before and after snapshots and
// compares the realized change against the structural score predicted when
// the suggestion was recorded.
func (t *Tracker) MeasureImpact(ctx context.Context, engine *topology.Engine, gapSignature string, before, after *graph.Snapshot) (*Impact, error) {
	pre, err := engine.Compute(before)
	if err != nil {
		return nil, fmt.Errorf("usage: metrics before: %w", err)
	}
	post, err := engine.Compute(after)
	if err != nil {
		return nil, fmt.Errorf("usage: metrics after: %w", err)
	}

	im := &Impact{
		ClusteringDelta: post.Clustering - pre.Clustering,
		AvgPathDelta:    post.AvgPathLength - pre.AvgPathLength,
		SmallWorldDelta: post.SmallWorld - pre.SmallWorld,
		ModularityDelta: post.Modularity - pre.Modularity,
	}
	im.Realized = realizedScore(pre, post)

	history, err := t.History(ctx, gapSignature)
	if err != nil {
		return nil, err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].PredictedStructural > 0 {
			im.Predicted = history[i].PredictedStructural
			break
		}
	}
	return im, nil
}

// realizedScore folds the metric deltas into a single [0,1] figure
// comparable to the scorer's structural estimate: clustering gains and
// path-length reductions count equally.
func realizedScore(pre, post *topology.Result) float64 {
	v := 0.0
	if post.Clustering > pre.Clustering {
		v += 0.5 * clamp01((post.Clustering-pre.Clustering)/(1-pre.Clustering+1e-9))
	}
	if pre.AvgPathLength > 0 && post.AvgPathLength < pre.AvgPathLength {
		v += 0.5 * clamp01((pre.AvgPathLength-post.AvgPathLength)/pre.AvgPathLength)
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
