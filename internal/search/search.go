// Package search implements Cortex's retrieval layer: BM25 keyword
// search over the FTS5 index, cosine/L2 vector search over the
// embedding column, and Reciprocal Rank Fusion to combine them.
package search

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"cortex/internal/event"
	"cortex/internal/store"
)

const eventCols = "events.id, events.session_id, events.project, events.git_branch, events.type, events.content, " +
	"events.metadata, events.salience, events.confidence, events.created_at, events.accessed_at, " +
	"events.access_count, events.immortal, events.provenance, events.embedding"

// Result is one hit from keyword, vector, or hybrid search.
type Result struct {
	Event   event.Event
	Score   float64
	Snippet string
}

// Options filters a search by event type and/or branch. Either field may
// be left zero to mean "no filter". BranchFilter matching permits empty
// or unset event branches through, mirroring the briefing load rule.
type Options struct {
	Type         event.Type
	BranchFilter string
	Limit        int
}

var ftsSpecialChars = "\"():-^"

// EscapeFTSQuery normalizes a raw user query for FTS5 MATCH: queries
// containing any FTS5 special character are wrapped in double quotes
// with internal quotes doubled; other queries pass through unchanged.
func EscapeFTSQuery(q string) string {
	if !strings.ContainsAny(q, ftsSpecialChars) {
		return q
	}
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

// Keyword runs a BM25 full-text search over the FTS5 index. Invalid FTS
// syntax yields an empty result rather than an error.
func Keyword(db *sql.DB, rawQuery string, opts Options) ([]Result, error) {
	if strings.TrimSpace(rawQuery) == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	q := `
		SELECT ` + eventCols + `,
		       bm25(events_fts) AS score,
		       snippet(events_fts, 0, '**', '**', '...', 32) AS snippet
		FROM events_fts
		JOIN events ON events.rowid = events_fts.rowid
		WHERE events_fts MATCH ?`
	args := []interface{}{EscapeFTSQuery(rawQuery)}

	if opts.Type != "" {
		q += " AND events.type = ?"
		args = append(args, string(opts.Type))
	}
	if opts.BranchFilter != "" {
		q += " AND (events.git_branch = ? OR events.git_branch = '')"
		args = append(args, opts.BranchFilter)
	}
	q += " ORDER BY score ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		// Malformed FTS5 query syntax: degrade to empty results.
		return nil, nil
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r, err := scanEventWithScoreAndSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keyword result: %w", err)
		}
		r.Score = math.Abs(r.Score)
		results = append(results, r)
	}
	return results, rows.Err()
}

// RebuildIndex rebuilds the FTS5 index from the events table's current
// content.
func RebuildIndex(s *store.SQLiteStore) error {
	return s.RebuildFTSIndex()
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var e event.Event
	var typeStr, metadataStr string
	var immortalInt int
	var embedding []byte
	if err := rows.Scan(
		&e.ID, &e.SessionID, &e.Project, &e.GitBranch, &typeStr, &e.Content,
		&metadataStr, &e.Salience, &e.Confidence, &e.CreatedAt, &e.AccessedAt,
		&e.AccessCount, &immortalInt, &e.Provenance, &embedding,
	); err != nil {
		return event.Event{}, err
	}
	e.Type = event.Type(typeStr)
	e.Immortal = immortalInt != 0
	if metadataStr != "" {
		_ = json.Unmarshal([]byte(metadataStr), &e.Metadata)
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	if embedding != nil {
		e.Embedding = event.DecodeEmbedding(embedding)
	}
	return e, nil
}

func scanEventWithScoreAndSnippet(rows *sql.Rows) (Result, error) {
	var e event.Event
	var typeStr, metadataStr string
	var immortalInt int
	var embedding []byte
	var score float64
	var snippet string
	if err := rows.Scan(
		&e.ID, &e.SessionID, &e.Project, &e.GitBranch, &typeStr, &e.Content,
		&metadataStr, &e.Salience, &e.Confidence, &e.CreatedAt, &e.AccessedAt,
		&e.AccessCount, &immortalInt, &e.Provenance, &embedding,
		&score, &snippet,
	); err != nil {
		return Result{}, err
	}
	e.Type = event.Type(typeStr)
	e.Immortal = immortalInt != 0
	if metadataStr != "" {
		_ = json.Unmarshal([]byte(metadataStr), &e.Metadata)
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	return Result{Event: e, Score: score, Snippet: snippet}, nil
}
