package search

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"

	"cortex/internal/event"
	"cortex/internal/store"
)

// Vector runs a similarity search over the embedding column against
// query, preferring the native vec_distance_l2 SQL function and falling
// back to an in-process brute-force scan when it isn't registered
// against this database handle.
func Vector(s *store.SQLiteStore, query []float32, opts Options) ([]Result, error) {
	if len(query) == 0 {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	if s.VecExtensionAvailable() {
		return vectorNative(s.RawDB(), query, opts, limit)
	}
	return vectorBruteForce(s.RawDB(), query, opts, limit)
}

func vectorNative(db *sql.DB, query []float32, opts Options, limit int) ([]Result, error) {
	q := `
		SELECT ` + eventCols + `, vec_distance_l2(embedding, ?) AS distance
		FROM events
		WHERE embedding IS NOT NULL`
	args := []interface{}{event.EncodeEmbedding(query)}

	if opts.Type != "" {
		q += " AND type = ?"
		args = append(args, string(opts.Type))
	}
	if opts.BranchFilter != "" {
		q += " AND (git_branch = ? OR git_branch = '')"
		args = append(args, opts.BranchFilter)
	}
	q += " ORDER BY distance ASC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		e, distance, err := scanEventWithDistance(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Event: e, Score: distanceToSimilarity(distance)})
	}
	return results, rows.Err()
}

func vectorBruteForce(db *sql.DB, query []float32, opts Options, limit int) ([]Result, error) {
	q := "SELECT " + eventCols + " FROM events WHERE embedding IS NOT NULL"
	var args []interface{}
	if opts.Type != "" {
		q += " AND type = ?"
		args = append(args, string(opts.Type))
	}
	if opts.BranchFilter != "" {
		q += " AND (git_branch = ? OR git_branch = '')"
		args = append(args, opts.BranchFilter)
	}

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector brute-force scan failed: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if len(e.Embedding) != len(query) {
			continue
		}
		dist := l2Distance(query, e.Embedding)
		results = append(results, Result{Event: e, Score: distanceToSimilarity(dist)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortResultsByScoreDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func distanceToSimilarity(distance float64) float64 {
	return math.Exp(-distance)
}

func sortResultsByScoreDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

func scanEventWithDistance(rows *sql.Rows) (event.Event, float64, error) {
	var e event.Event
	var typeStr, metadataStr string
	var immortalInt int
	var embedding []byte
	var distance float64
	if err := rows.Scan(
		&e.ID, &e.SessionID, &e.Project, &e.GitBranch, &typeStr, &e.Content,
		&metadataStr, &e.Salience, &e.Confidence, &e.CreatedAt, &e.AccessedAt,
		&e.AccessCount, &immortalInt, &e.Provenance, &embedding,
		&distance,
	); err != nil {
		return event.Event{}, 0, err
	}
	e.Type = event.Type(typeStr)
	e.Immortal = immortalInt != 0
	if metadataStr != "" {
		_ = json.Unmarshal([]byte(metadataStr), &e.Metadata)
	}
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	return e, distance, nil
}
