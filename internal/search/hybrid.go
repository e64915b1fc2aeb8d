package search

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"cortex/internal/event"
	"cortex/internal/store"
)

const (
	rrfK           = 60
	keywordWeight  = 0.5
	vectorWeight   = 0.5
	overfetchRatio = 2
)

// HybridResult is one fused hit, carrying its rank (if any) in each
// contributing subsystem for display (e.g. "keyword #1, semantic #2").
type HybridResult struct {
	Event       event.Event
	Score       float64
	KeywordRank int // 0 = did not appear in keyword results
	VectorRank  int // 0 = did not appear in vector results
	Snippet     string
}

// Hybrid runs keyword and vector search concurrently and fuses the
// ranked lists via Reciprocal Rank Fusion. If only one of query/embedding
// is present, it degrades to that subsystem alone.
func Hybrid(s *store.SQLiteStore, query string, embedding []float32, opts Options) ([]HybridResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	overfetch := opts
	overfetch.Limit = limit * overfetchRatio

	var kwResults []Result
	var vecResults []Result

	haveQuery := query != ""
	haveEmbedding := len(embedding) > 0

	if !haveQuery && !haveEmbedding {
		return nil, nil
	}

	g, _ := errgroup.WithContext(context.Background())
	if haveQuery {
		g.Go(func() error {
			var err error
			kwResults, err = Keyword(s.RawDB(), query, overfetch)
			return err
		})
	}
	if haveEmbedding {
		g.Go(func() error {
			var err error
			vecResults, err = Vector(s, embedding, overfetch)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuse(kwResults, vecResults, limit), nil
}

func fuse(kwResults, vecResults []Result, limit int) []HybridResult {
	byID := make(map[string]*HybridResult)
	order := make([]string, 0, len(kwResults)+len(vecResults))

	for i, r := range kwResults {
		rank := i + 1
		hr, ok := byID[r.Event.ID]
		if !ok {
			hr = &HybridResult{Event: r.Event}
			byID[r.Event.ID] = hr
			order = append(order, r.Event.ID)
		}
		hr.KeywordRank = rank
		hr.Snippet = r.Snippet
	}
	for i, r := range vecResults {
		rank := i + 1
		hr, ok := byID[r.Event.ID]
		if !ok {
			hr = &HybridResult{Event: r.Event}
			byID[r.Event.ID] = hr
			order = append(order, r.Event.ID)
		}
		hr.VectorRank = rank
	}

	results := make([]HybridResult, 0, len(order))
	for _, id := range order {
		hr := byID[id]
		hr.Score = rrfScore(hr.KeywordRank, hr.VectorRank)
		results = append(results, *hr)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func rrfScore(kwRank, vecRank int) float64 {
	var score float64
	if kwRank > 0 {
		score += keywordWeight / float64(rrfK+kwRank)
	}
	if vecRank > 0 {
		score += vectorWeight / float64(rrfK+vecRank)
	}
	return score
}
