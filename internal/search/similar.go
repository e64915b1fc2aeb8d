package search

import (
	"regexp"
	"sort"
	"strings"

	"cortex/internal/store"
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"at": true, "by": true, "from": true, "this": true, "that": true, "it": true,
	"as": true, "so": true, "if": true, "not": true, "can": true, "will": true,
}

var termPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]{2,}\b`)

// extractSearchTerms pulls content words out of text (alphanumeric
// identifiers of length ≥ 3, stopwords removed), longest first — FTS5's
// OR-of-terms query benefits from the most distinctive terms leading.
func extractSearchTerms(text string) []string {
	matches := termPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	var terms []string
	for _, m := range matches {
		lower := strings.ToLower(m)
		if stopwords[lower] || seen[lower] {
			continue
		}
		seen[lower] = true
		terms = append(terms, lower)
	}
	sort.Slice(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
	return terms
}

// SimilarTo finds events whose content shares keyword terms with
// refText, excluding refText's own event id. It extracts content terms
// from refText and issues an OR-joined FTS query over them.
func SimilarTo(s *store.SQLiteStore, refEventID, refText string, opts Options) ([]Result, error) {
	terms := extractSearchTerms(refText)
	if len(terms) == 0 {
		return nil, nil
	}
	query := strings.Join(terms, " OR ")

	results, err := Keyword(s.RawDB(), query, opts)
	if err != nil {
		return nil, err
	}

	out := results[:0:0]
	for _, r := range results {
		if r.Event.ID == refEventID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
