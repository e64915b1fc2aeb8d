package store

import (
	"database/sql"
	"fmt"

	"cortex/internal/event"
)

// StoreEmbedding writes an embedding vector to an existing event's
// embedding column.
func (s *SQLiteStore) StoreEmbedding(eventID string, vec []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("UPDATE events SET embedding = ? WHERE id = ?", event.EncodeEmbedding(vec), eventID)
	if err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", eventID, err)
	}
	return nil
}

// GetEmbedding returns the decoded embedding for an event, or ok=false if
// the event has none stored.
func (s *SQLiteStore) GetEmbedding(eventID string) (vec []float32, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blob []byte
	row := s.db.QueryRow("SELECT embedding FROM events WHERE id = ?", eventID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load embedding for %s: %w", eventID, err)
	}
	if blob == nil {
		return nil, false, nil
	}
	return event.DecodeEmbedding(blob), true, nil
}

// CountEmbeddings returns the number of events that have a stored
// embedding.
func (s *SQLiteStore) CountEmbeddings() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE embedding IS NOT NULL").Scan(&n)
	return n, err
}

// EventsWithoutEmbeddings returns up to limit non-empty-content events
// that have no embedding yet, most recent first — the backfill queue.
func (s *SQLiteStore) EventsWithoutEmbeddings(limit int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		"SELECT "+selectEventCols+" FROM events WHERE embedding IS NULL AND content != '' ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events without embeddings: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		e, err := rowToEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// BackfillProgress reports incremental backfill progress.
type BackfillProgress func(generated, total int)

// EmbedFunc generates an embedding for a batch of texts. Implemented by
// internal/embedding.EmbeddingEngine.EmbedBatch; kept as a function type
// here so this package never imports internal/embedding.
type EmbedFunc func(texts []string) ([][]float32, error)

// BackfillEmbeddings generates and stores embeddings for every event
// lacking one, batchSize at a time, until none remain. progress is
// called after each batch if non-nil.
func (s *SQLiteStore) BackfillEmbeddings(batchSize int, embed EmbedFunc, progress BackfillProgress) (int, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	total, err := func() (int, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var n int
		err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE embedding IS NULL AND content != ''").Scan(&n)
		return n, err
	}()
	if err != nil {
		return 0, err
	}

	generated := 0
	for {
		batch, err := s.EventsWithoutEmbeddings(batchSize)
		if err != nil {
			return generated, err
		}
		if len(batch) == 0 {
			break
		}
		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Content
		}
		vectors, err := embed(texts)
		if err != nil {
			return generated, fmt.Errorf("failed to embed backfill batch: %w", err)
		}
		for i, e := range batch {
			if i >= len(vectors) {
				break
			}
			if err := s.StoreEmbedding(e.ID, vectors[i]); err != nil {
				return generated, err
			}
			generated++
		}
		if progress != nil {
			progress(generated, total)
		}
	}
	return generated, nil
}
