package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// HookState tracks incremental transcript-reading progress across hook
// invocations: how far into the transcript file extraction has read, and
// a handful of session bookkeeping fields. It is a separate concern from
// EventStore because both tiers persist it very differently (a sibling
// JSON file at tier 0, a key-value table at tier 1+).
type HookState struct {
	LastTranscriptPosition int64  `json:"last_transcript_position"`
	LastTranscriptPath     string `json:"last_transcript_path"`
	LastSessionID          string `json:"last_session_id"`
	SessionCount           int    `json:"session_count"`
	LastExtractionTime     string `json:"last_extraction_time"`
}

// HookStateStore persists HookState across hook invocations.
type HookStateStore interface {
	Load() (HookState, error)
	Save(HookState) error
}

// FileHookStateStore persists hook state to a sibling state.json file,
// atomically, mirroring FileStore's save discipline.
type FileHookStateStore struct {
	mu   sync.Mutex
	path string
}

// NewFileHookStateStore opens the hook-state file at path (created on
// first Save).
func NewFileHookStateStore(path string) (*FileHookStateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create hook state directory: %w", err)
	}
	return &FileHookStateStore{path: path}, nil
}

// Load implements HookStateStore. A missing or malformed file yields the
// zero-value HookState rather than an error.
func (s *FileHookStateStore) Load() (HookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return HookState{}, nil
		}
		return HookState{}, fmt.Errorf("failed to read hook state: %w", err)
	}
	var st HookState
	if err := json.Unmarshal(data, &st); err != nil {
		return HookState{}, nil
	}
	return st, nil
}

// Save implements HookStateStore, writing atomically via temp+rename.
func (s *FileHookStateStore) Save(st HookState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal hook state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp hook state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp hook state: %w", err)
	}
	return nil
}

// SQLiteHookStateStore persists hook state as rows in the hook_state
// key-value table, one row per HookState field.
type SQLiteHookStateStore struct {
	db *sql.DB
}

// NewSQLiteHookStateStore wraps a SQLiteStore's underlying database.
func NewSQLiteHookStateStore(s *SQLiteStore) *SQLiteHookStateStore {
	return &SQLiteHookStateStore{db: s.RawDB()}
}

var hookStateKeys = []string{
	"last_transcript_position",
	"last_transcript_path",
	"last_session_id",
	"session_count",
	"last_extraction_time",
}

// Load implements HookStateStore.
func (s *SQLiteHookStateStore) Load() (HookState, error) {
	values := make(map[string]string, len(hookStateKeys))
	rows, err := s.db.Query("SELECT key, value FROM hook_state WHERE key IN (?, ?, ?, ?, ?)",
		hookStateKeys[0], hookStateKeys[1], hookStateKeys[2], hookStateKeys[3], hookStateKeys[4])
	if err != nil {
		return HookState{}, fmt.Errorf("failed to query hook state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return HookState{}, err
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return HookState{}, err
	}

	var st HookState
	if v, ok := values["last_transcript_position"]; ok {
		fmt.Sscanf(v, "%d", &st.LastTranscriptPosition)
	}
	st.LastTranscriptPath = values["last_transcript_path"]
	st.LastSessionID = values["last_session_id"]
	if v, ok := values["session_count"]; ok {
		fmt.Sscanf(v, "%d", &st.SessionCount)
	}
	st.LastExtractionTime = values["last_extraction_time"]
	return st, nil
}

// Save implements HookStateStore, upserting one row per field within a
// single transaction.
func (s *SQLiteHookStateStore) Save(st HookState) error {
	kv := map[string]string{
		"last_transcript_position": fmt.Sprintf("%d", st.LastTranscriptPosition),
		"last_transcript_path":     st.LastTranscriptPath,
		"last_session_id":          st.LastSessionID,
		"session_count":            fmt.Sprintf("%d", st.SessionCount),
		"last_extraction_time":     st.LastExtractionTime,
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO hook_state (key, value) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare hook state upsert: %w", err)
	}
	defer stmt.Close()
	for _, k := range hookStateKeys {
		if _, err := stmt.Exec(k, kv[k]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to write hook state key %s: %w", k, err)
		}
	}
	return tx.Commit()
}
