package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"cortex/internal/event"
	"cortex/internal/logging"
)

// SQLiteStore is the tier-1+ store: events live in a SQLite database with
// a synced FTS5 index. Tier 2 reuses the same schema's embedding column;
// the vector-search code that reads/writes it lives in internal/search so
// this package stays storage-only.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// DBPath returns the path to the project's events.db.
func DBPath(projectDir string) string {
	return filepath.Join(projectDir, "events.db")
}

// OpenSQLiteStore opens (creating if necessary) the SQLite store at path,
// configuring WAL mode and initializing the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenSQLiteStore")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		logging.StoreWarn("failed to set journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		logging.StoreWarn("failed to set synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logging.StoreWarn("failed to set busy_timeout: %v", err)
	}

	s := &SQLiteStore{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("failed to create core tables: %w", err)
	}

	var ftsExists string
	err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events_fts'").Scan(&ftsExists)
	if err == sql.ErrNoRows {
		if _, err := s.db.Exec(fts5DDL); err != nil {
			return fmt.Errorf("failed to create FTS5 index: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to probe FTS5 table: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		return err
	}
	return s.recordSchemaVersion()
}

// SchemaVersion returns the highest recorded schema version, or 0 if the
// database has never been initialized.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var v sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, nil
	}
	if !v.Valid {
		return 0, nil
	}
	return int(v.Int64), nil
}

func (s *SQLiteStore) runMigrations() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	if current < 2 {
		if err := s.migrateV1ToV2(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) migrateV1ToV2() error {
	rows, err := s.db.Query("PRAGMA table_info(events)")
	if err != nil {
		return err
	}
	defer rows.Close()

	hasEmbedding := false
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == "embedding" {
			hasEmbedding = true
		}
	}
	if hasEmbedding {
		return nil
	}

	if _, err := s.db.Exec("ALTER TABLE events ADD COLUMN embedding BLOB DEFAULT NULL"); err != nil {
		return fmt.Errorf("failed to add embedding column: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)",
		2, now, "Tier 2: added embedding column for vector search",
	)
	return err
}

func (s *SQLiteStore) recordSchemaVersion() error {
	var exists int
	err := s.db.QueryRow("SELECT 1 FROM schema_version WHERE version = ?", SchemaVersion).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		"INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)",
		SchemaVersion, now, "Tier 2 schema: events, FTS5, snapshots, hook_state, embedding",
	)
	return err
}

func metadataToJSON(m map[string]interface{}) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

const insertEventSQL = `
	INSERT INTO events (
		id, session_id, project, git_branch, type, content, metadata,
		salience, confidence, created_at, accessed_at, access_count,
		immortal, provenance
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) insertEvent(e event.Event) error {
	_, err := s.db.Exec(insertEventSQL,
		e.ID, e.SessionID, e.Project, e.GitBranch, string(e.Type), e.Content,
		metadataToJSON(e.Metadata), e.Salience, e.Confidence, e.CreatedAt,
		e.AccessedAt, e.AccessCount, boolToInt(e.Immortal), e.Provenance,
	)
	return err
}

func insertEventTx(tx *sql.Tx, e event.Event) error {
	_, err := tx.Exec(insertEventSQL,
		e.ID, e.SessionID, e.Project, e.GitBranch, string(e.Type), e.Content,
		metadataToJSON(e.Metadata), e.Salience, e.Confidence, e.CreatedAt,
		e.AccessedAt, e.AccessCount, boolToInt(e.Immortal), e.Provenance,
	)
	return err
}

// invalidateSnapshotsTx is invalidateSnapshots run on tx instead of s.db,
// for callers that must invalidate inside the same transaction that
// appended the events making the snapshot stale.
func invalidateSnapshotsTx(tx *sql.Tx, branch string) error {
	if branch == "" {
		_, err := tx.Exec("DELETE FROM snapshots")
		return err
	}
	_, err := tx.Exec("DELETE FROM snapshots WHERE git_branch = ? OR git_branch = ''", branch)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Append implements EventStore.
func (s *SQLiteStore) Append(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertEvent(e)
}

// AppendMany implements EventStore, deduplicating against the store's
// existing content hashes.
func (s *SQLiteStore) AppendMany(events []event.Event) ([]event.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadAllLocked()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[event.ContentHash(e)] = true
	}

	var toInsert []event.Event
	for _, e := range events {
		h := event.ContentHash(e)
		if seen[h] {
			continue
		}
		seen[h] = true
		toInsert = append(toInsert, e)
	}
	if len(toInsert) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	branches := map[string]bool{"": true}
	for _, e := range toInsert {
		if err := insertEventTx(tx, e); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to insert event %s: %w", e.ID, err)
		}
		branches[e.GitBranch] = true
	}
	for branch := range branches {
		if err := invalidateSnapshotsTx(tx, branch); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to invalidate snapshots: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch insert: %w", err)
	}
	return toInsert, nil
}

func rowToEvent(rows *sql.Rows) (event.Event, error) {
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
	return e, nil
}

const selectEventCols = "id, session_id, project, git_branch, type, content, metadata, salience, confidence, created_at, accessed_at, access_count, immortal, provenance, embedding"

func (s *SQLiteStore) loadAllLocked() ([]event.Event, error) {
	rows, err := s.db.Query("SELECT " + selectEventCols + " FROM events ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		e, err := rowToEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LoadAll implements EventStore.
func (s *SQLiteStore) LoadAll() ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAllLocked()
}

// LoadRecent implements EventStore.
func (s *SQLiteStore) LoadRecent(n int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT "+selectEventCols+" FROM events ORDER BY created_at DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
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

// LoadByType implements EventStore.
func (s *SQLiteStore) LoadByType(t event.Type) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT "+selectEventCols+" FROM events WHERE type = ? ORDER BY created_at", string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
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

// LoadImmortal implements EventStore.
func (s *SQLiteStore) LoadImmortal() ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT " + selectEventCols + " FROM events WHERE immortal = 1 ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to query immortal events: %w", err)
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

// LoadForBriefing implements EventStore.
func (s *SQLiteStore) LoadForBriefing(branch string) (BriefingSet, error) {
	s.mu.Lock()
	var (
		events []event.Event
		err    error
	)
	if branch != "" {
		var rows *sql.Rows
		rows, err = s.db.Query(
			"SELECT "+selectEventCols+" FROM events WHERE (git_branch = ? OR git_branch = '')",
			branch,
		)
		if err == nil {
			defer rows.Close()
			for rows.Next() {
				var e event.Event
				e, err = rowToEvent(rows)
				if err != nil {
					break
				}
				events = append(events, e)
			}
		}
	} else {
		events, err = s.loadAllLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return BriefingSet{}, fmt.Errorf("failed to load events for briefing: %w", err)
	}
	return splitForBriefing(events), nil
}

// MarkAccessed implements EventStore.
func (s *SQLiteStore) MarkAccessed(eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare("UPDATE events SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer stmt.Close()

	for _, id := range eventIDs {
		if _, err := stmt.Exec(now, id); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to mark event %s accessed: %w", id, err)
		}
	}
	return tx.Commit()
}

// Clear implements EventStore.
func (s *SQLiteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM events")
	return err
}

// Count implements EventStore.
func (s *SQLiteStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// Close implements EventStore.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RawDB exposes the underlying *sql.DB for packages (search, migrate,
// projections) that need direct query access beyond the EventStore
// contract — FTS5 queries and embedding blob I/O in particular.
func (s *SQLiteStore) RawDB() *sql.DB {
	return s.db
}

// Stats reports counts used by `cortex status` and migration dry-runs.
type Stats struct {
	EventCount           int
	SchemaVersionNum     int
	FTSEnabled           bool
	SnapshotCount        int
	EventsWithEmbeddings int
}

// GetStats gathers database statistics.
func (s *SQLiteStore) GetStats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&stats.EventCount); err != nil {
		return stats, err
	}
	v, err := s.SchemaVersion()
	if err != nil {
		return stats, err
	}
	stats.SchemaVersionNum = v

	var ftsName sql.NullString
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events_fts'").Scan(&ftsName)
	stats.FTSEnabled = err == nil && ftsName.Valid

	if err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&stats.SnapshotCount); err != nil {
		return stats, err
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM events WHERE embedding IS NOT NULL").Scan(&stats.EventsWithEmbeddings); err != nil {
		return stats, err
	}
	return stats, nil
}

// RebuildFTSIndex drops and recreates the FTS5 index from the events
// table's current content. Used by migration and `cortex status --repair`.
func (s *SQLiteStore) RebuildFTSIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("INSERT INTO events_fts(events_fts) VALUES('rebuild')")
	return err
}
