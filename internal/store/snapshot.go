package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a cached, pre-rendered briefing for a branch, valid until
// ExpiresAt. Only tier-1+ stores cache snapshots; tier 0 always
// recomposes.
type Snapshot struct {
	ID                int
	GitBranch         string
	BriefingMarkdown  string
	EventIDs          []string
	LastEventID       string
	CreatedAt         string
	ExpiresAt         string
}

// IsExpired reports whether the snapshot is no longer valid at time now.
func (s Snapshot) IsExpired(now time.Time) bool {
	exp, err := time.Parse(time.RFC3339Nano, s.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.UTC().Before(exp.UTC())
}

// SaveSnapshot invalidates any existing snapshot for branch, then inserts
// a new one expiring ttlHours from now. Only one valid snapshot per
// branch is kept at a time.
func (s *SQLiteStore) SaveSnapshot(branch, markdown string, eventIDs []string, lastEventID string, ttlHours int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM snapshots WHERE git_branch = ?", branch); err != nil {
		return fmt.Errorf("failed to invalidate existing snapshots: %w", err)
	}

	idsJSON, err := json.Marshal(eventIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal event ids: %w", err)
	}
	now := time.Now().UTC()
	expires := now.Add(time.Duration(ttlHours) * time.Hour)

	_, err = s.db.Exec(
		`INSERT INTO snapshots (git_branch, briefing_markdown, event_ids, last_event_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		branch, markdown, string(idsJSON), lastEventID,
		now.Format(time.RFC3339Nano), expires.Format(time.RFC3339Nano),
	)
	return err
}

// GetValidSnapshot returns the most recent unexpired snapshot for branch,
// or ok=false if none exists.
func (s *SQLiteStore) GetValidSnapshot(branch string) (snap Snapshot, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRow(
		`SELECT id, git_branch, briefing_markdown, event_ids, last_event_id, created_at, expires_at
		 FROM snapshots WHERE git_branch = ? AND expires_at > ? ORDER BY created_at DESC LIMIT 1`,
		branch, now,
	)
	var idsJSON string
	err = row.Scan(&snap.ID, &snap.GitBranch, &snap.BriefingMarkdown, &idsJSON, &snap.LastEventID, &snap.CreatedAt, &snap.ExpiresAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to query snapshot: %w", err)
	}
	_ = json.Unmarshal([]byte(idsJSON), &snap.EventIDs)
	return snap, true, nil
}

// InvalidateSnapshots deletes snapshots for a branch, or every snapshot
// when branch is empty. Invalidating a specific branch also clears the
// branch-agnostic (empty-string) snapshot, since it applies to all
// branches.
func (s *SQLiteStore) InvalidateSnapshots(branch string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if branch == "" {
		_, err := s.db.Exec("DELETE FROM snapshots")
		return err
	}
	_, err := s.db.Exec("DELETE FROM snapshots WHERE git_branch = ? OR git_branch = ''", branch)
	return err
}

// CleanupExpiredSnapshots removes snapshots past their expiry.
func (s *SQLiteStore) CleanupExpiredSnapshots() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec("DELETE FROM snapshots WHERE expires_at <= ?", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SnapshotStats summarizes the snapshots table for `cortex status`.
type SnapshotStats struct {
	TotalCount int
	ValidCount int
	Branches   []string
}

// GetSnapshotStats reports snapshot counts and the distinct branches with
// at least one snapshot.
func (s *SQLiteStore) GetSnapshotStats() (SnapshotStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats SnapshotStats
	if err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots").Scan(&stats.TotalCount); err != nil {
		return stats, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots WHERE expires_at > ?", now).Scan(&stats.ValidCount); err != nil {
		return stats, err
	}
	rows, err := s.db.Query("SELECT DISTINCT git_branch FROM snapshots")
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var b string
		if err := rows.Scan(&b); err != nil {
			return stats, err
		}
		stats.Branches = append(stats.Branches, b)
	}
	return stats, rows.Err()
}
