package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileHookStateStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileHookStateStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	st, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, HookState{}, st)

	want := HookState{
		LastTranscriptPosition: 4096,
		LastTranscriptPath:     "/tmp/transcript.jsonl",
		LastSessionID:          "sess-1",
		SessionCount:           3,
		LastExtractionTime:     "2026-07-31T00:00:00Z",
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSQLiteHookStateStoreRoundTrip(t *testing.T) {
	db, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLiteHookStateStore(db)

	st, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, HookState{}, st)

	want := HookState{
		LastTranscriptPosition: 128,
		LastTranscriptPath:     "/tmp/t2.jsonl",
		LastSessionID:          "sess-2",
		SessionCount:           1,
		LastExtractionTime:     "2026-07-31T01:00:00Z",
	}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)

	// Saving again updates in place rather than duplicating rows.
	want.SessionCount = 2
	require.NoError(t, s.Save(want))
	got, err = s.Load()
	require.NoError(t, err)
	require.Equal(t, 2, got.SessionCount)
}
