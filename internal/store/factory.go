package store

import (
	"fmt"
	"path/filepath"
)

// Open returns the EventStore appropriate for storageTier: tier 0 opens
// events.json, tier 1+ opens (and migrates) the SQLite database. Tiers 2
// and 3 reuse the same SQLite schema; their extra behavior (embeddings,
// projections) lives in internal/search and internal/projections, not
// in the store chosen here.
func Open(projectDir string, storageTier int) (EventStore, error) {
	switch {
	case storageTier <= 0:
		return NewFileStore(filepath.Join(projectDir, "events.json"))
	case storageTier >= 1:
		return OpenSQLiteStore(DBPath(projectDir))
	default:
		return nil, fmt.Errorf("invalid storage tier: %d", storageTier)
	}
}

// OpenHookState returns the HookStateStore matching the same tier chosen
// by Open. When store is a *SQLiteStore it shares that store's db handle;
// otherwise it falls back to the sibling state.json file.
func OpenHookState(projectDir string, s EventStore) (HookStateStore, error) {
	if sq, ok := s.(*SQLiteStore); ok {
		return NewSQLiteHookStateStore(sq), nil
	}
	return NewFileHookStateStore(filepath.Join(projectDir, "state.json"))
}
