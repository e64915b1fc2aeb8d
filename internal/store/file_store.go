package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"cortex/internal/event"
	"cortex/internal/logging"
)

// FileStore is the tier-0 store: all events live in a single JSON array
// file, rewritten atomically on every mutation. It has no query engine;
// callers filter in memory. This is the store used before a project has
// ever been upgraded past tier 0.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore opens (or prepares to create) the events.json file at path.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) load() ([]event.Event, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []event.Event{}, nil
		}
		return nil, fmt.Errorf("failed to read event store: %w", err)
	}
	if len(data) == 0 {
		return []event.Event{}, nil
	}
	var events []event.Event
	if err := json.Unmarshal(data, &events); err != nil {
		logging.StoreWarn("events.json malformed, treating as empty: %v", err)
		return []event.Event{}, nil
	}
	return events, nil
}

func (s *FileStore) save(events []event.Event) error {
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp event store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp event store: %w", err)
	}
	return nil
}

// Append implements EventStore.
func (s *FileStore) Append(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return err
	}
	events = append(events, e)
	return s.save(events)
}

// AppendMany implements EventStore, deduplicating by content hash against
// the store's existing contents.
func (s *FileStore) AppendMany(newEvents []event.Event) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(events))
	for _, e := range events {
		seen[event.ContentHash(e)] = true
	}

	var inserted []event.Event
	for _, e := range newEvents {
		h := event.ContentHash(e)
		if seen[h] {
			continue
		}
		seen[h] = true
		events = append(events, e)
		inserted = append(inserted, e)
	}

	if len(inserted) == 0 {
		return inserted, nil
	}
	if err := s.save(events); err != nil {
		return nil, err
	}
	return inserted, nil
}

// LoadAll implements EventStore.
func (s *FileStore) LoadAll() ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt < events[j].CreatedAt })
	return events, nil
}

// LoadRecent implements EventStore.
func (s *FileStore) LoadRecent(n int) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt > events[j].CreatedAt })
	if n >= 0 && len(events) > n {
		events = events[:n]
	}
	return events, nil
}

// LoadByType implements EventStore.
func (s *FileStore) LoadByType(t event.Type) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// LoadImmortal implements EventStore.
func (s *FileStore) LoadImmortal() ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, e := range events {
		if e.Immortal {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// LoadForBriefing implements EventStore.
func (s *FileStore) LoadForBriefing(branch string) (BriefingSet, error) {
	s.mu.Lock()
	events, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return BriefingSet{}, err
	}

	if branch != "" {
		filtered := events[:0:0]
		for _, e := range events {
			if e.GitBranch == branch || e.GitBranch == "" {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	return splitForBriefing(events), nil
}

// splitForBriefing implements the three-part briefing split shared by
// both storage tiers.
func splitForBriefing(events []event.Event) BriefingSet {
	now := time.Now().UTC()

	var immortal []event.Event
	for _, e := range events {
		if e.Immortal {
			immortal = append(immortal, e)
		}
	}
	sort.Slice(immortal, func(i, j int) bool { return immortal[i].CreatedAt > immortal[j].CreatedAt })

	var plans []event.Event
	for _, e := range events {
		if e.Type == event.PlanCreated {
			plans = append(plans, e)
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt > plans[j].CreatedAt })

	var activePlan []event.Event
	if len(plans) > 0 {
		latest := plans[0]
		activePlan = append(activePlan, latest)
		var steps []event.Event
		for _, e := range events {
			if e.Type == event.PlanStepCompleted && e.CreatedAt >= latest.CreatedAt {
				steps = append(steps, e)
			}
		}
		sort.Slice(steps, func(i, j int) bool { return steps[i].CreatedAt < steps[j].CreatedAt })
		activePlan = append(activePlan, steps...)
	}

	included := make(map[string]bool, len(immortal)+len(activePlan))
	for _, e := range immortal {
		included[e.ID] = true
	}
	for _, e := range activePlan {
		included[e.ID] = true
	}

	var remaining []event.Event
	for _, e := range events {
		if !included[e.ID] {
			remaining = append(remaining, e)
		}
	}
	sort.Slice(remaining, func(i, j int) bool {
		return event.EffectiveSalience(remaining[i], now) > event.EffectiveSalience(remaining[j], now)
	})
	if len(remaining) > 30 {
		remaining = remaining[:30]
	}

	return BriefingSet{Immortal: immortal, ActivePlan: activePlan, Recent: remaining}
}

// MarkAccessed implements EventStore.
func (s *FileStore) MarkAccessed(eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return err
	}
	ids := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		ids[id] = true
	}
	for i, e := range events {
		if ids[e.ID] {
			events[i] = event.Reinforce(e)
		}
	}
	return s.save(events)
}

// Clear implements EventStore.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save([]event.Event{})
}

// Count implements EventStore.
func (s *FileStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// Close implements EventStore. FileStore holds no persistent handles.
func (s *FileStore) Close() error { return nil }
