package event

import (
	"testing"
	"time"
)

func TestNewRejectsEmptyContent(t *testing.T) {
	if _, err := New(TaskCompleted, "", "s1", "proj", "main", nil, 0.5, "test"); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestNewSetsDefaultSalienceAndImmortality(t *testing.T) {
	e, err := New(DecisionMade, "use postgres", "s1", "proj", "main", nil, 0.9, "structural")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Salience != 0.9 {
		t.Errorf("expected default salience 0.9, got %v", e.Salience)
	}
	if !e.Immortal {
		t.Error("expected decision_made to be immortal")
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.CreatedAt != e.AccessedAt {
		t.Error("expected created_at == accessed_at on creation")
	}
}

func TestNewUnknownTypeFallsBackToMidSalience(t *testing.T) {
	e, err := New(Type("mystery"), "something", "s1", "proj", "main", nil, 0.5, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.Salience != 0.5 {
		t.Errorf("expected fallback salience 0.5, got %v", e.Salience)
	}
}

func TestEffectiveSalienceImmortalNeverDecays(t *testing.T) {
	e, _ := New(ApproachRejected, "tried X, didn't work", "s1", "proj", "main", nil, 0.9, "test")
	e.AccessedAt = time.Now().UTC().Add(-1000 * time.Hour).Format(time.RFC3339Nano)
	got := EffectiveSalience(e, time.Now().UTC())
	if got != e.Salience {
		t.Errorf("expected immortal salience unchanged, got %v want %v", got, e.Salience)
	}
}

func TestEffectiveSalienceDecaysOverTime(t *testing.T) {
	e, _ := New(FileExplored, "looked at foo.go", "s1", "proj", "main", nil, 0.5, "test")
	now := time.Now().UTC()
	e.AccessedAt = now.Add(-1 * time.Hour).Format(time.RFC3339Nano)
	got := EffectiveSalience(e, now)
	want := e.Salience * 0.995
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected decayed salience %v, got %v", want, got)
	}
}

func TestEffectiveSalienceMalformedTimestampFallsBack(t *testing.T) {
	e, _ := New(FileExplored, "looked at foo.go", "s1", "proj", "main", nil, 0.5, "test")
	e.AccessedAt = "not-a-timestamp"
	got := EffectiveSalience(e, time.Now().UTC())
	if got != e.Salience {
		t.Errorf("expected raw salience on malformed timestamp, got %v", got)
	}
}

func TestReinforceCapsAtOneAndIsImmutable(t *testing.T) {
	e, _ := New(PreferenceNoted, "prefers tabs", "s1", "proj", "main", nil, 0.8, "test")
	e.Salience = 0.95
	before := e.AccessCount

	r := Reinforce(e)

	if r.Salience != 1.0 {
		t.Errorf("expected salience capped at 1.0, got %v", r.Salience)
	}
	if e.Salience != 0.95 {
		t.Error("expected original event unmodified")
	}
	if r.AccessCount != before+1 {
		t.Errorf("expected access count incremented, got %d", r.AccessCount)
	}
}

func TestContentHashStableAndSessionScoped(t *testing.T) {
	e1, _ := New(KnowledgeAcquired, "foo uses bar", "s1", "proj", "main", nil, 0.7, "test")
	e2, _ := New(KnowledgeAcquired, "foo uses bar", "s1", "proj", "main", nil, 0.7, "test")
	e3, _ := New(KnowledgeAcquired, "foo uses bar", "s2", "proj", "main", nil, 0.7, "test")

	if ContentHash(e1) != ContentHash(e2) {
		t.Error("expected identical type+content+session to hash identically")
	}
	if ContentHash(e1) == ContentHash(e3) {
		t.Error("expected different sessions to produce different hashes")
	}
	if len(ContentHash(e1)) != 16 {
		t.Errorf("expected 16-char hash, got %d", len(ContentHash(e1)))
	}
}

func TestTitleLabelKnownAndUnknown(t *testing.T) {
	if TitleLabel(DecisionMade) != "Decision Made" {
		t.Errorf("unexpected label: %s", TitleLabel(DecisionMade))
	}
	if TitleLabel(Type("custom_thing")) != "custom_thing" {
		t.Errorf("expected passthrough for unknown type, got %s", TitleLabel(Type("custom_thing")))
	}
}
