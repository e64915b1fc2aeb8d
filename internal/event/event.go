// Package event defines the core data model for Cortex's event-sourced
// memory: the Event type, its type enum, default salience mappings, and
// the decay/reinforcement arithmetic. Everything else in Cortex builds on
// these types.
package event

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Type is a typed category of captured event.
type Type string

const (
	DecisionMade       Type = "decision_made"
	ApproachRejected   Type = "approach_rejected"
	PlanCreated        Type = "plan_created"
	PlanStepCompleted  Type = "plan_step_completed"
	KnowledgeAcquired  Type = "knowledge_acquired"
	ErrorResolved      Type = "error_resolved"
	PreferenceNoted    Type = "preference_noted"
	TaskCompleted      Type = "task_completed"
	FileModified       Type = "file_modified"
	FileExplored       Type = "file_explored"
	CommandRun         Type = "command_run"
)

// DefaultSalience is the default salience score per event type. No other
// value is used unless explicitly overridden by an extractor.
var DefaultSalience = map[Type]float64{
	DecisionMade:      0.9,
	ApproachRejected:  0.9,
	PlanCreated:       0.85,
	PlanStepCompleted: 0.7,
	KnowledgeAcquired: 0.7,
	ErrorResolved:     0.75,
	PreferenceNoted:   0.8,
	TaskCompleted:     0.6,
	FileModified:      0.4,
	FileExplored:      0.3,
	CommandRun:        0.2,
}

// Immortal is the set of event types that never decay and must survive
// every retention policy.
var Immortal = map[Type]bool{
	DecisionMade:     true,
	ApproachRejected: true,
}

// DefaultDecayRate is applied per hour to non-immortal events' salience.
const DefaultDecayRate = 0.995

// DefaultReinforcementMultiplier boosts salience on access, capped at 1.0.
const DefaultReinforcementMultiplier = 1.2

// Event is a single, immutable captured fact extracted from a session
// transcript.
type Event struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"session_id"`
	Project    string                 `json:"project"`
	GitBranch  string                 `json:"git_branch"`
	Type       Type                   `json:"type"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Salience   float64                `json:"salience"`
	Confidence float64                `json:"confidence"`
	CreatedAt  string                 `json:"created_at"`
	AccessedAt string                 `json:"accessed_at"`
	AccessCount int                   `json:"access_count"`
	Immortal   bool                   `json:"immortal"`
	Provenance string                 `json:"provenance"`

	// Embedding is populated only by tier 2+ stores; it is never
	// serialized to the tier-0 JSON file.
	Embedding []float32 `json:"-"`
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// New creates an Event with sensible defaults: a fresh UUID, default
// salience from the type table, immortality derived from the Immortal
// set, and created-at/accessed-at set to now. Returns InvalidEvent if
// content is empty.
func New(t Type, content string, sessionID, project, gitBranch string, metadata map[string]interface{}, confidence float64, provenance string) (Event, error) {
	if content == "" {
		return Event{}, fmt.Errorf("invalid event: content must not be empty")
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	now := nowUTC()
	salience, ok := DefaultSalience[t]
	if !ok {
		salience = 0.5
	}
	return Event{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Project:     project,
		GitBranch:   gitBranch,
		Type:        t,
		Content:     content,
		Metadata:    metadata,
		Salience:    salience,
		Confidence:  confidence,
		CreatedAt:   now,
		AccessedAt:  now,
		AccessCount: 0,
		Immortal:    Immortal[t],
		Provenance:  provenance,
	}, nil
}

// EffectiveSalience computes the effective salience of an event at time
// `now`: immortal events always return their raw salience; others decay
// by DefaultDecayRate per hour since AccessedAt. Malformed AccessedAt
// values defensively return the raw salience rather than erroring.
func EffectiveSalience(e Event, now time.Time) float64 {
	if e.Immortal {
		return e.Salience
	}
	if e.AccessedAt == "" {
		return e.Salience
	}
	last, err := time.Parse(time.RFC3339Nano, e.AccessedAt)
	if err != nil {
		last, err = time.Parse(time.RFC3339, e.AccessedAt)
		if err != nil {
			return e.Salience
		}
	}
	hours := now.UTC().Sub(last.UTC()).Hours()
	if hours < 0 {
		hours = 0
	}
	return e.Salience * math.Pow(DefaultDecayRate, hours)
}

// Reinforce returns a new Event reflecting an access: salience is boosted
// by DefaultReinforcementMultiplier (capped at 1.0), AccessedAt is set to
// now, and AccessCount is incremented. The original event is not mutated.
func Reinforce(e Event) Event {
	out := e
	out.Salience = minFloat(1.0, e.Salience*DefaultReinforcementMultiplier)
	out.AccessedAt = nowUTC()
	out.AccessCount = e.AccessCount + 1
	return out
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// ContentHash is the 16-hex-char dedup key: sha256(type + ":" + content +
// ":" + session_id), truncated. Restating the same content in a different
// session yields a different hash and is preserved.
func ContentHash(e Event) string {
	raw := string(e.Type) + ":" + e.Content + ":" + e.SessionID
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// TitleLabel renders the event type as "Decision Made"-style title case
// for display in briefings and anticipatory capsules.
func TitleLabel(t Type) string {
	labels := map[Type]string{
		DecisionMade:      "Decision Made",
		ApproachRejected:  "Approach Rejected",
		PlanCreated:       "Plan Created",
		PlanStepCompleted: "Plan Step Completed",
		KnowledgeAcquired: "Knowledge Acquired",
		ErrorResolved:     "Error Resolved",
		PreferenceNoted:   "Preference Noted",
		TaskCompleted:     "Task Completed",
		FileModified:      "File Modified",
		FileExplored:      "File Explored",
		CommandRun:        "Command Run",
	}
	if l, ok := labels[t]; ok {
		return l
	}
	return string(t)
}

// EncodeEmbedding serializes an embedding vector as little-endian float32
// bytes for storage in the events.embedding BLOB column. There is no
// length prefix: dimension is fixed by configuration, not per-row.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding deserializes a little-endian float32 BLOB back into a
// vector. A blob whose length is not a multiple of 4 yields a truncated
// result rather than an error (defensive: callers treat embeddings as
// best-effort).
func DecodeEmbedding(blob []byte) []float32 {
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}
