// Package extract implements Cortex's three-layer transcript-to-event
// pipeline: structural (tool-call observation), semantic (keyword
// pattern matching), and explicit ([MEMORY: ...] tags), plus the
// orchestrator that runs all three per entry and dedupes the result.
package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"cortex/internal/event"
	"cortex/internal/logging"
	"cortex/internal/transcript"
)

// Context carries the session-wide defaults extractors need but that
// don't live on an individual transcript entry.
type Context struct {
	SessionID string
	Project   string
	GitBranch string
}

// Pipeline runs all three layers over a batch of transcript entries (in
// order) and returns the combined, deduplicated event list. Malformed
// entries are skipped rather than aborting the batch.
func Pipeline(ctx Context, entries []transcript.Entry) []event.Event {
	var all []event.Event
	for _, e := range entries {
		all = append(all, structuralLayer(ctx, e)...)
		all = append(all, semanticLayer(ctx, e)...)
		all = append(all, explicitLayer(ctx, e)...)
	}
	return dedupPreserveOrder(all)
}

func dedupPreserveOrder(events []event.Event) []event.Event {
	seen := make(map[string]bool, len(events))
	out := make([]event.Event, 0, len(events))
	for _, e := range events {
		h := event.ContentHash(e)
		if seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, e)
	}
	return out
}

func newEvent(ctx Context, t event.Type, content string, confidence float64, provenance string, metadata map[string]interface{}) (event.Event, bool) {
	e, err := event.New(t, content, ctx.SessionID, ctx.Project, ctx.GitBranch, metadata, confidence, provenance)
	if err != nil {
		logging.ExtractDebug("skipping invalid event: %v", err)
		return event.Event{}, false
	}
	return e, true
}

// --- Layer 1: structural --------------------------------------------------

type todoInput struct {
	Content string `json:"content"`
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
}

func structuralLayer(ctx Context, e transcript.Entry) []event.Event {
	var out []event.Event

	if e.Type == transcript.RecordAssistant {
		for _, call := range transcript.ExtractToolCalls(e) {
			if ev, ok := structuralFromToolUse(ctx, call); ok {
				out = append(out, ev)
			}
		}
	}

	if e.Type == transcript.RecordUser && e.Metadata != nil {
		out = append(out, structuralFromTodoTransition(ctx, e.Metadata)...)
	}

	return out
}

func structuralFromToolUse(ctx Context, call transcript.ContentBlock) (event.Event, bool) {
	switch call.Name {
	case "Write", "Edit":
		path := inputString(call.Input, "file_path")
		return newEvent(ctx, event.FileModified, "Modified: "+path, 0.8, "structural", map[string]interface{}{
			"tool": call.Name,
		})
	case "Bash":
		cmd := inputString(call.Input, "command")
		desc := inputString(call.Input, "description")
		if cmd == "" {
			return event.Event{}, false
		}
		return newEvent(ctx, event.CommandRun, cmd, 0.6, "structural", map[string]interface{}{
			"description": desc,
		})
	case "Read", "Glob", "Grep":
		target := inputString(call.Input, "file_path")
		if target == "" {
			target = inputString(call.Input, "pattern")
		}
		if target == "" {
			return event.Event{}, false
		}
		return newEvent(ctx, event.FileExplored, target, 0.4, "structural", map[string]interface{}{
			"tool": call.Name,
		})
	case "TodoWrite":
		todos := inputTodos(call.Input, "todos")
		if len(todos) == 0 {
			return event.Event{}, false
		}
		return newEvent(ctx, event.PlanCreated, formatTodoList(todos), 0.7, "structural", map[string]interface{}{
			"todo_count": len(todos),
		})
	default:
		return event.Event{}, false
	}
}

func structuralFromTodoTransition(ctx Context, metadata map[string]interface{}) []event.Event {
	oldTodos := todosFromMetadata(metadata, "oldTodos")
	newTodos := todosFromMetadata(metadata, "newTodos")
	if len(newTodos) == 0 {
		return nil
	}

	oldStatus := make(map[string]string, len(oldTodos))
	for _, t := range oldTodos {
		oldStatus[todoKey(t)] = t.Status
	}

	var out []event.Event
	for _, t := range newTodos {
		if t.Status != "completed" {
			continue
		}
		prev := oldStatus[todoKey(t)]
		if prev == "completed" {
			continue
		}
		if prev != "" && prev != "in_progress" && prev != "pending" {
			continue
		}
		if ev, ok := newEvent(ctx, event.PlanStepCompleted, t.Content, 0.7, "structural", nil); ok {
			out = append(out, ev)
		}
	}
	return out
}

func todoKey(t todoInput) string {
	if t.ID != "" {
		return t.ID
	}
	return t.Content
}

func todosFromMetadata(metadata map[string]interface{}, key string) []todoInput {
	raw, ok := metadata[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var todos []todoInput
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil
	}
	return todos
}

func formatTodoList(todos []todoInput) string {
	var b strings.Builder
	for i, t := range todos {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- [%s] %s", t.Status, t.Content)
	}
	return b.String()
}

func inputTodos(raw json.RawMessage, key string) []todoInput {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	v, ok := obj[key]
	if !ok {
		return nil
	}
	var todos []todoInput
	if err := json.Unmarshal(v, &todos); err != nil {
		return nil
	}
	return todos
}

func inputString(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

// --- Layer 2: semantic -----------------------------------------------------

type semanticPattern struct {
	re         *regexp.Regexp
	eventType  event.Type
	confidence float64
}

// Patterns match at line-start (after optional whitespace and a leading
// "**" bold marker); trailing bold markers are stripped from the
// captured group. A keyword appearing mid-line (e.g. inside a list item)
// is intentionally not matched.
var semanticPatterns = []semanticPattern{
	{regexp.MustCompile(`(?m)^\s*\**Decision:\**\s*(.+)$`), event.DecisionMade, 0.85},
	{regexp.MustCompile(`(?m)^\s*\**Rejected:\**\s*(.+)$`), event.ApproachRejected, 0.85},
	{regexp.MustCompile(`(?m)^\s*\**Fixed:\**\s*(.+)$`), event.ErrorResolved, 0.75},
	{regexp.MustCompile(`(?m)^\s*\**Error resolved:\**\s*(.+)$`), event.ErrorResolved, 0.70},
	{regexp.MustCompile(`(?m)^\s*\**(?:Learned|Lesson|TIL):\**\s*(.+)$`), event.KnowledgeAcquired, 0.70},
	{regexp.MustCompile(`(?m)^\s*\**Preference:\**\s*(.+)$`), event.PreferenceNoted, 0.80},
}

var trailingBold = regexp.MustCompile(`\**\s*$`)

func semanticLayer(ctx Context, e transcript.Entry) []event.Event {
	if e.Type != transcript.RecordAssistant {
		return nil
	}
	text := transcript.StripCodeBlocks(transcript.ExtractTextContent(e))
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []event.Event
	for _, p := range semanticPatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			captured := trailingBold.ReplaceAllString(strings.TrimSpace(m[1]), "")
			if captured == "" {
				continue
			}
			if ev, ok := newEvent(ctx, p.eventType, captured, p.confidence, "semantic", nil); ok {
				out = append(out, ev)
			}
		}
	}
	return out
}

// --- Layer 3: explicit -----------------------------------------------------

var memoryTag = regexp.MustCompile(`\[MEMORY:\s*(.+?)\]`)

func explicitLayer(ctx Context, e transcript.Entry) []event.Event {
	if e.Type != transcript.RecordUser && e.Type != transcript.RecordAssistant {
		return nil
	}
	text := transcript.ExtractTextContent(e)
	if text == "" {
		return nil
	}

	var out []event.Event
	for _, m := range memoryTag.FindAllStringSubmatch(text, -1) {
		content := strings.TrimSpace(m[1])
		if content == "" {
			continue
		}
		if ev, ok := newEvent(ctx, event.KnowledgeAcquired, content, 1.0, "explicit", map[string]interface{}{
			"source": string(e.Type),
		}); ok {
			out = append(out, ev)
		}
	}
	return out
}
