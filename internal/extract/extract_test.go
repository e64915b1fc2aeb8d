package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"cortex/internal/event"
	"cortex/internal/transcript"
)

func textEntry(role transcript.RecordType, text string) transcript.Entry {
	return transcript.Entry{
		Type:    role,
		Content: []transcript.ContentBlock{{Type: transcript.BlockText, Text: text}},
	}
}

func toolUseEntry(name string, input map[string]interface{}) transcript.Entry {
	raw, _ := json.Marshal(input)
	return transcript.Entry{
		Type: transcript.RecordAssistant,
		Content: []transcript.ContentBlock{{
			Type: transcript.BlockToolUse, Name: name, Input: raw,
		}},
	}
}

func TestScenarioS1SingleSession(t *testing.T) {
	ctx := Context{SessionID: "s1", Project: "proj", GitBranch: "main"}

	entries := []transcript.Entry{
		textEntry(transcript.RecordUser, "Create a Python script that prints 'Hello'"),
		toolUseEntry("Write", map[string]interface{}{"file_path": "/p/hello.py", "content": "print('Hello')"}),
		textEntry(transcript.RecordUser, "[MEMORY: Use Python 3.11+]"),
		textEntry(transcript.RecordAssistant, "Decision: Use Python 3.11+\n\nRejected: Python 3.9"),
		toolUseEntry("Bash", map[string]interface{}{"command": "pytest -v"}),
	}

	events := Pipeline(ctx, entries)

	byType := map[event.Type][]event.Event{}
	for _, e := range events {
		byType[e.Type] = append(byType[e.Type], e)
	}

	require.Len(t, byType[event.FileModified], 1)
	require.Equal(t, "Modified: /p/hello.py", byType[event.FileModified][0].Content)

	require.Len(t, byType[event.KnowledgeAcquired], 1)
	require.Equal(t, "Use Python 3.11+", byType[event.KnowledgeAcquired][0].Content)
	require.Equal(t, "explicit", byType[event.KnowledgeAcquired][0].Provenance)
	require.Equal(t, 1.0, byType[event.KnowledgeAcquired][0].Confidence)

	require.Len(t, byType[event.DecisionMade], 1)
	require.Equal(t, "Use Python 3.11+", byType[event.DecisionMade][0].Content)
	require.Equal(t, 0.85, byType[event.DecisionMade][0].Confidence)

	require.Len(t, byType[event.ApproachRejected], 1)
	require.Equal(t, "Python 3.9", byType[event.ApproachRejected][0].Content)

	require.Len(t, byType[event.CommandRun], 1)
	require.Equal(t, "pytest -v", byType[event.CommandRun][0].Content)

	immortalCount := 0
	for _, e := range events {
		if e.Immortal {
			immortalCount++
		}
	}
	require.Equal(t, 2, immortalCount)
}

func TestScenarioS2PlanProgression(t *testing.T) {
	ctx := Context{SessionID: "s2", Project: "proj", GitBranch: "main"}

	created := toolUseEntry("TodoWrite", map[string]interface{}{
		"todos": []map[string]interface{}{
			{"id": "1", "content": "step one", "status": "pending"},
			{"id": "2", "content": "step two", "status": "pending"},
			{"id": "3", "content": "step three", "status": "pending"},
		},
	})
	planEvents := Pipeline(ctx, []transcript.Entry{created})
	require.Len(t, planEvents, 1)
	require.Equal(t, event.PlanCreated, planEvents[0].Type)

	oldTodos := []map[string]interface{}{
		{"id": "1", "content": "step one", "status": "pending"},
		{"id": "2", "content": "step two", "status": "pending"},
		{"id": "3", "content": "step three", "status": "pending"},
	}
	newTodos := []map[string]interface{}{
		{"id": "1", "content": "step one", "status": "completed"},
		{"id": "2", "content": "step two", "status": "pending"},
		{"id": "3", "content": "step three", "status": "pending"},
	}
	transition := transcript.Entry{
		Type:     transcript.RecordUser,
		Metadata: map[string]interface{}{"oldTodos": oldTodos, "newTodos": newTodos},
	}
	stepEvents := Pipeline(ctx, []transcript.Entry{transition})
	require.Len(t, stepEvents, 1)
	require.Equal(t, event.PlanStepCompleted, stepEvents[0].Type)
	require.Equal(t, "step one", stepEvents[0].Content)
}

func TestScenarioS3EmptySession(t *testing.T) {
	entries := []transcript.Entry{}
	events := Pipeline(Context{SessionID: "s3"}, entries)
	require.Empty(t, events)
}

func TestSemanticPatternsRequireLineStart(t *testing.T) {
	ctx := Context{SessionID: "s1"}
	entry := textEntry(transcript.RecordAssistant, "I noted that Decision: inline mid-sentence should not match")
	events := Pipeline(ctx, []transcript.Entry{entry})
	for _, e := range events {
		require.NotEqual(t, event.DecisionMade, e.Type)
	}
}

func TestSemanticPatternsSkipCodeBlocks(t *testing.T) {
	ctx := Context{SessionID: "s1"}
	entry := textEntry(transcript.RecordAssistant, "```\nDecision: fake, inside code\n```")
	events := Pipeline(ctx, []transcript.Entry{entry})
	require.Empty(t, events)
}

func TestUnknownToolProducesNoEvent(t *testing.T) {
	ctx := Context{SessionID: "s1"}
	entry := toolUseEntry("SomeUnknownTool", map[string]interface{}{"foo": "bar"})
	events := Pipeline(ctx, []transcript.Entry{entry})
	require.Empty(t, events)
}

func TestDedupAcrossEntries(t *testing.T) {
	ctx := Context{SessionID: "s1", Project: "p", GitBranch: "main"}
	entry := textEntry(transcript.RecordAssistant, "Decision: use postgres")
	events := Pipeline(ctx, []transcript.Entry{entry, entry})
	require.Len(t, events, 1)
}
