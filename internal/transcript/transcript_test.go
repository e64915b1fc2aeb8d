package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTranscript = `{"type":"summary","summary":"test"}
{"type":"user","sessionId":"s1","uuid":"u1","timestamp":"2026-07-31T00:00:00Z","gitBranch":"main","message":{"role":"user","content":[{"type":"text","text":"Create a script"}]}}
{"type":"assistant","sessionId":"s1","uuid":"u2","timestamp":"2026-07-31T00:00:01Z","gitBranch":"main","message":{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"Write","input":{"file_path":"/p/hello.py"}}]}}
`

func writeTranscript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadNewParsesUserAndAssistantOnly(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)
	r := NewReader(path)

	entries, offset, err := r.ReadNew(0)
	require.NoError(t, err)
	require.Equal(t, int64(len(sampleTranscript)), offset)
	require.Len(t, entries, 2)
	require.Equal(t, RecordUser, entries[0].Type)
	require.Equal(t, RecordAssistant, entries[1].Type)
	require.Equal(t, "Create a script", ExtractTextContent(entries[0]))

	calls := ExtractToolCalls(entries[1])
	require.Len(t, calls, 1)
	require.Equal(t, "Write", calls[0].Name)
}

func TestReadNewIsResumable(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)
	r := NewReader(path)

	firstHalf, offset1, err := r.ReadNew(0)
	require.NoError(t, err)
	require.Len(t, firstHalf, 2)

	more, offset2, err := r.ReadNew(offset1)
	require.NoError(t, err)
	require.Empty(t, more)
	require.Equal(t, offset1, offset2)
}

func TestReadNewSkipsPartialTrailingLine(t *testing.T) {
	partial := sampleTranscript + `{"type":"user","sessionId":"s1"`
	path := writeTranscript(t, partial)
	r := NewReader(path)

	entries, offset, err := r.ReadNew(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(len(sampleTranscript)), offset)
}

func TestReadNewSkipsMalformedLines(t *testing.T) {
	withGarbage := sampleTranscript + "not json at all\n"
	path := writeTranscript(t, withGarbage)
	r := NewReader(path)

	entries, offset, err := r.ReadNew(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(len(withGarbage)), offset)
}

func TestReadNewMissingFileReturnsEmpty(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "missing.jsonl"))
	entries, offset, err := r.ReadNew(0)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Equal(t, int64(0), offset)
}

func TestStripCodeBlocksRemovesFencedAndInline(t *testing.T) {
	in := "Decision: use ```go\nfmt.Println()\n``` and `inline` code"
	out := StripCodeBlocks(in)
	require.NotContains(t, out, "fmt.Println")
	require.NotContains(t, out, "inline")
	require.Contains(t, out, "Decision: use")
}

func TestFindLatestTranscriptExcludesAgentFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "older.jsonl"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agent-sub-agent-1.jsonl"), []byte("{}"), 0644))

	got := FindLatestTranscript(dir)
	require.Equal(t, filepath.Join(dir, "older.jsonl"), got)
}
