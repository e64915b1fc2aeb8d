// Package transcript reads the assistant's append-only, line-delimited
// JSON conversation log: resumable byte-offset reads, record
// classification, and content-block extraction helpers feeding the
// extractor pipeline in internal/extract.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"cortex/internal/logging"
)

// RecordType discriminates a transcript line.
type RecordType string

const (
	RecordSummary     RecordType = "summary"
	RecordFileHistory RecordType = "file-history-snapshot"
	RecordUser        RecordType = "user"
	RecordAssistant   RecordType = "assistant"
)

// BlockType discriminates a content block within a message.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one entry in a message's content array. Only the
// fields matching its Type are populated.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text / thinking
	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result (appears on user entries only)
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Entry is one parsed transcript line of type user/assistant. Metadata
// records tool-result side information, such as the oldTodos/newTodos
// pair a TodoWrite tool result carries.
type Entry struct {
	Type       RecordType
	SessionID  string
	UUID       string
	ParentUUID string
	Timestamp  string
	GitBranch  string
	Role       string
	Content    []ContentBlock
	Metadata   map[string]interface{}
}

type rawRecord struct {
	Type          RecordType      `json:"type"`
	SessionID     string          `json:"sessionId"`
	UUID          string          `json:"uuid"`
	ParentUUID    string          `json:"parentUuid"`
	Timestamp     string          `json:"timestamp"`
	GitBranch     string          `json:"gitBranch"`
	Message       message         `json:"message"`
	ToolUseResult json.RawMessage `json:"toolUseResult"`
}

// Reader incrementally parses a transcript file from a byte offset.
type Reader struct {
	path string
}

// NewReader opens a reader for the transcript at path. The file is not
// held open between ReadNew calls.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// ReadNew reads complete lines starting at fromOffset and returns the
// parsed user/assistant entries plus the byte offset immediately
// following the last complete line read. A partial trailing line (no
// terminating newline yet) is left unread so the next call is
// re-entrant. Malformed lines are skipped, not fatal.
func (r *Reader) ReadNew(fromOffset int64) ([]Entry, int64, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fromOffset, nil
		}
		return nil, fromOffset, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fromOffset, fmt.Errorf("failed to stat transcript: %w", err)
	}
	if fromOffset < 0 || fromOffset > info.Size() {
		fromOffset = 0
	}
	if _, err := f.Seek(fromOffset, 0); err != nil {
		return nil, fromOffset, fmt.Errorf("failed to seek transcript: %w", err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var entries []Entry
	offset := fromOffset
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // +1 for the newline the scanner consumed

		if len(bytes.TrimSpace(line)) == 0 {
			offset += lineLen
			continue
		}

		var rec rawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			logging.TranscriptDebug("skipping malformed transcript line: %v", err)
			offset += lineLen
			continue
		}

		if rec.Type == RecordUser || rec.Type == RecordAssistant {
			entries = append(entries, toEntry(rec))
		}
		offset += lineLen
	}
	if err := scanner.Err(); err != nil {
		return entries, offset, fmt.Errorf("failed to scan transcript: %w", err)
	}
	return entries, offset, nil
}

func toEntry(rec rawRecord) Entry {
	e := Entry{
		Type:       rec.Type,
		SessionID:  rec.SessionID,
		UUID:       rec.UUID,
		ParentUUID: rec.ParentUUID,
		Timestamp:  rec.Timestamp,
		GitBranch:  rec.GitBranch,
		Role:       rec.Message.Role,
		Content:    rec.Message.Content,
	}
	if len(rec.ToolUseResult) > 0 {
		var meta map[string]interface{}
		if err := json.Unmarshal(rec.ToolUseResult, &meta); err == nil {
			e.Metadata = meta
		}
	}
	return e
}

// ExtractTextContent concatenates all "text" blocks in an entry.
func ExtractTextContent(e Entry) string {
	var buf bytes.Buffer
	for _, b := range e.Content {
		if b.Type == BlockText {
			buf.WriteString(b.Text)
		}
	}
	return buf.String()
}

// ExtractToolCalls returns every tool_use block in an entry.
func ExtractToolCalls(e Entry) []ContentBlock {
	var out []ContentBlock
	for _, b := range e.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ExtractToolResults returns every tool_result block in an entry.
func ExtractToolResults(e Entry) []ContentBlock {
	var out []ContentBlock
	for _, b := range e.Content {
		if b.Type == BlockToolResult {
			out = append(out, b)
		}
	}
	return out
}

var (
	fencedCodeBlock = regexp.MustCompile("(?s)```.*?```")
	inlineCode      = regexp.MustCompile("`[^`\n]*`")
)

// StripCodeBlocks removes fenced (```...```) and inline (`...`) code
// spans from text, so semantic keyword scanning never matches inside a
// code sample.
func StripCodeBlocks(text string) string {
	text = fencedCodeBlock.ReplaceAllString(text, "")
	text = inlineCode.ReplaceAllString(text, "")
	return text
}
