package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"cortex/internal/config"
	"cortex/internal/embedding"
	"cortex/internal/event"
	"cortex/internal/identity"
	"cortex/internal/logging"
	"cortex/internal/search"
	"cortex/internal/store"
	"cortex/internal/transcript"
)

const protocolVersion = "2024-11-05"

// Server answers JSON-RPC tool calls over stdio for one project while a
// session is live, so the assistant can query Cortex's memory mid-session
// without waiting for the next SessionStart briefing. It never mutates
// the event store.
type Server struct {
	cwd    string
	cfg    *config.Config
	id     identity.Identity
	s      store.EventStore
	engine embedding.EmbeddingEngine
	cache  *transcriptCache
}

// New opens the project's store (read/reinforce only) and, when the
// embedding provider is available, an embedding engine for hybrid search.
func New(cwd string) (*Server, error) {
	base := config.DefaultConfig()
	cfg, err := config.Load(config.ConfigPath(base.CortexHome))
	if err != nil {
		return nil, fmt.Errorf("mcpserver: config load: %w", err)
	}

	id := identity.Identify(cwd)
	projectDir := cfg.ProjectDir(id.Hash)
	_ = logging.Initialize(projectDir)

	s, err := store.Open(projectDir, cfg.StorageTier)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: store open: %w", err)
	}

	var engine embedding.EmbeddingEngine
	if eng, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		Dimensions:     cfg.Embedding.Dimensions,
	}); err == nil {
		engine = eng
	} else {
		logging.MCP("embedding engine unavailable, search degrades to keyword-only: %v", err)
	}

	dir := transcript.FindTranscriptDir(cwd)
	return &Server{cwd: cwd, cfg: cfg, id: id, s: s, engine: engine, cache: newTranscriptCache(dir)}, nil
}

// Close releases the store and transcript watcher.
func (srv *Server) Close() error {
	srv.cache.Close()
	return srv.s.Close()
}

// Run reads JSON-RPC request lines from in and writes responses to out
// until in is exhausted or ctx is cancelled. One malformed line is
// reported as a parse error on its own response and does not abort the
// loop — the query surface must stay up for the rest of the session.
func (srv *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(writer, response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}
		resp := srv.dispatch(ctx, req)
		resp.ID = req.ID
		resp.JSONRPC = "2.0"
		writeResponse(writer, resp)
	}
	return scanner.Err()
}

func writeResponse(w *bufio.Writer, resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}

func (srv *Server) dispatch(ctx context.Context, req request) response {
	switch req.Method {
	case "initialize":
		return response{Result: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]string{"name": "cortex", "version": "1"},
		}}
	case "notifications/initialized":
		return response{}
	case "tools/list":
		return response{Result: map[string]interface{}{"tools": toolList()}}
	case "tools/call":
		return srv.callTool(ctx, req.Params)
	case "ping":
		return response{Result: map[string]interface{}{}}
	default:
		return response{Error: &rpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func toolList() []toolSchema {
	strArg := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	return []toolSchema{
		{
			Name:        "search_events",
			Description: "Hybrid keyword+vector search over this project's stored memory events.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": strArg("search text"),
					"limit": map[string]interface{}{"type": "integer", "description": "max results (default 10)"},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "get_recent_events",
			Description: "Returns the most recently created memory events.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": map[string]interface{}{"type": "integer", "description": "max results (default 20)"},
				},
			},
		},
		{
			Name:        "get_decisions",
			Description: "Returns all immortal decision_made/approach_rejected events.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        "get_active_plan",
			Description: "Returns the current branch's active plan and completed steps.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"branch": strArg("git branch filter (default: current)")},
			},
		},
		{
			Name:        "get_latest_transcript",
			Description: "Returns the path of the most recently updated session transcript for this project.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
	}
}

func (srv *Server) callTool(ctx context.Context, raw json.RawMessage) response {
	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return response{Error: &rpcError{Code: -32602, Message: "invalid params"}}
	}

	var result toolCallResult
	switch params.Name {
	case "search_events":
		result = srv.toolSearchEvents(ctx, params.Arguments)
	case "get_recent_events":
		result = srv.toolRecentEvents(params.Arguments)
	case "get_decisions":
		result = srv.toolDecisions()
	case "get_active_plan":
		result = srv.toolActivePlan(params.Arguments)
	case "get_latest_transcript":
		result = srv.toolLatestTranscript()
	default:
		return response{Error: &rpcError{Code: -32601, Message: "unknown tool: " + params.Name}}
	}
	return response{Result: result}
}

func argString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (srv *Server) toolSearchEvents(ctx context.Context, args map[string]interface{}) toolCallResult {
	query := argString(args, "query")
	limit := argInt(args, "limit", 10)
	if strings.TrimSpace(query) == "" {
		return errorResult("query must not be empty")
	}

	sq, ok := srv.s.(*store.SQLiteStore)
	if !ok {
		return errorResult("search requires storage tier 1 or higher")
	}

	var vec []float32
	if srv.engine != nil {
		if v, err := srv.engine.Embed(ctx, query); err == nil {
			vec = v
		}
	}

	results, err := search.Hybrid(sq, query, vec, search.Options{BranchFilter: srv.id.Branch, Limit: limit})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err))
	}
	return textResult(formatHybridResults(results))
}

func formatHybridResults(results []search.HybridResult) string {
	if len(results) == 0 {
		return "no results"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] %s (score=%.4f)\n", event.TitleLabel(r.Event.Type), r.Event.Content, r.Score)
	}
	return b.String()
}

func (srv *Server) toolRecentEvents(args map[string]interface{}) toolCallResult {
	limit := argInt(args, "limit", 20)
	events, err := srv.s.LoadRecent(limit)
	if err != nil {
		return errorResult(fmt.Sprintf("load recent failed: %v", err))
	}
	return textResult(formatEvents(events))
}

func (srv *Server) toolDecisions() toolCallResult {
	events, err := srv.s.LoadImmortal()
	if err != nil {
		return errorResult(fmt.Sprintf("load immortal failed: %v", err))
	}
	return textResult(formatEvents(events))
}

func (srv *Server) toolActivePlan(args map[string]interface{}) toolCallResult {
	branch := argString(args, "branch")
	if branch == "" {
		branch = srv.id.Branch
	}
	set, err := srv.s.LoadForBriefing(branch)
	if err != nil {
		return errorResult(fmt.Sprintf("load briefing set failed: %v", err))
	}
	if len(set.ActivePlan) == 0 {
		return textResult("no active plan")
	}
	return textResult(formatEvents(set.ActivePlan))
}

func (srv *Server) toolLatestTranscript() toolCallResult {
	path := srv.cache.Latest()
	if path == "" {
		return textResult("no transcript found")
	}
	return textResult(path)
}

func formatEvents(events []event.Event) string {
	if len(events) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "- [%s] %s\n", event.TitleLabel(e.Type), e.Content)
	}
	return b.String()
}
