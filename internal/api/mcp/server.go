package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "engram"
	serverVersion   = "1.0.0"
)

// memoryEngine is the subset of engine.Engine used by the MCP server.
// Using an interface keeps the MCP package loosely coupled and testable.
type memoryEngine interface {
	Initialize(ctx context.Context, reset bool) types.Response
	Store(ctx context.Context, content, topic string, tags []string) types.Response
	Retrieve(ctx context.Context, query string, maxResults int, topic, returnType string) []types.Response
	Update(ctx context.Context, id string, upd storage.MemoryUpdate) types.Response
	Delete(ctx context.Context, id string) types.Response
	ListTopics(ctx context.Context) []types.Response
	Status(ctx context.Context) types.Response
	Summarize(ctx context.Context, req engine.SummarizeRequest) types.Response
}

var _ memoryEngine = (*engine.Engine)(nil)

// Server implements the Model Context Protocol for Engram. It routes
// JSON-RPC 2.0 requests to the memory engine and serves the embedded
// documentation as resources.
//
// Domain failures never become JSON-RPC errors: the engine's response
// envelope is serialized into the tool result with isError mirroring the
// envelope status. JSON-RPC errors are reserved for protocol problems
// (unparsable requests, unknown methods, malformed parameters).
type Server struct {
	engine    memoryEngine
	config    *config.Config
	docs      DocSet
	sessionID string // unique ID generated once per MCP server lifetime
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithEngine injects the memory engine that backs the tool surface.
// A server without an engine answers protocol methods but fails tool calls.
func WithEngine(e memoryEngine) ServerOption {
	return func(s *Server) {
		s.engine = e
	}
}

// WithConfig injects a *config.Config into the Server. The config supplies
// the default retrieval result count; without it a built-in default is used.
func WithConfig(cfg *config.Config) ServerOption {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithDocs replaces the embedded documentation set served under
// resources/list and resources/read.
func WithDocs(docs DocSet) ServerOption {
	return func(s *Server) {
		s.docs = docs
	}
}

// NewServer creates a new MCP server instance.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		docs:      defaultDocs(),
		sessionID: uuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	log.Printf("engram-mcp: session ID: %s", s.sessionID)
	return s
}

// invalidParamsError marks handler failures that surface as JSON-RPC
// invalid-params errors instead of generic server errors.
type invalidParamsError struct {
	msg string
}

func (e *invalidParamsError) Error() string { return e.msg }

// HandleRequest processes a JSON-RPC 2.0 request and returns a response.
// This is the main entry point for MCP protocol handling. A nil response
// with a nil error means the request was a notification and nothing must be
// written back.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err.Error())
	}

	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "initialized", "notifications/initialized":
		// Handshake acknowledgement. Notifications get no response frame.
		return nil, nil
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	case "resources/list":
		result, err = s.handleResourcesList(ctx, req.Params)
	case "resources/read":
		result, err = s.handleResourcesRead(ctx, req.Params)
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		code := ErrCodeServerError
		var ipe *invalidParamsError
		if errors.As(err, &ipe) {
			code = ErrCodeInvalidParams
		}
		return s.errorResponse(req.ID, code, err.Error(), nil)
	}

	return s.successResponse(req.ID, result)
}

// handleInitialize handles the MCP initialize handshake.
func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPInitializeParams
	if err := s.unmarshalParams(params, &p); err == nil && p.ClientInfo.Name != "" {
		log.Printf("engram-mcp: client connected: %s %s", p.ClientInfo.Name, p.ClientInfo.Version)
	}
	return MCPInitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: MCPServerCapabilities{
			Tools:     &MCPToolsCapability{},
			Resources: &MCPResourcesCapability{},
		},
		ServerInfo: MCPServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	}, nil
}

// handleToolsList returns the list of all tools this server exposes.
func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// handleToolsCall dispatches a tools/call request to the appropriate tool
// handler and wraps the result in the MCP content envelope. Tool-level
// failures (unknown tool, bad arguments, error envelopes) are reported via
// isError, never as JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, fmt.Errorf("memory engine not configured")
	}

	var result interface{}
	var handlerErr error

	switch p.Name {
	case "memory_initialize":
		result, handlerErr = s.handleMemoryInitialize(ctx, p.Arguments)
	case "memory_store":
		result, handlerErr = s.handleMemoryStore(ctx, p.Arguments)
	case "memory_retrieve":
		result, handlerErr = s.handleMemoryRetrieve(ctx, p.Arguments)
	case "memory_update":
		result, handlerErr = s.handleMemoryUpdate(ctx, p.Arguments)
	case "memory_delete":
		result, handlerErr = s.handleMemoryDelete(ctx, p.Arguments)
	case "memory_list_topics":
		result, handlerErr = s.handleMemoryListTopics(ctx, p.Arguments)
	case "memory_status":
		result, handlerErr = s.handleMemoryStatus(ctx, p.Arguments)
	case "memory_summarize":
		result, handlerErr = s.handleMemorySummarize(ctx, p.Arguments)
	default:
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: fmt.Sprintf("unknown tool: %s", p.Name)}},
			IsError: true,
		}, nil
	}

	if handlerErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: handlerErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &MCPToolCallResult{
		Content: []MCPToolCallContent{{Type: "text", Text: string(text)}},
		IsError: isErrorResult(result),
	}, nil
}

// isErrorResult reports whether a tool result is an error envelope. List
// results are errors only when they hold a single error envelope (the
// empty-result convention returns an ok envelope).
func isErrorResult(result interface{}) bool {
	switch v := result.(type) {
	case types.Response:
		return v.IsError()
	case []types.Response:
		return len(v) == 1 && v[0].IsError()
	}
	return false
}

// ---------------------------------------------------------------------------
// Tool handlers
// ---------------------------------------------------------------------------

func (s *Server) handleMemoryInitialize(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a InitializeArgs
	if err := s.unmarshalParams(args, &a); err != nil {
		return nil, err
	}
	return s.engine.Initialize(ctx, a.Reset), nil
}

func (s *Server) handleMemoryStore(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a StoreArgs
	if err := s.unmarshalParams(args, &a); err != nil {
		return nil, err
	}
	return s.engine.Store(ctx, a.Content, a.Topic, []string(a.Tags)), nil
}

func (s *Server) handleMemoryRetrieve(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a RetrieveArgs
	if err := s.unmarshalParams(args, &a); err != nil {
		return nil, err
	}
	maxResults := s.defaultMaxResults()
	if a.MaxResults != nil {
		maxResults = *a.MaxResults
	}
	return s.engine.Retrieve(ctx, a.Query, maxResults, a.Topic, a.ReturnType), nil
}

func (s *Server) handleMemoryUpdate(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a UpdateArgs
	if err := s.unmarshalParams(args, &a); err != nil {
		return nil, err
	}
	upd := storage.MemoryUpdate{
		Content: a.Content,
		Topic:   a.Topic,
		Tags:    []string(a.Tags),
	}
	return s.engine.Update(ctx, a.MemoryID, upd), nil
}

func (s *Server) handleMemoryDelete(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a DeleteArgs
	if err := s.unmarshalParams(args, &a); err != nil {
		return nil, err
	}
	return s.engine.Delete(ctx, a.MemoryID), nil
}

func (s *Server) handleMemoryListTopics(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.engine.ListTopics(ctx), nil
}

func (s *Server) handleMemoryStatus(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return s.engine.Status(ctx), nil
}

func (s *Server) handleMemorySummarize(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a SummarizeArgs
	if err := s.unmarshalParams(args, &a); err != nil {
		return nil, err
	}
	return s.engine.Summarize(ctx, engine.SummarizeRequest{
		MemoryID:    a.MemoryID,
		Query:       a.Query,
		Topic:       a.Topic,
		SummaryType: a.SummaryType,
		Length:      a.Length,
	}), nil
}

// defaultMaxResults returns the configured retrieval default, falling back
// to 5 when no config was injected.
func (s *Server) defaultMaxResults() int {
	if s.config != nil && s.config.Retrieval.DefaultMaxResults > 0 {
		return s.config.Retrieval.DefaultMaxResults
	}
	return 5
}

// buildToolsList returns the canonical list of MCP tool definitions.
func (s *Server) buildToolsList() []MCPTool {
	return []MCPTool{
		{
			Name:        "memory_initialize",
			Description: "Initialize the memory system. With reset=true, wipes all stored memories, summaries, and topics and recreates empty stores.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reset": map[string]interface{}{"type": "boolean", "description": "Wipe all stored data and start fresh (default: false)"},
				},
			},
		},
		{
			Name:        "memory_store",
			Description: "Store content in persistent memory under a topic. A default summary is generated automatically (small content is used verbatim, larger content is summarized) and the content becomes semantically searchable.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"content", "topic"},
				"properties": map[string]interface{}{
					"content": map[string]interface{}{"type": "string", "description": "The content to remember (required)"},
					"topic":   map[string]interface{}{"type": "string", "description": "Topic to file the memory under (required)"},
					"tags":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Optional tags for categorization (no commas)"},
				},
			},
		},
		{
			Name:        "memory_retrieve",
			Description: "Semantically search stored memories. Returns a list of results; when nothing matches, the list contains a single status envelope instead.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"query"},
				"properties": map[string]interface{}{
					"query":       map[string]interface{}{"type": "string", "description": "Natural-language search query (required)"},
					"max_results": map[string]interface{}{"type": "integer", "description": "Maximum results to return (default 5)"},
					"topic":       map[string]interface{}{"type": "string", "description": "Restrict the search to one topic"},
					"return_type": map[string]interface{}{"type": "string", "enum": []string{"full_text", "summary", "both"}, "description": "Result shape: full content, summaries, or both (default full_text)"},
				},
			},
		},
		{
			Name:        "memory_update",
			Description: "Update the content, topic, or tags of an existing memory. At least one optional field is required. A content change regenerates the memory's default summary.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"memory_id"},
				"properties": map[string]interface{}{
					"memory_id": map[string]interface{}{"type": "string", "description": "Memory ID to update (required)"},
					"content":   map[string]interface{}{"type": "string", "description": "Replacement content"},
					"topic":     map[string]interface{}{"type": "string", "description": "Replacement topic"},
					"tags":      map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Replacement tag list (replaces all existing tags)"},
				},
			},
		},
		{
			Name:        "memory_delete",
			Description: "Delete a memory item along with its summaries and search index entries.",
			InputSchema: map[string]interface{}{
				"type":     "object",
				"required": []string{"memory_id"},
				"properties": map[string]interface{}{
					"memory_id": map[string]interface{}{"type": "string", "description": "Memory ID to delete (required)"},
				},
			},
		},
		{
			Name:        "memory_list_topics",
			Description: "List all topics with their item counts, most recently updated first.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "memory_status",
			Description: "Report memory system status: item and topic counts, largest topics, storage paths, and summarizer availability.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "memory_summarize",
			Description: "Generate an on-demand summary of one memory, the best matches for a query, or a whole topic. Exactly one of memory_id, query, or topic must be provided. The summary is returned, not stored.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"memory_id":    map[string]interface{}{"type": "string", "description": "Summarize this memory"},
					"query":        map[string]interface{}{"type": "string", "description": "Summarize the memories matching this query"},
					"topic":        map[string]interface{}{"type": "string", "description": "Summarize all memories under this topic"},
					"summary_type": map[string]interface{}{"type": "string", "enum": []string{"abstractive", "extractive", "query_focused"}, "description": "Summarization strategy (default abstractive)"},
					"length":       map[string]interface{}{"type": "string", "enum": []string{"short", "medium", "detailed"}, "description": "Summary length (default medium)"},
				},
			},
		},
	}
}

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return &invalidParamsError{msg: fmt.Sprintf("failed to marshal params: %v", err)}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &invalidParamsError{msg: fmt.Sprintf("failed to unmarshal params: %v", err)}
	}
	return nil
}

// successResponse creates a JSON-RPC success response.
func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
	return json.Marshal(resp)
}

// errorResponse creates a JSON-RPC error response.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
	return json.Marshal(resp)
}
