// Package mcp implements the Model Context Protocol (MCP) server for Engram.
// It exposes the memory operations as JSON-RPC 2.0 tools and serves the
// bundled documentation as MCP resources.
package mcp

import (
	"encoding/json"
	"strings"
)

// flexTags is a tag list that tolerates the argument encodings real MCP
// clients produce: a proper JSON array, the same array JSON-encoded into a
// string ("[\"a\",\"b\"]"), or a bare comma-separated string. A JSON null
// leaves the list nil so absent and empty stay distinguishable.
type flexTags []string

func (t *flexTags) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err == nil {
		*t = tags
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil // ignore unrecognised tag formats rather than failing
	}
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		*t = []string{}
	case strings.HasPrefix(s, "["):
		_ = json.Unmarshal([]byte(s), &tags)
		*t = tags
	default:
		for _, tag := range strings.Split(s, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		*t = tags
	}
	return nil
}

// InitializeArgs contains arguments for the memory_initialize tool.
type InitializeArgs struct {
	Reset bool `json:"reset,omitempty"` // Wipe all stored data and recreate empty stores
}

// StoreArgs contains arguments for the memory_store tool.
type StoreArgs struct {
	Content string   `json:"content"`        // Memory content (required)
	Topic   string   `json:"topic"`          // Owning topic (required)
	Tags    flexTags `json:"tags,omitempty"` // Optional tags
}

// RetrieveArgs contains arguments for the memory_retrieve tool.
type RetrieveArgs struct {
	Query string `json:"query"` // Search query (required)

	// MaxResults caps the result list. Absent means the configured default;
	// an explicit non-positive value yields the empty-list envelope.
	MaxResults *int `json:"max_results,omitempty"`

	Topic      string `json:"topic,omitempty"`       // Restrict search to one topic
	ReturnType string `json:"return_type,omitempty"` // full_text, summary, or both
}

// UpdateArgs contains arguments for the memory_update tool. Nil optional
// fields are left unchanged; at least one must be provided.
type UpdateArgs struct {
	MemoryID string   `json:"memory_id"`         // Memory to update (required)
	Content  *string  `json:"content,omitempty"` // Replacement content
	Topic    *string  `json:"topic,omitempty"`   // Replacement topic
	Tags     flexTags `json:"tags,omitempty"`    // Replacement tag list
}

// DeleteArgs contains arguments for the memory_delete tool.
type DeleteArgs struct {
	MemoryID string `json:"memory_id"` // Memory to delete (required)
}

// SummarizeArgs contains arguments for the memory_summarize tool. Exactly
// one of MemoryID, Query, or Topic selects the input.
type SummarizeArgs struct {
	MemoryID    string `json:"memory_id,omitempty"`    // Summarize one memory
	Query       string `json:"query,omitempty"`        // Summarize the best matches for a query
	Topic       string `json:"topic,omitempty"`        // Summarize a whole topic
	SummaryType string `json:"summary_type,omitempty"` // abstractive, extractive, or query_focused
	Length      string `json:"length,omitempty"`       // short, medium, or detailed
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"` // Must be "2.0"
	Method  string      `json:"method"`  // Method name
	Params  interface{} `json:"params"`  // Method parameters
	ID      interface{} `json:"id"`      // Request ID (string, number, or null)
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`          // Must be "2.0"
	Result  interface{}   `json:"result,omitempty"` // Result (if successful)
	Error   *JSONRPCError `json:"error,omitempty"`  // Error (if failed)
	ID      interface{}   `json:"id"`               // Request ID
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional error data
}

// JSON-RPC error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrCodeServerError    = -32000 // Server error
)

// ---------------------------------------------------------------------------
// Standard MCP protocol types (initialize / tools / resources)
// ---------------------------------------------------------------------------

// MCPInitializeParams holds the parameters sent by an MCP client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools     *MCPToolsCapability     `json:"tools,omitempty"`
	Resources *MCPResourcesCapability `json:"resources,omitempty"`
}

// MCPToolsCapability signals that the server exposes tools.
type MCPToolsCapability struct{}

// MCPResourcesCapability signals that the server exposes resources.
type MCPResourcesCapability struct{}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via the MCP tools/list endpoint.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to the tools/list request.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"` // always "text" for now
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}

// MCPResource describes a single resource exposed via resources/list.
type MCPResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// MCPResourcesListResult is the response to the resources/list request.
type MCPResourcesListResult struct {
	Resources []MCPResource `json:"resources"`
}

// MCPResourceReadParams holds the parameters sent in a resources/read
// request.
type MCPResourceReadParams struct {
	URI string `json:"uri"`
}

// MCPResourceContents is a single content block in a resources/read
// response.
type MCPResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// MCPResourcesReadResult is the response to a resources/read request.
type MCPResourcesReadResult struct {
	Contents []MCPResourceContents `json:"contents"`
}
