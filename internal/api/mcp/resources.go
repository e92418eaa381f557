package mcp

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

//go:embed docs/*.md
var docsFS embed.FS

// DocSet maps resource URIs to markdown contents. The default set is
// embedded at build time so the binary carries its own documentation.
type DocSet map[string]string

// resourceCatalog describes the documentation resources in the order they
// are listed. Entries whose URI is missing from the server's DocSet are
// skipped, so a trimmed WithDocs set shrinks the listing too.
var resourceCatalog = []MCPResource{
	{
		URI:         "memory://docs/readme",
		Name:        "Engram overview",
		Description: "What the memory service does, how it stores data, and how to configure it",
		MimeType:    "text/markdown",
	},
	{
		URI:         "memory://docs/agents",
		Name:        "Agent usage guide",
		Description: "How agents should store, retrieve, update, and maintain memories",
		MimeType:    "text/markdown",
	},
	{
		URI:         "memory://docs/schema",
		Name:        "Storage schema",
		Description: "Relational tables, vector collections, and the response envelope format",
		MimeType:    "text/markdown",
	},
	{
		URI:         "memory://docs/roadmap",
		Name:        "Roadmap",
		Description: "Planned work and known limitations",
		MimeType:    "text/markdown",
	},
}

// defaultDocs loads the embedded documentation files. Each docs/<name>.md
// becomes the resource memory://docs/<name>.
func defaultDocs() DocSet {
	docs := make(DocSet)
	entries, err := fs.ReadDir(docsFS, "docs")
	if err != nil {
		return docs
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := docsFS.ReadFile(path.Join("docs", name))
		if err != nil {
			continue
		}
		uri := "memory://docs/" + strings.TrimSuffix(name, ".md")
		docs[uri] = string(data)
	}
	return docs
}

// handleResourcesList returns the documentation resources this server serves.
func (s *Server) handleResourcesList(ctx context.Context, params interface{}) (interface{}, error) {
	resources := make([]MCPResource, 0, len(resourceCatalog))
	for _, r := range resourceCatalog {
		if _, ok := s.docs[r.URI]; ok {
			resources = append(resources, r)
		}
	}
	return MCPResourcesListResult{Resources: resources}, nil
}

// handleResourcesRead returns the contents of a single documentation
// resource. Unknown URIs are a protocol-level error, not a tool envelope.
func (s *Server) handleResourcesRead(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPResourceReadParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	text, ok := s.docs[p.URI]
	if !ok {
		return nil, &invalidParamsError{msg: fmt.Sprintf("unknown resource: %s", p.URI)}
	}
	return MCPResourcesReadResult{
		Contents: []MCPResourceContents{{
			URI:      p.URI,
			MimeType: "text/markdown",
			Text:     text,
		}},
	}, nil
}
